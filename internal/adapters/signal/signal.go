package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/daxaudio/dax-server/internal/app"
	"github.com/daxaudio/dax-server/internal/core"
	"github.com/daxaudio/dax-server/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SignalWSController terminates websocket connections and feeds their
// events into the coordinator.
type SignalWSController struct {
	Coord     *app.Coordinator
	Hub       *Hub
	limiter   *EventRateLimiter
	readLimit int64
}

func NewSignalWSController(coord *app.Coordinator, hub *Hub, readLimit int64) *SignalWSController {
	return &SignalWSController{
		Coord:     coord,
		Hub:       hub,
		limiter:   NewEventRateLimiter(120, time.Second),
		readLimit: readLimit,
	}
}

// session is the per-connection context for inbound events: the socket
// plus the identity carried out-of-band (userid header, falling back to
// the client-token cookie).
type session struct {
	conn   *WsConn
	userID domain.UserID
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	userID := domain.UserID(c.GetHeader("userid"))
	if userID == "" {
		userID = domain.UserID(c.GetString("client_token"))
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "signal").Err(err).Msg("ws upgrade")
		return
	}

	connID := domain.ConnID(uuid.NewString())
	conn := NewWsConn(connID, ws)
	ctl.Hub.Add(connID, conn)
	log.Info().Str("module", "signal").Str("conn", string(connID)).Str("user", string(userID)).Msg("new WS connection")

	sess := &session{conn: conn, userID: userID}
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sess)
}

func (ctl *SignalWSController) sendReply(conn *WsConn, event core.Event, v any) {
	data, ok := encode(event, v)
	if !ok {
		return
	}
	if err := conn.TrySend(data); err != nil {
		log.Debug().Str("module", "signal").Str("conn", string(conn.id)).Err(err).Msg("reply dropped")
	}
}
