package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/daxaudio/dax-server/internal/app"
	"github.com/daxaudio/dax-server/internal/domain"
)

func (ctl *SignalWSController) handleControllerConnect(sess *session) {
	log.Info().Str("module", "signal").Str("controller", string(sess.userID)).Msg("new controller connection")
	ctl.sendReply(sess.conn, "controller-connect", app.Result{Status: "ok", Message: "ok"})
}

// handlePairController pairs this connection as a controller device to
// the requested room's host. The controller id rides the connection
// metadata, same as a user id does for desktop events.
func (ctl *SignalWSController) handlePairController(sess *session, data []byte) {
	var p struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Str("module", "signal").Err(err).Msg("bad pair payload")
		ctl.sendReply(sess.conn, "pair-controller", app.Result{Status: "error", Message: "bad payload"})
		return
	}
	res := ctl.Coord.PairController(domain.ControllerID(sess.userID), domain.RoomID(p.RoomID), sess.conn.id)
	ctl.sendReply(sess.conn, "pair-controller", res)
}

// handleUnpairController detaches the desktop user's paired controller,
// if one is live.
func (ctl *SignalWSController) handleUnpairController(sess *session) {
	if !ctl.Coord.UnpairController(sess.userID) {
		ctl.sendReply(sess.conn, "unpair-controller", app.Result{Status: "error", Message: "no controller paired"})
		return
	}
	ctl.sendReply(sess.conn, "unpair-controller", app.Result{Status: "ok", Message: "controller unpaired"})
}
