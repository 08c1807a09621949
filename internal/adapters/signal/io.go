package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Str("module", "signal").Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Str("module", "signal").Err(err).Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sess *session) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(sess.conn.id)).Msg("readPump closing")
		ctl.Hub.Remove(sess.conn.id)
		ctl.limiter.Forget(sess.conn.id)
		sess.conn.Close()
	}()

	if ctl.readLimit > 0 {
		sess.conn.conn.SetReadLimit(ctl.readLimit)
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := sess.conn.conn.ReadMessage()
			if err != nil {
				log.Info().Str("module", "signal").Str("conn", string(sess.conn.id)).Err(err).Msg("readPump read error")
				return
			}
			ctl.handleEvent(ctx, sess, data)
		}
	}
}

func (ctl *SignalWSController) handleEvent(ctx context.Context, sess *session, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Str("module", "signal").Err(err).Msg("bad json")
		return
	}

	switch env.Type {
	case "ping":
		ctl.sendReply(sess.conn, "pong", nil)
	case "desktop-connect":
		ctl.handleDesktopConnect(sess)
	case "controller-connect":
		ctl.handleControllerConnect(sess)
	case "create-room":
		ctl.handleCreateRoom(sess, env.Data)
	case "join-room":
		ctl.handleJoinRoom(ctx, sess, env.Data)
	case "leave-room":
		ctl.handleLeaveRoom(sess)
	case "destroy-room":
		ctl.handleDestroyRoom(sess, env.Data)
	case "sound-ended":
		ctl.handleSoundEnded(sess, env.Data)
	case "rooms-of-user":
		ctl.handleRoomsOfUser(sess)
	case "pair-controller":
		ctl.handlePairController(sess, env.Data)
	case "unpair-controller":
		ctl.handleUnpairController(sess)
	case "play-sound":
		ctl.handlePlaySound(sess, env.Data)
	case "get-elapsed-time":
		ctl.handleGetElapsedTime(sess)
	default:
		if !ctl.relay(sess, env) {
			log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		}
	}
}
