package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/daxaudio/dax-server/internal/app"
	"github.com/daxaudio/dax-server/internal/domain"
)

func (ctl *SignalWSController) handleDesktopConnect(sess *session) {
	if err := ctl.Coord.DesktopConnect(sess.userID, sess.conn.id); err != nil {
		ctl.sendReply(sess.conn, "desktop-connect", app.Result{Status: "error", Message: err.Error()})
	}
}

func (ctl *SignalWSController) handleCreateRoom(sess *session, data []byte) {
	var p struct {
		RoomID string `json:"roomId"`
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Str("module", "signal").Err(err).Msg("bad create payload")
		ctl.sendReply(sess.conn, "create-room", app.Result{Status: "error", Message: "bad payload"})
		return
	}
	userID := domain.UserID(p.UserID)
	if userID == "" {
		userID = sess.userID
	}
	res := ctl.Coord.CreateRoom(userID, domain.RoomID(p.RoomID))
	ctl.sendReply(sess.conn, "create-room", res)
}

func (ctl *SignalWSController) handleJoinRoom(ctx context.Context, sess *session, data []byte) {
	var p struct {
		RoomID string `json:"roomId"`
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Str("module", "signal").Err(err).Msg("bad join payload")
		ctl.sendReply(sess.conn, "join-room", app.Result{Status: "error", Message: "bad payload"})
		return
	}
	// The out-of-band identity wins over the payload one.
	userID := sess.userID
	if userID == "" {
		userID = domain.UserID(p.UserID)
	}
	roomID := domain.RoomID(p.RoomID)

	// Joins retry with a backoff while the identity resolves, so they
	// must not stall the read loop.
	go func() {
		err := ctl.Coord.JoinRoom(ctx, roomID, userID)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
		case app.Fatal(err):
			// The client never resolved; it is stuck. Drop the socket.
			log.Error().Str("module", "signal").Str("user", string(userID)).Str("room", string(roomID)).Err(err).Msg("join retries exhausted")
			ctl.sendReply(sess.conn, "join-room", app.Result{Status: "error", Message: err.Error()})
			ctl.Hub.CloseConn(sess.conn.id)
		default:
			ctl.sendReply(sess.conn, "join-room", app.Result{Status: "error", Message: err.Error()})
		}
	}()
}

func (ctl *SignalWSController) handleLeaveRoom(sess *session) {
	res := ctl.Coord.LeaveRoom(sess.userID)
	ctl.sendReply(sess.conn, "leave-room", res)
}

func (ctl *SignalWSController) handleDestroyRoom(sess *session, data []byte) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil {
		log.Error().Str("module", "signal").Err(err).Msg("bad destroy payload")
		return
	}
	if err := ctl.Coord.DestroyRoom(domain.RoomID(roomID)); err != nil {
		log.Warn().Str("module", "signal").Str("room", roomID).Err(err).Msg("destroy room")
	}
}

func (ctl *SignalWSController) handleSoundEnded(sess *session, data []byte) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil {
		log.Error().Str("module", "signal").Err(err).Msg("bad sound-ended payload")
		return
	}
	if err := ctl.Coord.SoundEnded(domain.RoomID(roomID)); err != nil {
		log.Warn().Str("module", "signal").Str("room", roomID).Err(err).Msg("sound ended")
	}
}

func (ctl *SignalWSController) handleRoomsOfUser(sess *session) {
	if err := ctl.Coord.RoomsOfUser(sess.userID, sess.conn.id); err != nil {
		log.Warn().Str("module", "signal").Str("user", string(sess.userID)).Err(err).Msg("rooms of user")
	}
}

func (ctl *SignalWSController) handlePlaySound(sess *session, data []byte) {
	userID := sess.userID
	if len(data) > 0 {
		var fromPayload string
		if err := json.Unmarshal(data, &fromPayload); err == nil && fromPayload != "" {
			userID = domain.UserID(fromPayload)
		}
	}
	if err := ctl.Coord.PlaySound(userID); err != nil {
		ctl.sendReply(sess.conn, "play-sound", app.Result{Status: "error", Message: err.Error()})
	}
}

func (ctl *SignalWSController) handleGetElapsedTime(sess *session) {
	if err := ctl.Coord.GetElapsedTime(sess.userID); err != nil {
		log.Warn().Str("module", "signal").Str("user", string(sess.userID)).Err(err).Msg("get elapsed time")
	}
}
