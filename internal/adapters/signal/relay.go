package signal

import (
	"encoding/json"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/daxaudio/dax-server/internal/core"
	"github.com/daxaudio/dax-server/internal/domain"
)

// relay forwards data-plane events verbatim. None of these touch the
// session state machine: sensor frames and scene payloads are opaque to
// the core and unconditionally fanned out, either to the sender's room
// or to every connection. Reports false for event types it doesn't know.
func (ctl *SignalWSController) relay(sess *session, env Envelope) bool {
	switch env.Type {
	case "device-motion":
		if !ctl.limiter.Allow(sess.conn.id) {
			return true
		}
		ctl.Hub.EmitToAll("device-motion-frame", env.Data)
	case "device-orientation":
		if !ctl.limiter.Allow(sess.conn.id) {
			return true
		}
		ctl.Hub.EmitToAll("orientation-from-server", roundOrientation(env.Data))
	case "screen-tap":
		log.Debug().Str("module", "signal.relay").Str("conn", string(sess.conn.id)).Msg("screen tapped")
	case "finger-tap-on":
		ctl.relayToRoom(env.Data, "finger-on-screen", sess.conn.id)
	case "finger-tap-off":
		ctl.relayToRoom(env.Data, "finger-off-screen", sess.conn.id)
	case "xr-active":
		ctl.relayToRoom(env.Data, "xr-active", sess.conn.id)
	case "xr-inactive":
		ctl.relayToRoom(env.Data, "xr-inactive", sess.conn.id)
	case "sound-placement":
		var p struct {
			Room     string          `json:"room"`
			Position json.RawMessage `json:"position"`
		}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return true
		}
		ctl.Hub.EmitToGroup(core.RoomGroup(domain.RoomID(p.Room)), "sound-placement", p.Position)
	case "sound-moved-desktop":
		ctl.Hub.EmitToAll("move-sound", env.Data)
	case "sound-moved-phone":
		ctl.Hub.EmitToAll("move-sound-on-desktop", env.Data)
	case "sound-selected-desktop":
		ctl.Hub.EmitToAll("select-sound", env.Data)
	case "sound-selected-phone":
		ctl.Hub.EmitToAll("select-sound-from-phone", env.Data)
	case "all-sound-positions":
		ctl.Hub.EmitToAll("add-sound", env.Data)
	case "need-sound-positions":
		ctl.Hub.EmitToAll("need-sound-positions", nil)
	case "is-phone-supported":
		ctl.Hub.EmitToAll("is-phone-supported", env.Data)
	default:
		return false
	}
	return true
}

// relayToRoom forwards the sender's connection id to the room named by
// the payload (a bare room id string).
func (ctl *SignalWSController) relayToRoom(data []byte, event core.Event, from domain.ConnID) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil || roomID == "" {
		return
	}
	ctl.Hub.EmitToGroup(core.RoomGroup(domain.RoomID(roomID)), event, from)
}

// roundOrientation rounds the alpha/beta/gamma components so clients
// don't repaint on sub-degree jitter. Unparseable frames pass through
// untouched.
func roundOrientation(data json.RawMessage) any {
	var abg [3]float64
	if err := json.Unmarshal(data, &abg); err != nil {
		return data
	}
	return [3]int{
		int(math.Round(abg[0])),
		int(math.Round(abg[1])),
		int(math.Round(abg[2])),
	}
}
