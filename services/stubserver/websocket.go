package stubserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/previsim/previsim/services/simulation/datatypes"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("failed to write websocket JSON", "error", err)
	}
	return err
}

// handleChannel runs one push-channel connection.
//
// The stub answers ping with pong and calculate with the full
// started/progress/completed event sequence, which is exactly what the
// push-channel client needs to exercise its dispatch table.
func (s *Server) handleChannel(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()

	channelID := c.GetHeader("X-Channel-ID")
	slog.Info("push channel client connected", "channel_id", channelID)

	for {
		var msg datatypes.ChannelMessage
		if err := ws.ReadJSON(&msg); err != nil {
			slog.Info("push channel client disconnected", "channel_id", channelID, "error", err.Error())
			return
		}

		switch msg.Type {
		case datatypes.MessagePing:
			if sendJSON(ws, datatypes.ChannelMessage{Type: datatypes.MessagePong}) != nil {
				return
			}

		case datatypes.MessageCalculate:
			var snap datatypes.ParameterSnapshot
			if err := json.Unmarshal(msg.Payload, &snap); err != nil {
				payload, _ := json.Marshal(datatypes.ChannelError{
					Code: "bad_snapshot", Message: "malformed calculate payload",
				})
				if sendJSON(ws, datatypes.ChannelMessage{Type: datatypes.MessageError, Payload: payload}) != nil {
					return
				}
				continue
			}
			if s.runChannelCalculation(ws, snap) != nil {
				return
			}

		default:
			// Unknown client message types are ignored, mirroring the
			// client-side forward-compatibility rule.
			slog.Debug("ignoring channel message", "type", string(msg.Type))
		}
	}
}

// runChannelCalculation emits started → progress → completed for one
// calculation. Returns the first write error, which ends the connection.
func (s *Server) runChannelCalculation(ws *websocket.Conn, snap datatypes.ParameterSnapshot) error {
	fingerprint := snap.Fingerprint()

	started, _ := json.Marshal(datatypes.CalculationProgress{
		Fingerprint: fingerprint, Phase: "projection", Percent: 0,
	})
	if err := sendJSON(ws, datatypes.ChannelMessage{
		Type: datatypes.MessageCalculationStarted, Payload: started,
	}); err != nil {
		return err
	}

	progress, _ := json.Marshal(datatypes.CalculationProgress{
		Fingerprint: fingerprint, Phase: "annuitization", Percent: 50,
	})
	if err := sendJSON(ws, datatypes.ChannelMessage{
		Type: datatypes.MessageResultsUpdate, Payload: progress,
	}); err != nil {
		return err
	}

	result, _ := json.Marshal(calculate(snap))
	return sendJSON(ws, datatypes.ChannelMessage{
		Type: datatypes.MessageCalculationCompleted, Payload: result,
	})
}
