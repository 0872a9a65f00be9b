package signaling

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lingopeer/backend/internal/models"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// Client is a single WebSocket connection bound to one room member. Its send
// channel is the ordered per-recipient delivery path; Send never blocks the
// relay.
type Client struct {
	RoomID uuid.UUID
	UserID uuid.UUID
	PeerID string
	relay  *Relay
	conn   *websocket.Conn
	send   chan Frame
	logger *zap.Logger
}

// Send implements Sink. A full buffer drops the frame rather than blocking
// the sender's fan-out.
func (c *Client) Send(f Frame) {
	select {
	case c.send <- f:
	default:
	}
}

func (c *Client) sendError(err error) {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	c.Send(Frame{Event: FrameError, Data: data})
}

// ServeWs handles the WebSocket upgrade, registers the client with its room
// and runs the read/write pumps.
func ServeWs(relay *Relay, logger *zap.Logger, jwtValidate func(token string) (userID string, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomIDStr := c.Query("room_id")
		token := c.Query("token")
		if roomIDStr == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "room_id and token required"})
			return
		}
		roomID, err := uuid.Parse(roomIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room_id"})
			return
		}
		userIDStr, err := jwtValidate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
			return
		}
		peerID := c.Query("peer_id")
		if peerID == "" {
			peerID = uuid.New().String()
		}
		media := models.MediaState{
			Camera:     c.Query("camera") != "0",
			Microphone: c.Query("microphone") != "0",
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			RoomID: roomID,
			UserID: userID,
			PeerID: peerID,
			relay:  relay,
			conn:   conn,
			send:   make(chan Frame, 256),
			logger: logger,
		}
		if err := relay.JoinRoom(roomID, userID, peerID, media, client); err != nil {
			client.sendError(err)
			go client.writePump()
			time.Sleep(100 * time.Millisecond)
			_ = conn.Close()
			return
		}
		go client.writePump()
		client.readPump()
	}
}

// statusRequest is the client-side body for participant status changes.
type statusRequest struct {
	Type  string `json:"type"`
	Value bool   `json:"value"`
}

func (c *Client) readPump() {
	defer func() {
		c.relay.LeaveRoom(c.RoomID, c.UserID)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch f.Event {
		case FrameSignal:
			var env models.Envelope
			if err := json.Unmarshal(f.Data, &env); err != nil {
				c.sendError(err)
				continue
			}
			// Sender identity comes from the authenticated connection, never
			// from the client-supplied envelope.
			env.FromUserID = c.UserID
			env.ConnectionID = c.PeerID
			if err := c.relay.HandleEnvelope(c.RoomID, &env); err != nil {
				c.sendError(err)
			}
		case FrameStatus:
			var req statusRequest
			if err := json.Unmarshal(f.Data, &req); err != nil {
				c.sendError(err)
				continue
			}
			if err := c.relay.UpdateParticipantStatus(c.RoomID, c.UserID, req.Type, req.Value); err != nil {
				c.sendError(err)
			}
		case "end_room":
			if err := c.relay.EndRoomByHost(c.RoomID, c.UserID); err != nil {
				c.sendError(err)
			}
		default:
			// ignore
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
