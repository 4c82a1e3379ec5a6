package websocket

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/activity"
	"github.com/re178/mega-facebook-autoposter/infrastructure/valkey"
	"github.com/sirupsen/logrus"
)

// client holds the page filter a connection subscribed with; empty means all pages.
type client struct {
	owner string
}

type BroadcastMessage struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Owner    string `json:"owner,omitempty"`
	Result   any    `json:"result"`
	SenderID string `json:"sender_id,omitempty"`
}

// ActivityReader serves the initial backlog when a client asks for it.
type ActivityReader interface {
	ActivityLog(ctx context.Context, ownerID string, limit int) ([]activity.Entry, error)
}

type registration struct {
	conn  *websocket.Conn
	owner string
}

var (
	Clients    = make(map[*websocket.Conn]client)
	Register   = make(chan registration)
	Broadcast  = make(chan BroadcastMessage, 256)
	Unregister = make(chan *websocket.Conn)
	remote     = make(chan BroadcastMessage, 256)

	vkClient *valkey.Client
	wsChan   = "ws_broadcast"
	localID  string
)

// SetValkeyClient initializes the distributed broadcast system
func SetValkeyClient(client *valkey.Client, serverID string) {
	vkClient = client
	localID = serverID
}

// PublishActivity queues an activity entry for every connected client. It
// never blocks the caller; entries are dropped while the queue is full.
func PublishActivity(e activity.Entry) {
	msg := BroadcastMessage{
		Code:    "ACTIVITY",
		Message: string(e.Action),
		Owner:   e.OwnerID,
		Result:  e,
	}
	select {
	case Broadcast <- msg:
	default:
		logrus.Warnf("[WS] Broadcast queue full, dropping %s", e.Action)
	}
}

func handleRegister(r registration) {
	Clients[r.conn] = client{owner: r.owner}
	logrus.Debugf("[WS] Connection registered (owner=%q)", r.owner)
}

func handleUnregister(conn *websocket.Conn) {
	delete(Clients, conn)
	logrus.Debug("[WS] Connection unregistered")
}

func wants(c client, message BroadcastMessage) bool {
	return c.owner == "" || message.Owner == "" || c.owner == message.Owner
}

func broadcastToLocal(message BroadcastMessage) {
	marshalMessage, err := json.Marshal(message)
	if err != nil {
		logrus.Errorf("[WS] Marshal error: %v", err)
		return
	}

	for conn, c := range Clients {
		if !wants(c, message) {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, marshalMessage); err != nil {
			logrus.Errorf("[WS] Write error: %v", err)
			closeConnection(conn)
		}
	}
}

func channelName() string {
	if vkClient == nil {
		return wsChan
	}
	return vkClient.Key(wsChan)
}

func publishToValkey(message BroadcastMessage) {
	if vkClient == nil {
		return
	}

	// Attach local ID as sender
	message.SenderID = localID

	data, err := json.Marshal(message)
	if err != nil {
		return
	}

	if err := vkClient.Publish(context.Background(), channelName(), string(data)); err != nil {
		logrus.Errorf("[WS] Failed to publish to Valkey: %v", err)
	}
}

func startValkeySubscriber(ctx context.Context) {
	if vkClient == nil {
		return
	}

	logrus.Info("[WS] Starting Valkey Pub/Sub subscriber for activity events")
	go func() {
		err := vkClient.Subscribe(ctx, channelName(), func(payload string) {
			var broadcastMsg BroadcastMessage
			if err := json.Unmarshal([]byte(payload), &broadcastMsg); err != nil {
				return
			}
			// Avoid loops: ignore messages sent by this same instance
			if broadcastMsg.SenderID == localID {
				return
			}
			select {
			case remote <- broadcastMsg:
			default:
			}
		})
		if err != nil && ctx.Err() == nil {
			logrus.Errorf("[WS] Valkey subscriber failed: %v", err)
		}
	}()
}

func closeConnection(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
	_ = conn.Close()
	delete(Clients, conn)
}

// RunHub owns the client set until ctx is done.
func RunHub(ctx context.Context) {
	if vkClient != nil {
		startValkeySubscriber(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			for conn := range Clients {
				closeConnection(conn)
			}
			return

		case r := <-Register:
			handleRegister(r)

		case conn := <-Unregister:
			handleUnregister(conn)

		case message := <-remote:
			broadcastToLocal(message)

		case message := <-Broadcast:
			broadcastToLocal(message)
			if vkClient != nil {
				publishToValkey(message)
			}
		}
	}
}

// RegisterRoutes mounts the activity feed at /ws. Clients pass ?owner=<page>
// to receive only that page's entries.
func RegisterRoutes(app fiber.Router, reader ActivityReader) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("owner", c.Query("owner"))
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})

	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		defer func() {
			Unregister <- conn
			_ = conn.Close()
		}()

		owner, _ := conn.Locals("owner").(string)
		Register <- registration{conn: conn, owner: owner}

		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Debugf("[WS] Read error: %v", err)
				}
				return
			}

			if messageType != websocket.TextMessage {
				logrus.Debugf("[WS] Unsupported message type %d", messageType)
				continue
			}
			var messageData BroadcastMessage
			if err := json.Unmarshal(message, &messageData); err != nil {
				logrus.Debugf("[WS] Unmarshal error: %v", err)
				return
			}

			if messageData.Code == "FETCH_LOG" && reader != nil {
				target := messageData.Owner
				if target == "" {
					target = owner
				}
				entries, err := reader.ActivityLog(context.Background(), target, 50)
				reply := BroadcastMessage{Code: "LIST_LOG", Message: "Activity log", Owner: target, Result: entries}
				if err != nil {
					reply = BroadcastMessage{Code: "ERROR", Message: err.Error(), Owner: target}
				}
				data, _ := json.Marshal(reply)
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))
}
