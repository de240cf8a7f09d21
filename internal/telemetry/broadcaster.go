package telemetry

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/memento-graph/memento/internal/eventstream"
	"github.com/memento-graph/memento/internal/logging"
)

// Broadcaster upgrades incoming HTTP connections to WebSocket and fans out
// eventstream.Broker events (rollback-point-created, rollback-progress,
// batch:completed, …) to every connected client. Grounded on
// coordinator/coordinator.go's per-connection sendChan/senderLoop pair,
// inverted here: the teacher's Coordinator is a WebSocket client pushing to
// one server connection, this is the server side pushing to many clients.
type Broadcaster struct {
	broker   *eventstream.Broker
	upgrader websocket.Upgrader
	log      *logrus.Entry

	mu      sync.Mutex
	clients map[*client]bool
}

type client struct {
	conn     *websocket.Conn
	sendChan chan []byte
}

const clientSendBuffer = 100

// NewBroadcaster wires a Broadcaster to broker; every Subscribe'd event is
// relayed to every connected WebSocket client as JSON.
func NewBroadcaster(broker *eventstream.Broker, log *logrus.Entry) *Broadcaster {
	return &Broadcaster{
		broker: broker,
		log:    logging.OrDefault(log, "telemetry"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]bool),
	}
}

// ServeHTTP upgrades the connection and relays broker events to it until the
// client disconnects. Register on a mux as the live-progress endpoint.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, sendChan: make(chan []byte, clientSendBuffer)}
	b.addClient(c)
	defer b.removeClient(c)

	sub := b.broker.Subscribe()
	defer b.broker.Unsubscribe(sub)

	go c.senderLoop(b.log)

	go func() {
		for evt := range sub {
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			select {
			case c.sendChan <- data:
			default:
				b.log.Warn("client send buffer full, dropping event")
			}
		}
	}()

	// Drain and discard reads; this is a push-only feed, but we still need
	// to notice disconnects promptly.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) senderLoop(log *logrus.Entry) {
	for data := range c.sendChan {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.WithError(err).Debug("websocket write failed, closing")
			c.conn.Close()
			return
		}
	}
}

func (b *Broadcaster) addClient(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = true
}

func (b *Broadcaster) removeClient(c *client) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
	close(c.sendChan)
}

// ClientCount reports how many WebSocket clients are currently connected.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}
