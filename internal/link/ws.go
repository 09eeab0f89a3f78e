package link

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/1ureka/netlayer/internal/protocol"
	"github.com/1ureka/netlayer/internal/util"
)

const (
	sendBufferSize = 64 // outgoing packet channel capacity
	closeGrace     = time.Second
)

// WS is a link over a WebSocket connection. Packets travel as binary
// messages; the receiver must not assume one message per packet.
type WS struct {
	id   string
	peer protocol.Address
	conn *websocket.Conn
	recv ReceiveFunc

	inbox chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewWS wraps an already-handshaken connection and starts its reader and
// writer goroutines. maxMessage bounds a single inbound message; zero
// leaves gorilla's default (unlimited).
func NewWS(conn *websocket.Conn, peer protocol.Address, maxMessage int64, recv ReceiveFunc) *WS {
	ctx, cancel := context.WithCancel(context.Background())
	w := &WS{
		id:     xid.New().String(),
		peer:   peer,
		conn:   conn,
		recv:   recv,
		inbox:  make(chan []byte, sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	if maxMessage > 0 {
		conn.SetReadLimit(maxMessage)
	}

	go w.writeLoop()
	go w.readLoop()

	return w
}

func (w *WS) ID() string             { return w.id }
func (w *WS) Peer() protocol.Address { return w.peer }
func (w *WS) Kind() string           { return KindWS }
func (w *WS) Done() <-chan struct{}  { return w.ctx.Done() }

// Send enqueues packet for the writer goroutine. It never blocks: a full
// outgoing buffer yields ErrSendBufferFull, a closed link ErrClosed.
func (w *WS) Send(packet []byte) error {
	return enqueue(w.ctx, w.inbox, packet)
}

// Close shuts the link down. Safe to call multiple times.
func (w *WS) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.cancel()
		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		err = w.conn.Close()
		util.LogDebug("[link %s] closed (peer %s)", w.id, w.peer)
	})
	return err
}

// writeLoop is the single writer of the connection.
func (w *WS) writeLoop() {
	for {
		select {
		case packet := <-w.inbox:
			if err := w.conn.WriteMessage(websocket.BinaryMessage, packet); err != nil {
				select {
				case <-w.ctx.Done():
				default:
					util.LogWarning("[link %s] write error: %v", w.id, err)
				}
				w.Close()
				return
			}
		case <-w.ctx.Done():
			return
		}
	}
}

// readLoop forwards every binary message to recv until the connection fails.
func (w *WS) readLoop() {
	defer w.Close()

	for {
		typ, data, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case <-w.ctx.Done():
				// Already shutting down.
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					util.LogWarning("[link %s] read error: %v", w.id, err)
				}
			}
			return
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		w.recv(w, data)
	}
}
