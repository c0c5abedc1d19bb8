package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	readLimit    = 64 * 1024
	pongTimeout  = 60 * time.Second
	rendererSlot = 32
)

// CommandHandler answers actions sent by a renderer. A nil reply sends nothing back.
type CommandHandler interface {
	Handle(ctx context.Context, rendererID string, raw []byte) ([]byte, error)
}

// Renderer is one subscribed session view. When its queue is full a state snapshot is dropped,
// since the next one replaces it, while navigation, alerts and replies evict the oldest queued message.
type Renderer struct {
	id           string
	conn         *websocket.Conn
	queue        chan []byte
	commands     CommandHandler
	writeTimeout time.Duration
	logger       *zap.Logger
	detach       func(id string)

	closeOnce sync.Once
	closed    chan struct{}
}

func newRenderer(id string, conn *websocket.Conn, commands CommandHandler, writeTimeout time.Duration, logger *zap.Logger, detach func(string)) *Renderer {
	return &Renderer{
		id:           id,
		conn:         conn,
		queue:        make(chan []byte, rendererSlot),
		commands:     commands,
		writeTimeout: writeTimeout,
		logger:       logger.With(zap.String("renderer_id", id)),
		detach:       detach,
		closed:       make(chan struct{}),
	}
}

// ID is assigned when the socket is upgraded.
func (r *Renderer) ID() string {
	return r.id
}

// Serve runs the writer in the background and reads commands until the socket closes.
func (r *Renderer) Serve(ctx context.Context) {
	go r.writeLoop(ctx)
	r.readLoop(ctx)
}

func (r *Renderer) readLoop(ctx context.Context) {
	defer r.Close()
	r.conn.SetReadLimit(readLimit)
	r.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	r.conn.SetPongHandler(func(string) error {
		return r.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, raw, err := r.conn.ReadMessage()
		if err != nil {
			r.logger.Info("renderer went away", zap.Error(err))
			return
		}
		if r.commands == nil {
			continue
		}
		reply, err := r.commands.Handle(ctx, r.id, raw)
		if err != nil {
			r.logger.Warn("renderer command failed", zap.Error(err))
		}
		if reply != nil {
			r.Send(reply)
		}
	}
}

func (r *Renderer) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-r.closed:
			_ = r.write(websocket.CloseMessage, []byte{})
			return
		case msg := <-r.queue:
			if err := r.write(websocket.TextMessage, msg); err != nil {
				r.Close()
				return
			}
		}
	}
}

// SendState queues a state snapshot, dropping it when the renderer is behind.
func (r *Renderer) SendState(msg []byte) {
	if r.isClosed() {
		return
	}
	select {
	case r.queue <- msg:
	default:
		r.logger.Debug("renderer behind, state snapshot skipped")
	}
}

// Send queues a message the renderer must see, evicting the oldest queued one when full.
func (r *Renderer) Send(msg []byte) {
	if r.isClosed() {
		return
	}
	select {
	case r.queue <- msg:
		return
	default:
	}
	select {
	case <-r.queue:
	default:
	}
	select {
	case r.queue <- msg:
	default:
		r.logger.Warn("renderer queue saturated, message dropped")
	}
}

// Ping writes a ping control frame; gorilla allows it alongside the writer.
func (r *Renderer) Ping() error {
	return r.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(r.writeTimeout))
}

// Close detaches the renderer from the hub and closes the socket, once.
func (r *Renderer) Close() {
	r.closeOnce.Do(func() {
		close(r.closed)
		if r.conn != nil {
			_ = r.conn.Close()
		}
		if r.detach != nil {
			r.detach(r.id)
		}
	})
}

func (r *Renderer) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

func (r *Renderer) write(messageType int, data []byte) error {
	r.conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
	return r.conn.WriteMessage(messageType, data)
}
