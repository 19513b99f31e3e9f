package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WorkerPath is the endpoint workers connect to.
const WorkerPath = "/worker"

const (
	writeWait  = 10 * time.Second
	closeGrace = time.Second
)

var (
	ErrTimeout   = errors.New("transport: receive timed out")
	ErrMalformed = errors.New("transport: malformed message")
	ErrClosed    = errors.New("transport: connection closed by peer")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Conn is a websocket carrying JSON messages. Sends are serialized; a single
// goroutine may receive.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Dial connects to the worker endpoint of the server at addr:port.
func Dial(ctx context.Context, addr string, port int) (*Conn, error) {
	url := "ws://" + net.JoinHostPort(addr, strconv.Itoa(port)) + WorkerPath
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewConn(ws), nil
}

// Upgrade accepts a worker connection on an HTTP request.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(ws), nil
}

func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// Send writes msg as one text frame.
func (c *Conn) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Kind, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", msg.Kind, err)
	}
	return nil
}

// Receive reads one message. It fails with ErrTimeout when nothing arrives
// within timeout; a zero timeout waits until ctx is done. After a timeout
// the connection can no longer be read.
func (c *Conn) Receive(ctx context.Context, timeout time.Duration) (Message, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return Message{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Message{}, ctxErr
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return Message{}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return Message{}, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return Message{}, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Kind == "" {
		return Message{}, fmt.Errorf("%w: missing kind", ErrMalformed)
	}
	return msg, nil
}

// Close sends a normal closure frame and closes the socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	c.mu.Unlock()
	return c.ws.Close()
}
