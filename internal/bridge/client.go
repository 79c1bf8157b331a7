package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
	"github.com/sftpdesk/sftpdesk/internal/constants"
)

// ErrClientClosed is returned by calls made after the connection ended.
var ErrClientClosed = errors.New("bridge connection closed")

// Client talks to a running bridge server over one connection. Calls may be
// issued concurrently; responses are matched by request id.
type Client struct {
	conn   net.Conn
	nextID atomic.Uint64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *Response
	events  chan *Message
	closed  bool
	done    chan struct{}
}

// Dial connects to the bridge socket at path.
func Dial(ctx context.Context, path string) (*Client, error) {
	dialer := net.Dialer{Timeout: constants.BridgeDialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bridge at %s: %w", path, err)
	}
	return newClient(conn), nil
}

func newClient(conn net.Conn) *Client {
	c := &Client{
		conn:    conn,
		pending: make(map[string]chan *Response),
		events:  make(chan *Message, constants.EventBusDefaultBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Events returns pushed events. Only populated after Subscribe; closed when
// the connection ends.
func (c *Client) Events() <-chan *Message {
	return c.events
}

// Subscribe asks the server to push events on this connection.
func (c *Client) Subscribe(ctx context.Context) error {
	return c.Call(ctx, CmdSubscribe, nil, nil)
}

// Call sends command with args and decodes the result into result, which
// may be nil. Error responses come back as *apperr.Error carrying the
// server's kind.
func (c *Client) Call(ctx context.Context, command string, args, result interface{}) error {
	req := Request{ID: strconv.FormatUint(c.nextID.Add(1), 10), Command: command}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("failed to encode arguments: %w", err)
		}
		req.Args = raw
	}

	ch := make(chan *Response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	if err := c.send(&req); err != nil {
		c.forget(req.ID)
		return err
	}

	select {
	case resp := <-ch:
		if resp == nil {
			return ErrClientClosed
		}
		if !resp.OK {
			return apperr.New(apperr.Kind(resp.Kind), command, "", errors.New(resp.Error))
		}
		if result == nil || resp.Result == nil {
			return nil
		}
		raw, err := json.Marshal(resp.Result)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, result)
	case <-ctx.Done():
		c.forget(req.ID)
		return ctx.Err()
	}
}

func (c *Client) send(req *Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// envelope is decoded first to tell responses from events.
type envelope struct {
	Type string `json:"type"`
	Response
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Client) readLoop() {
	defer c.shutdown()

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), constants.BridgeMaxLineBytes)
	for scanner.Scan() {
		var env envelope
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			continue
		}
		if env.Type == TypeEvent {
			select {
			case c.events <- &Message{Type: TypeEvent, Event: env.Event, Payload: env.Payload}:
			default:
			}
			continue
		}

		c.mu.Lock()
		ch := c.pending[env.ID]
		delete(c.pending, env.ID)
		c.mu.Unlock()
		if ch != nil {
			resp := env.Response
			resp.Type = env.Type
			ch <- &resp
		}
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	close(c.events)
	close(c.done)
}

// Close ends the connection.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}
