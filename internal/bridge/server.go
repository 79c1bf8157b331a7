package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
	"github.com/sftpdesk/sftpdesk/internal/constants"
	"github.com/sftpdesk/sftpdesk/internal/core"
	"github.com/sftpdesk/sftpdesk/internal/events"
	"github.com/sftpdesk/sftpdesk/internal/logging"
	"github.com/sftpdesk/sftpdesk/internal/metrics"
)

// forwarded lists the bus events pushed to subscribed clients.
var forwarded = []events.EventType{
	events.EventDownloadProgress,
	events.EventUploadProgress,
	events.EventTransferQueued,
	events.EventTransferStarted,
	events.EventTransferCompleted,
	events.EventTransferFailed,
	events.EventTransferCancelled,
	events.EventSessionConnected,
	events.EventSessionDisconnected,
	events.EventLog,
}

// Server accepts bridge clients on a listener. Requests on one connection
// run concurrently so a cancel_transfer is never stuck behind the transfer
// it cancels.
type Server struct {
	handler       *Handler
	eventBus      *events.EventBus
	logger        *logging.Logger
	eventInterval time.Duration

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[*clientConn]struct{}
}

// NewServer creates a server for engine. Call Start with a listener to
// begin serving.
func NewServer(engine *core.Engine) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handler:       NewHandler(engine),
		eventBus:      engine.Events(),
		logger:        engine.Logger().Component("bridge"),
		eventInterval: constants.BridgeEventInterval,
		ctx:           ctx,
		cancel:        cancel,
		conns:         make(map[*clientConn]struct{}),
	}
}

// Start begins accepting connections on the given listener.
func (s *Server) Start(listener net.Listener) {
	s.listener = listener
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("bridge listening")

	s.wg.Add(1)
	go s.acceptLoop()
}

// Stop closes the listener and every client, cancels in-flight requests
// and waits for them to return.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for c := range s.conns {
		c.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("bridge stopped")
}

// Done returns a channel that is closed when the server is shutting down.
func (s *Server) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn().Err(err).Msg("accept failed")
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// clientConn serializes writes from request goroutines and the event
// forwarder onto one connection.
type clientConn struct {
	conn net.Conn
	mu   sync.Mutex
}

func (c *clientConn) write(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(constants.BridgeWriteTimeout))
	_, err = c.conn.Write(data)
	return err
}

func (s *Server) track(c *clientConn, add bool) {
	s.mu.Lock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
	n := len(s.conns)
	s.mu.Unlock()
	metrics.SetBridgeClients(n)
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	c := &clientConn{conn: conn}
	s.track(c, true)
	defer s.track(c, false)

	var (
		requests sync.WaitGroup
		sub      <-chan events.Event
		fwdDone  chan struct{}
	)
	defer func() {
		if sub != nil {
			s.eventBus.Unsubscribe(sub)
			<-fwdDone
		}
		requests.Wait()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), constants.BridgeMaxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Debug().Err(err).Msg("malformed request")
			_ = c.write(NewErrorResponse("", string(apperr.KindInvalidArgument), "invalid request format"))
			continue
		}

		if req.Command == CmdSubscribe {
			if sub == nil {
				sub = s.eventBus.Subscribe(forwarded...)
				fwdDone = make(chan struct{})
				go s.forward(c, sub, fwdDone)
			}
			metrics.RecordBridgeRequest(CmdSubscribe, nil)
			_ = c.write(NewOKResponse(req.ID, "subscribed"))
			continue
		}

		requests.Add(1)
		go func(req Request) {
			defer requests.Done()
			resp := s.handler.HandleRequest(s.ctx, &req)
			if err := c.write(resp); err != nil {
				s.logger.Debug().Err(err).Str("command", req.Command).Msg("response not delivered")
			}
		}(req)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug().Err(err).Msg("connection read ended")
	}
}

// forward pushes bus events to one client until the subscription closes.
// Non-terminal progress events are coalesced per transfer; every other
// event is sent as is.
func (s *Server) forward(c *clientConn, sub <-chan events.Event, done chan<- struct{}) {
	defer close(done)

	last := make(map[string]time.Time)
	broken := false
	for ev := range sub {
		if broken {
			continue // drain until Unsubscribe closes the channel
		}
		if pe, ok := ev.(*events.ProgressEvent); ok {
			if pe.Terminal() {
				delete(last, pe.TransferID)
			} else if s.throttled(last, pe.TransferID, ev.Timestamp()) {
				continue
			}
		}

		msg, ok := eventMessage(ev)
		if !ok {
			continue
		}
		if err := c.write(msg); err != nil {
			s.logger.Debug().Err(err).Msg("event forwarding stopped")
			broken = true
		}
	}
}

func (s *Server) throttled(last map[string]time.Time, key string, now time.Time) bool {
	if prev, ok := last[key]; ok && now.Sub(prev) < s.eventInterval {
		return true
	}
	last[key] = now
	return false
}
