// Package session keeps the live SFTP channels, keyed by the caller-chosen
// session id. Presence in the registry is what "connected" means.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
	"github.com/sftpdesk/sftpdesk/internal/events"
	"github.com/sftpdesk/sftpdesk/internal/logging"
	"github.com/sftpdesk/sftpdesk/internal/metrics"
	"github.com/sftpdesk/sftpdesk/internal/models"
	"github.com/sftpdesk/sftpdesk/internal/remote"
)

// Session is one registered, authenticated channel.
type Session struct {
	ID          string
	Name        string
	Host        string
	Port        uint16
	Username    string
	ConnectedAt time.Time

	channel remote.Channel
}

// Channel returns the borrowed channel. Callers must not close it.
func (s *Session) Channel() remote.Channel { return s.channel }

// Summary describes the session without its channel.
func (s *Session) Summary() models.SessionSummary {
	return models.SessionSummary{
		ID:          s.ID,
		Name:        s.Name,
		Host:        s.Host,
		Port:        s.Port,
		Username:    s.Username,
		ConnectedAt: s.ConnectedAt,
	}
}

func (s *Session) label() string {
	return fmt.Sprintf("%s@%s", s.Username, models.ConnectParams{Host: s.Host, Port: s.Port}.Addr())
}

// Registry maps session ids to channels. The lock only guards the map:
// dialing, closing and remote calls all happen outside it.
type Registry struct {
	dialer   remote.Dialer
	eventBus *events.EventBus
	logger   *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. eventBus may be nil.
func NewRegistry(dialer remote.Dialer, eventBus *events.EventBus, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		dialer:   dialer,
		eventBus: eventBus,
		logger:   logger.Component("session"),
		sessions: make(map[string]*Session),
	}
}

// TestConnection authenticates and immediately closes the channel. The
// registry is not touched.
func (r *Registry) TestConnection(ctx context.Context, params models.ConnectParams) (string, error) {
	if params.Host == "" {
		return "", apperr.Invalid("test connection", "host is required")
	}
	ch, err := r.dialer.Dial(ctx, params)
	metrics.RecordConnectAttempt("test", err)
	if err != nil {
		r.logger.Debug().Err(err).Str("addr", params.Addr()).Msg("connection test failed")
		return "", err
	}
	if cerr := ch.Close(); cerr != nil {
		r.logger.Debug().Err(cerr).Msg("closing test channel")
	}
	return "Connection test succeeded", nil
}

// Connect authenticates and stores the channel under info.ID, replacing and
// closing any previous session with that id.
func (r *Registry) Connect(ctx context.Context, info models.SessionInfo) (string, error) {
	if info.ID == "" {
		return "", apperr.Invalid("connect", "session id is required")
	}
	if info.Host == "" {
		return "", apperr.Invalid("connect", "host is required")
	}

	ch, err := r.dialer.Dial(ctx, info.Params())
	metrics.RecordConnectAttempt("connect", err)
	if err != nil {
		r.logger.Warn().Err(err).Str("session", info.ID).Msg("connect failed")
		return "", err
	}

	sess := &Session{
		ID:          info.ID,
		Name:        info.Name,
		Host:        info.Host,
		Port:        info.Port,
		Username:    info.Username,
		ConnectedAt: time.Now(),
		channel:     ch,
	}

	r.mu.Lock()
	prev := r.sessions[info.ID]
	r.sessions[info.ID] = sess
	count := len(r.sessions)
	r.mu.Unlock()

	if prev != nil {
		r.logger.Info().Str("session", info.ID).Msg("replacing existing session")
		r.closeChannel(prev)
	}
	metrics.SetSessionsActive(count)

	r.logger.Info().Str("session", info.ID).Str("remote", sess.label()).Msg("session connected")
	if r.eventBus != nil {
		r.eventBus.PublishSession(events.EventSessionConnected, sess.ID, sess.Name, sess.Host, sess.Username)
	}
	return info.ID, nil
}

// Disconnect removes and closes the session. Unknown ids are not an error.
func (r *Registry) Disconnect(sessionID string) {
	r.mu.Lock()
	sess := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	count := len(r.sessions)
	r.mu.Unlock()

	if sess == nil {
		return
	}
	r.closeChannel(sess)
	metrics.SetSessionsActive(count)

	r.logger.Info().Str("session", sessionID).Msg("session disconnected")
	if r.eventBus != nil {
		r.eventBus.PublishSession(events.EventSessionDisconnected, sess.ID, sess.Name, sess.Host, sess.Username)
	}
}

// Get borrows a session for one operation. op is used in the not-found error.
func (r *Registry) Get(op, sessionID string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.SessionNotFound(op, sessionID)
	}
	return sess, nil
}

// ConnectionInfo reports that the session exists and, best effort, the
// remote working directory. Remote failures still yield a message.
func (r *Registry) ConnectionInfo(ctx context.Context, sessionID string) (string, error) {
	sess, err := r.Get("connection info", sessionID)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Sprintf("Connection active (%s), status query aborted: %v", sess.label(), err), nil
	}

	cwd, err := sess.channel.RealPath(".")
	if err != nil {
		return fmt.Sprintf("Connection active (%s), but the working directory could not be read: %v", sess.label(), err), nil
	}
	return fmt.Sprintf("Connection active (%s), current directory: %s", sess.label(), cwd), nil
}

// Sessions returns summaries ordered by id.
func (r *Registry) Sessions() []models.SessionSummary {
	r.mu.RLock()
	out := make([]models.SessionSummary, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Summary())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CloseAll disconnects every session. Used at engine shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range all {
		r.closeChannel(sess)
	}
	metrics.SetSessionsActive(0)
}

func (r *Registry) closeChannel(sess *Session) {
	if err := sess.channel.Close(); err != nil {
		r.logger.Debug().Err(err).Str("session", sess.ID).Msg("closing channel")
	}
}
