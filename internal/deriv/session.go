package deriv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"multibot/internal/config"
	"multibot/internal/logger"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// wireConn is the subset of *websocket.Conn the session uses. Tests swap
// in scripted fakes.
type wireConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

type dialFunc func(ctx context.Context, url string) (wireConn, error)

// Session owns the single authenticated websocket connection to the
// broker. Sends are strictly sequential: responses carry no correlation id
// and are matched by arrival order, so the session permits exactly one
// outstanding request. A broken connection is reconnected with exponential
// backoff and the in-flight request is retried once, transparently.
type Session struct {
	url         string
	token       string
	maxAttempts int
	log         *logger.Logger

	mu        sync.Mutex
	conn      wireConn
	connected bool
	attempts  int

	dial  dialFunc
	sleep func(ctx context.Context, d time.Duration) error
}

func NewSession(cfg config.DerivConfig, log *logger.Logger) *Session {
	return &Session{
		url:         fmt.Sprintf("%s?app_id=%s", cfg.Endpoint, cfg.AppID),
		token:       cfg.APIToken,
		maxAttempts: cfg.MaxReconnectAttempts,
		log:         log,
		dial:        gorillaDial,
		sleep:       sleepCtx,
	}
}

func gorillaDial(ctx context.Context, url string) (wireConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// BackoffDelay returns the reconnect delay for the given attempt number
// (1-based): min(2^attempt, 30) seconds.
func BackoffDelay(attempt int) time.Duration {
	if attempt >= 5 {
		return 30 * time.Second
	}
	return time.Duration(1<<attempt) * time.Second
}

// Connect dials and authorizes the session. It resets the reconnect
// budget on success.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dialAndAuthorize(ctx); err != nil {
		return err
	}
	s.attempts = 0
	s.log.Info("session connected", "url", s.url)
	return nil
}

// Disconnect closes the connection. Subsequent sends will reconnect.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown()
	s.log.Info("session disconnected")
}

// Send marshals the request, delivers it over the connection, and returns
// the parsed response envelope. An error carried in the envelope comes
// back as *APIError. On a broken connection the session reconnects with
// backoff and retries the request exactly once; a second failure
// propagates.
func (s *Session) Send(ctx context.Context, req any) (gjson.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshaling request: %w", err)
	}
	if !s.connected {
		if err := s.reconnect(ctx); err != nil {
			return gjson.Result{}, err
		}
	}
	raw, err := s.exchange(payload)
	if err == nil {
		return s.decode(raw)
	}

	s.log.Warn("connection lost during request, reconnecting", "error", err)
	s.teardown()
	if rerr := s.reconnect(ctx); rerr != nil {
		return gjson.Result{}, rerr
	}
	raw, err = s.exchange(payload)
	if err != nil {
		s.teardown()
		return gjson.Result{}, fmt.Errorf("request failed after reconnect: %w", err)
	}
	return s.decode(raw)
}

// exchange performs one write/read round trip. Callers hold s.mu.
func (s *Session) exchange(payload []byte) ([]byte, error) {
	if s.conn == nil {
		return nil, ErrNotConnected
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, err
	}
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Session) decode(raw []byte) (gjson.Result, error) {
	envelope := gjson.ParseBytes(raw)
	if errNode := envelope.Get("error"); errNode.Exists() {
		return envelope, &APIError{
			Code:    errNode.Get("code").String(),
			Message: errNode.Get("message").String(),
		}
	}
	return envelope, nil
}

// reconnect runs the backoff loop until a dial+authorize succeeds or the
// attempt budget is exhausted. Authorization failure is terminal and is
// never retried. Callers hold s.mu.
func (s *Session) reconnect(ctx context.Context) error {
	for s.attempts < s.maxAttempts {
		s.attempts++
		delay := BackoffDelay(s.attempts)
		s.log.Warn("reconnecting", "attempt", s.attempts, "max", s.maxAttempts, "delay", delay)
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
		err := s.dialAndAuthorize(ctx)
		if err == nil {
			s.attempts = 0
			s.log.Info("reconnected")
			return nil
		}
		var authErr *AuthError
		if errors.As(err, &authErr) {
			s.teardown()
			return err
		}
		s.log.Warn("reconnect attempt failed", "attempt", s.attempts, "error", err)
	}
	s.attempts = 0
	return ErrRetriesExhausted
}

// dialAndAuthorize replaces the connection and authorizes it. Callers
// hold s.mu.
func (s *Session) dialAndAuthorize(ctx context.Context) error {
	s.teardown()
	conn, err := s.dial(ctx, s.url)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", s.url, err)
	}
	s.conn = conn
	payload, err := json.Marshal(authorizeRequest{Authorize: s.token})
	if err != nil {
		return err
	}
	raw, err := s.exchange(payload)
	if err != nil {
		s.teardown()
		return fmt.Errorf("authorize exchange: %w", err)
	}
	envelope := gjson.ParseBytes(raw)
	if errNode := envelope.Get("error"); errNode.Exists() {
		s.teardown()
		return &AuthError{
			Code:    errNode.Get("code").String(),
			Message: errNode.Get("message").String(),
		}
	}
	if !envelope.Get("authorize").Exists() {
		s.teardown()
		return &AuthError{Message: "unexpected authorize response"}
	}
	s.connected = true
	return nil
}

// teardown closes and forgets the connection. Callers hold s.mu.
func (s *Session) teardown() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.connected = false
}
