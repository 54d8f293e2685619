// Package feed subscribes to the realtime change channel of the remote store.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"aquaflow-backend/config"
	"aquaflow-backend/internal/parse"
	"aquaflow-backend/internal/store"
	"aquaflow-backend/internal/syncer"
)

// Frame types on the wire.
const (
	FrameSubscribe = "subscribe"
	FrameChange    = "change"
)

// Frame is one JSON message exchanged with the realtime endpoint.
type Frame struct {
	Type   string          `json:"type"`
	UnitID string          `json:"unit_id"`
	Record json.RawMessage `json:"record,omitempty"`
}

// Client opens websocket subscriptions against the realtime endpoint.
type Client struct {
	cfg     config.RealtimeConfig
	dialer  *websocket.Dialer
	backoff func(retry int) time.Duration
}

// NewClient creates a feed client for the configured endpoint.
func NewClient(cfg config.RealtimeConfig) *Client {
	return &Client{
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		backoff: Backoff,
	}
}

// Subscription is a live feed for one unit. It reconnects until closed.
type Subscription struct {
	unitID string
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	conn *websocket.Conn
}

// Subscribe starts a subscription for unitID. onConnect runs after every
// successful (re)connect, before any change frame of that connection. Every
// change frame for the unit is decoded and handed to onChange; connection
// failures go to onError and are retried with exponential backoff.
func (c *Client) Subscribe(ctx context.Context, unitID string, onConnect func(), onChange func(store.Payload), onError func(error)) (syncer.Subscription, error) {
	if c.cfg.URL == "" {
		return nil, errors.New("realtime url is not configured")
	}
	if onChange == nil {
		return nil, errors.New("onChange handler is required")
	}
	if onConnect == nil {
		onConnect = func() {}
	}
	if onError == nil {
		onError = func(error) {}
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{unitID: unitID, cancel: cancel}
	sub.wg.Add(1)
	go sub.runLoop(ctx, c, onConnect, onChange, onError)
	return sub, nil
}

// Close stops the subscription and waits for its goroutine to exit.
func (s *Subscription) Close() error {
	s.cancel()
	s.closeConn()
	s.wg.Wait()
	return nil
}

func (s *Subscription) runLoop(ctx context.Context, c *Client, onConnect func(), onChange func(store.Payload), onError func(error)) {
	defer s.wg.Done()
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.connect(ctx, c); err != nil {
			if ctx.Err() != nil {
				return
			}
			onError(fmt.Errorf("connect (attempt %d): %w", retry+1, err))
			delay := c.backoff(retry)
			retry++

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		onConnect()
		if ctx.Err() != nil {
			s.closeConn()
			return
		}
		err := s.process(ctx, c.cfg.ReadTimeout, onChange)
		if ctx.Err() != nil {
			return
		}
		onError(fmt.Errorf("connection lost: %w", err))
	}
}

func (s *Subscription) connect(ctx context.Context, c *Client) error {
	header := make(http.Header)
	for k, v := range c.cfg.Headers {
		header.Set(k, v)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	frame, err := json.Marshal(Frame{Type: FrameSubscribe, UnitID: s.unitID})
	if err != nil {
		conn.Close()
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		conn.Close()
		return fmt.Errorf("send subscribe frame: %w", err)
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		conn.Close()
		return ctx.Err()
	}
	s.conn = conn
	s.mu.Unlock()

	log.Printf("Push feed connected for unit %s", s.unitID)
	return nil
}

func (s *Subscription) process(ctx context.Context, readTimeout time.Duration, onChange func(store.Payload)) error {
	defer s.closeConn()
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return errors.New("connection closed")
		}

		if readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		payload, ok := s.decode(msg)
		if !ok {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			onChange(payload)
		}
	}
}

// decode returns the record of a change frame addressed to this unit.
func (s *Subscription) decode(msg []byte) (store.Payload, bool) {
	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		log.Printf("Ignoring malformed feed frame for unit %s: %v", s.unitID, err)
		return nil, false
	}
	if frame.Type != FrameChange || len(frame.Record) == 0 {
		return nil, false
	}
	if frame.UnitID != "" && !parse.SameUnit(frame.UnitID, s.unitID) {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(frame.Record))
	dec.UseNumber()
	var payload store.Payload
	if err := dec.Decode(&payload); err != nil || payload == nil {
		log.Printf("Ignoring change frame with unreadable record for unit %s", s.unitID)
		return nil, false
	}
	return payload, true
}

func (s *Subscription) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
