package client

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"backend-sessionmaps/internal/stream"

	"github.com/gorilla/websocket"
)

// ErrSessionEnded stops the run loop for good: the server terminated the
// session, there is nothing to reconnect to.
var ErrSessionEnded = errors.New("session ended")

const (
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffMax  = 30 * time.Second
)

// Config drives a channel client. Only URL, Token and SessionID are
// required; callbacks are optional.
type Config struct {
	URL       string
	Token     string
	SessionID string

	BackoffBase time.Duration
	BackoffMax  time.Duration

	// OnConnect fires after each successful auth+join, including
	// reconnects. Callers resync state here (fetch the session snapshot).
	OnConnect func()
	// OnDisconnect fires when the channel drops and a reconnect is about
	// to be scheduled.
	OnDisconnect func(error)
	// OnUpdate fires for every member:locationUpdate.
	OnUpdate func(stream.LocationUpdate)
	// OnEnvelope fires for every other server push (pois, messages,
	// membership, routes).
	OnEnvelope func(envelopeType string, data json.RawMessage)
}

// Client maintains one live channel to a shared-map session, replaying the
// auth+join handshake after every drop with exponential backoff.
type Client struct {
	cfg   Config
	paths *Reconstructor

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(cfg Config) *Client {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = defaultBackoffMax
	}
	return &Client{cfg: cfg, paths: NewReconstructor()}
}

// Paths exposes the observer-side path reconstructor.
func (c *Client) Paths() *Reconstructor { return c.paths }

// Run connects and keeps the channel alive until ctx is cancelled or the
// session ends. Geolocation silence is normal: the loop never times out
// waiting for traffic.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		handshook, err := c.runOnce(ctx)
		if errors.Is(err, ErrSessionEnded) || ctx.Err() != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		// a completed handshake resets the backoff, so an old client with a
		// history of drops does not crawl toward the cap forever
		if handshook {
			attempt = 0
		}
		if c.cfg.OnDisconnect != nil {
			c.cfg.OnDisconnect(err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(nextBackoff(attempt, c.cfg.BackoffBase, c.cfg.BackoffMax)):
		}
		attempt++
	}
}

func (c *Client) runOnce(ctx context.Context) (handshook bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	if err := c.write(stream.Inbound{Type: stream.TypeAuth, Token: c.cfg.Token}); err != nil {
		return false, err
	}
	if err := c.write(stream.Inbound{Type: stream.TypeJoin, SessionID: c.cfg.SessionID}); err != nil {
		return false, err
	}
	handshook = true
	if c.cfg.OnConnect != nil {
		c.cfg.OnConnect()
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return handshook, err
		}

		var env struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}

		switch env.Type {
		case stream.TypeSessionEnded:
			return handshook, ErrSessionEnded
		case stream.TypeLocationUpdate:
			var update stream.LocationUpdate
			if err := json.Unmarshal(env.Data, &update); err != nil {
				continue
			}
			c.paths.Observe(update.UserID, update.Latitude, update.Longitude)
			if c.cfg.OnUpdate != nil {
				c.cfg.OnUpdate(update)
			}
		case stream.TypeMemberLeft:
			var data struct {
				UserID string `json:"userId"`
			}
			if err := json.Unmarshal(env.Data, &data); err == nil && data.UserID != "" {
				c.paths.Forget(data.UserID)
			}
			if c.cfg.OnEnvelope != nil {
				c.cfg.OnEnvelope(env.Type, env.Data)
			}
		default:
			if c.cfg.OnEnvelope != nil {
				c.cfg.OnEnvelope(env.Type, env.Data)
			}
		}
	}
}

// SendLocation pushes one fix. Fire-and-forget: a lost sample is superseded
// by the next one.
func (c *Client) SendLocation(lat, lng float64, accuracy, heading *float64) error {
	return c.write(stream.Inbound{
		Type:     stream.TypeLocation,
		Lat:      lat,
		Lng:      lng,
		Accuracy: accuracy,
		Heading:  heading,
	})
}

// Leave tells the server to remove this member and archive their path.
func (c *Client) Leave() error {
	return c.write(stream.Inbound{Type: stream.TypeLeave})
}

func (c *Client) write(env stream.Inbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	return c.conn.WriteJSON(env)
}

// nextBackoff doubles from base up to max, with up to 50% jitter to keep a
// fleet of clients from reconnecting in lockstep.
func nextBackoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}
