// Package stream consumes a remote push-event feed over WebSocket. Go has no
// self-reconnecting stream primitive, so the client owns capped exponential
// backoff and reports open/error transitions to a ConnectionSupervisor; the
// supervisor itself never retries.
package stream

import (
	"context"
	"time"

	md "metering_dashboard"
	"metering_dashboard/internal/logger"
	"metering_dashboard/internal/service"

	"github.com/gorilla/websocket"
)

const (
	baseBackoff = 500 * time.Millisecond
	maxBackoff  = 30 * time.Second
	readLimit   = 1 << 16 // 64 KB
)

// Client dials a feed URL, decodes wire events, and delivers them in arrival
// order on Events(). It reconnects until Close is called.
type Client struct {
	url    string
	sup    *service.ConnectionSupervisor
	log    *logger.Logger
	dialer *websocket.Dialer

	events chan md.PushEvent
	cancel context.CancelFunc
	done   chan struct{}
}

func NewClient(url string, sup *service.ConnectionSupervisor, log *logger.Logger) *Client {
	return &Client{
		url:    url,
		sup:    sup,
		log:    log,
		dialer: websocket.DefaultDialer,
		events: make(chan md.PushEvent, 64),
		done:   make(chan struct{}),
	}
}

// Events is the in-order decoded event stream. Closed after Close.
func (c *Client) Events() <-chan md.PushEvent {
	return c.events
}

// Start launches the connect/read loop.
func (c *Client) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(runCtx)
}

// Close tears the subscription down: stops the loop, closes the transport,
// marks the supervisor disconnected, and closes the event channel.
func (c *Client) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
	c.sup.Closed()
	close(c.events)
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	backoff := baseBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		c.sup.Connecting()
		conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			c.sup.Errored()
			if c.log != nil {
				c.log.Warnw("feed dial failed", "url", c.url, "err", err, "retry_in", backoff)
			}
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		c.sup.Opened()
		backoff = baseBackoff
		c.readLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.sup.Errored()
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(readLimit)

	// Unblock ReadMessage when the context ends.
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
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.log != nil && ctx.Err() == nil {
				c.log.Infow("feed read closed", "err", err)
			}
			return
		}
		ev, err := md.DecodePushEvent(data)
		if err != nil {
			if c.log != nil {
				c.log.Warnw("feed decode failed", "err", err)
			}
			continue
		}
		if _, ok := ev.(md.PingEvent); ok {
			// Ping only refreshes connected status.
			c.sup.Opened()
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
