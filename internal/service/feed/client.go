// Package feed subscribes to a running service's live report feed.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"comove/internal/domain/models"
	"comove/pkg/logger"
)

// Client reads report summaries from a /ws/reports endpoint.
type Client struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	conn *websocket.Conn
}

func New(url string, reconnectDelay, pingInterval time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 2 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{url: url, reconnectDelay: reconnectDelay, pingInterval: pingInterval, log: log}
}

// Connect dials the feed.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.conn = conn
	c.log.Info("feed connected", logger.String("url", c.url))
	return nil
}

// Read streams summaries until ctx ends or the connection drops. Frames
// that are not summaries are skipped; summaries are dropped when the
// consumer falls behind.
func (c *Client) Read(ctx context.Context) (<-chan models.ReportSummary, <-chan error) {
	out := make(chan models.ReportSummary, 64)
	errs := make(chan error, 1)
	conn := c.conn
	if conn == nil {
		errs <- fmt.Errorf("feed not connected")
		close(out)
		close(errs)
		return out, errs
	}
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	go func() {
		defer close(out)
		defer close(errs)
		defer close(done)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("feed read: %w", err)
				}
				return
			}
			var s models.ReportSummary
			if err := json.Unmarshal(b, &s); err != nil || s.ID == "" {
				continue
			}
			select {
			case out <- s:
			default:
				c.log.Warn("feed backpressure, summary dropped", logger.String("id", s.ID))
			}
		}
	}()
	return out, errs
}

// Watch connects, streams summaries to fn, and reconnects after drops
// until ctx ends.
func (c *Client) Watch(ctx context.Context, fn func(models.ReportSummary)) error {
	for {
		if err := c.Connect(ctx); err != nil {
			c.log.Warn("feed connect failed", logger.Error(err))
		} else {
			sums, errs := c.Read(ctx)
			for s := range sums {
				fn(s)
			}
			if err := <-errs; err != nil {
				c.log.Warn("feed dropped", logger.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
