// Package queue publishes document-queued events to NATS JetStream for
// downstream processing workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/atlasingest/document-crawler/pkg/logger"
)

// StreamDocuments is the JetStream stream holding document events.
const StreamDocuments = "DOCUMENTS"

// SubjectDocumentQueued is where queued-document events are published.
const SubjectDocumentQueued = "documents.queued"

// Publisher is the interface the document pipeline dispatches through.
type Publisher interface {
	PublishDocumentQueued(ctx context.Context, event DocumentQueuedMessage) error
}

// DocumentQueuedMessage announces a stored document awaiting processing.
type DocumentQueuedMessage struct {
	EventID     string    `json:"event_id"`
	DocumentKey string    `json:"document_key"`
	SourceURL   string    `json:"source_url"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CrawlerName string    `json:"crawler_name"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewDocumentQueuedMessage creates a message with a generated event ID.
func NewDocumentQueuedMessage(documentKey, sourceURL, contentType, crawlerName string, size int64) DocumentQueuedMessage {
	return DocumentQueuedMessage{
		EventID:     uuid.New().String(),
		DocumentKey: documentKey,
		SourceURL:   sourceURL,
		ContentType: contentType,
		Size:        size,
		CrawlerName: crawlerName,
		Timestamp:   time.Now().UTC(),
	}
}

// Validate checks if the message has required fields.
func (m *DocumentQueuedMessage) Validate() error {
	if m.EventID == "" {
		return errors.New("event_id is required")
	}
	if m.DocumentKey == "" {
		return errors.New("document_key is required")
	}
	if m.SourceURL == "" {
		return errors.New("source_url is required")
	}
	return nil
}

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL            string
	ClientName     string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// DefaultNATSConfig returns a sensible default configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:            nats.DefaultURL,
		ClientName:     "document-crawler",
		MaxReconnects:  -1, // Infinite reconnects
		ReconnectWait:  2 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
}

// NATSClient wraps a NATS connection and JetStream context.
type NATSClient struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	config NATSConfig
	log    *logger.Logger
	mu     sync.RWMutex
}

// NewNATSClient creates a new NATS client with JetStream support.
func NewNATSClient(cfg NATSConfig, log *logger.Logger) (*NATSClient, error) {
	if log == nil {
		log = logger.Default()
	}

	client := &NATSClient{
		config: cfg,
		log:    log.WithComponent("queue"),
	}

	if err := client.connect(); err != nil {
		return nil, err
	}

	return client, nil
}

// connect establishes the NATS connection with reconnect handlers.
func (c *NATSClient) connect() error {
	opts := []nats.Option{
		nats.Name(c.config.ClientName),
		nats.MaxReconnects(c.config.MaxReconnects),
		nats.ReconnectWait(c.config.ReconnectWait),
		nats.Timeout(c.config.ConnectTimeout),
		nats.DisconnectErrHandler(func(conn *nats.Conn, err error) {
			if err != nil {
				c.log.Warn("disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			c.log.Info("reconnected to NATS", "url", conn.ConnectedUrl())
		}),
		nats.ClosedHandler(func(conn *nats.Conn) {
			c.log.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(c.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.js = js
	c.mu.Unlock()

	c.log.Info("connected to NATS", "url", c.config.URL)
	return nil
}

// SetupStreams creates the required JetStream streams.
func (c *NATSClient) SetupStreams(ctx context.Context) error {
	cfg := nats.StreamConfig{
		Name:        StreamDocuments,
		Description: "Crawled document events",
		Subjects:    []string{"documents.>"},
		Storage:     nats.FileStorage,
		Retention:   nats.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour, // Keep for 7 days
		MaxMsgs:     -1,
		MaxBytes:    -1,
		Replicas:    1,
		Discard:     nats.DiscardOld,
	}

	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	_, err := js.StreamInfo(cfg.Name)
	if err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			_, err = js.AddStream(&cfg)
			if err != nil {
				return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
			}
			c.log.Info("created stream", "stream", cfg.Name)
			return nil
		}
		return fmt.Errorf("failed to get stream info for %s: %w", cfg.Name, err)
	}

	_, err = js.UpdateStream(&cfg)
	if err != nil {
		c.log.Warn("failed to update stream", "stream", cfg.Name, "error", err)
	}
	return nil
}

// PublishDocumentQueued publishes a queued-document event. Routing
// attributes travel as message headers alongside the JSON body.
func (c *NATSClient) PublishDocumentQueued(ctx context.Context, event DocumentQueuedMessage) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := nats.NewMsg(SubjectDocumentQueued)
	msg.Data = data
	msg.Header.Set("crawler-name", event.CrawlerName)
	msg.Header.Set("content-type", event.ContentType)
	msg.Header.Set("size", strconv.FormatInt(event.Size, 10))

	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	_, err = js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", SubjectDocumentQueued, err)
	}

	c.log.Debug("published event", "subject", SubjectDocumentQueued, "document_key", event.DocumentKey)
	return nil
}

// Conn returns the underlying NATS connection.
func (c *NATSClient) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// IsConnected returns true if connected to NATS.
func (c *NATSClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Drain flushes pending messages and gracefully shuts the connection down.
func (c *NATSClient) Drain() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			return fmt.Errorf("failed to drain connection: %w", err)
		}
	}
	return nil
}

// Close closes the NATS connection.
func (c *NATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.js = nil
	}

	c.log.Info("closed NATS connection")
	return nil
}
