// Package report delivers the run summary to whoever consumes it:
// a JSON file next to the output, a NATS subject, or both.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"commentharvest/pkg/logger"
	"commentharvest/pkg/models"

	"github.com/nats-io/nats.go"
)

// Publisher delivers a finished run's summary
type Publisher interface {
	Publish(ctx context.Context, summary *models.Summary) error
	Close() error
}

// FilePublisher writes the summary as indented JSON, replacing the file
// atomically
type FilePublisher struct {
	Path string
}

// Publish writes the summary file
func (p *FilePublisher) Publish(_ context.Context, summary *models.Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(p.Path), 0755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}

	tempPath := p.Path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if err := os.Rename(tempPath, p.Path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace summary: %w", err)
	}
	return nil
}

// Close is a no-op
func (p *FilePublisher) Close() error { return nil }

// natsConn is the part of *nats.Conn the publisher uses
type natsConn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSPublisher publishes the summary JSON on a subject
type NATSPublisher struct {
	conn    natsConn
	subject string
	logger  logger.Logger
}

// NewNATSPublisher connects to url
func NewNATSPublisher(url, subject string, log logger.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("commentharvest"),
		nats.Timeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return newNATSPublisher(nc, subject, log), nil
}

func newNATSPublisher(conn natsConn, subject string, log logger.Logger) *NATSPublisher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &NATSPublisher{conn: conn, subject: subject, logger: log}
}

// Publish sends the summary and waits for the server to acknowledge the flush
func (p *NATSPublisher) Publish(ctx context.Context, summary *models.Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish summary: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush summary: %w", err)
	}

	p.logger.DebugWithFields("Summary published", map[string]interface{}{
		"subject": p.subject,
		"run_id":  summary.RunID,
		"bytes":   len(data),
	})
	return nil
}

// Close closes the connection
func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// Multi fans a summary out to several publishers. Every publisher is
// tried; failures are joined.
type Multi []Publisher

// Publish delivers to every publisher
func (m Multi) Publish(ctx context.Context, summary *models.Summary) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
