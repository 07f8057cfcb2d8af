package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes events on a NATS subject.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// ConnectNATS opens a NATS connection with reconnect handling.
func ConnectNATS(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("cti-go-api"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("Disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("Reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// NewNATSPublisher creates a publisher for subject over nc.
func NewNATSPublisher(nc *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{nc: nc, subject: subject}
}

// Publish sends event on the subject.
func (p *NATSPublisher) Publish(ctx context.Context, event ScanEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := event.Encode()
	if err != nil {
		return err
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}

// SubscribeNATS delivers decoded scan events from subject to handler until
// ctx is cancelled.
func SubscribeNATS(ctx context.Context, nc *nats.Conn, subject string, handler EventHandler) error {
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		event, err := Decode(msg.Data)
		if err != nil {
			slog.Warn("Dropping undecodable message", "subject", subject, "error", err)
			return
		}
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", subject, err)
	}

	slog.Info("Subscribed to subject", "subject", subject)
	<-ctx.Done()
	return sub.Unsubscribe()
}
