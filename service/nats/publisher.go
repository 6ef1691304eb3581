package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solboard/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing activity events to NATS.
type Publisher interface {
	// PublishActivity publishes a single event to "activity.{wallet_address}".
	PublishActivity(ctx context.Context, event *ActivityEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes activity events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for account activity.
	StreamName = "ACCOUNT_ACTIVITY"

	// SubjectPrefix prefixes every activity subject.
	SubjectPrefix = "activity"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = SubjectPrefix + ".*"

	// StreamRetention is how long messages are retained.
	StreamRetention = 7 * 24 * time.Hour
)

// Connect dials NATS with the reconnect settings shared by the publisher and
// the SSE stream.
func Connect(natsURL, name string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return nc, js, nil
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, js, err := Connect(natsURL, "solboard-publisher")
	if err != nil {
		return nil, err
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	_, err = p.js.CreateStream(ctx, StreamConfig())
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created", "stream", StreamName)
	return nil
}

// StreamConfig is the configuration the activity stream is created with.
func StreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Airdrop and transfer outcomes for dashboard accounts",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}
}

// PublishActivity publishes a single activity event.
func (p *JetStreamPublisher) PublishActivity(ctx context.Context, event *ActivityEvent) error {
	subject := Subject(event.WalletAddress)
	if event.PublishedAt.IsZero() {
		event.PublishedAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal activity event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	p.record(subject, start, err)
	if err != nil {
		return fmt.Errorf("failed to publish activity: %w", err)
	}

	p.logger.DebugContext(ctx, "published activity event",
		"subject", subject,
		"kind", event.Kind,
		"outcome", event.Outcome,
		"signature", event.Signature,
	)

	return nil
}

func (p *JetStreamPublisher) record(subject string, start time.Time, err error) {
	if p.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
