package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solboard/service/dashboard"
	"github.com/brojonat/solboard/service/metrics"
	natspkg "github.com/brojonat/solboard/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// keepaliveInterval is how often an idle stream sends a comment line.
const keepaliveInterval = 10 * time.Second

// ActivityStream serves activity events from JetStream as Server-Sent Events.
type ActivityStream struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewActivityStream connects to NATS for the SSE endpoint.
func NewActivityStream(natsURL string, logger *slog.Logger) (*ActivityStream, error) {
	nc, js, err := natspkg.Connect(natsURL, "solboard-sse")
	if err != nil {
		return nil, err
	}

	logger.Info("activity stream initialized", "nats_url", natsURL)

	return &ActivityStream{
		nc:     nc,
		js:     js,
		logger: logger,
	}, nil
}

// Close closes the NATS connection.
func (p *ActivityStream) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("activity stream closed")
	}
	return nil
}

// streamSubject picks the subject filter for a stream request: the address
// query parameter, else the connected account, else every account.
func streamSubject(r *http.Request, d *dashboard.Dashboard) (subject, desc string) {
	address := r.URL.Query().Get("address")
	if address == "" {
		address = d.Session().Address
	}
	if address == "" {
		return natspkg.StreamSubjects, "all wallets"
	}
	return natspkg.Subject(address), address
}

// writeEvent writes one SSE frame.
func writeEvent(w io.Writer, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// handleStreamActivity handles SSE streaming of airdrop and transfer outcomes.
// GET /api/v1/stream/activity[?address=...]
func handleStreamActivity(stream *ActivityStream, d *dashboard.Dashboard, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		subject, walletDesc := streamSubject(r, d)
		if walletDesc != "all wallets" {
			if err := validateAddress(walletDesc); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		// Streams outlive the server write timeout.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flush := func() {
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
		flush()

		logger.DebugContext(ctx, "SSE client connected",
			"wallet", walletDesc,
			"remote_addr", r.RemoteAddr,
		)
		if m != nil {
			m.RecordSSEConnectionChange(walletDesc, 1)
			defer m.RecordSSEConnectionChange(walletDesc, -1)
		}

		// Ephemeral consumer, removed when the connection closes
		cons, err := stream.js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
			FilterSubject: subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			DeliverPolicy: jetstream.DeliverNewPolicy,
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to create consumer",
				"wallet", walletDesc,
				"error", err,
			)
			writeEvent(w, "error", []byte(`{"error":"failed to subscribe"}`))
			return
		}

		msgChan := make(chan jetstream.Msg, 10)
		doneChan := make(chan struct{})

		go func() {
			defer close(doneChan)
			cc, err := cons.Consume(func(msg jetstream.Msg) {
				select {
				case msgChan <- msg:
				case <-ctx.Done():
				}
			})
			if err != nil {
				logger.ErrorContext(ctx, "failed to start consuming messages", "error", err)
				return
			}
			<-ctx.Done()
			cc.Stop()
		}()

		hello, _ := json.Marshal(map[string]string{"wallet": walletDesc})
		writeEvent(w, "connected", hello)
		flush()

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flush()

			case msg := <-msgChan:
				var event natspkg.ActivityEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					logger.WarnContext(ctx, "failed to unmarshal event", "error", err)
					msg.Ack()
					continue
				}

				writeEvent(w, event.Kind, msg.Data())
				flush()
				msg.Ack()

				if m != nil {
					m.RecordSSEEventSent(walletDesc, event.Kind)
				}
				logger.DebugContext(ctx, "sent activity event",
					"wallet", event.WalletAddress,
					"kind", event.Kind,
					"signature", event.Signature,
				)

			case <-ctx.Done():
				logger.DebugContext(ctx, "SSE client disconnected",
					"wallet", walletDesc,
					"remote_addr", r.RemoteAddr,
				)
				return

			case <-doneChan:
				return
			}
		}
	})
}
