package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSPublisher durably republishes every event from a Bus onto a
// JetStream stream, for out-of-process observers (a separate CLI
// invocation tailing progress, a dashboard). It is optional: most runs
// need only the in-process Bus. Grounded on the teacher's embedded-
// server pattern (internal/workflows/runtime/nats_engine.go), adapted
// from "NATS as the workflow engine's own transport" to "NATS as an
// optional durable sink for an engine whose control loop doesn't
// depend on it".
type NATSPublisher struct {
	subject string
	js      jetstream.JetStream
	nc      *nats.Conn
	embedded *server.Server
}

// EmbeddedNATSOptions configures an in-process NATS server for local
// development, mirroring the teacher's pattern of not requiring an
// external broker for a single-process run.
type EmbeddedNATSOptions struct {
	Host string
	Port int
}

// StartEmbeddedNATS boots an in-process nats-server and returns a
// client URL connectable via nats.Connect.
func StartEmbeddedNATS(opts EmbeddedNATSOptions) (*server.Server, string, error) {
	ns, err := server.NewServer(&server.Options{
		Host:      opts.Host,
		Port:      opts.Port,
		JetStream: true,
		NoLog:     true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("eventbus: start embedded nats: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		return nil, "", fmt.Errorf("eventbus: embedded nats did not become ready")
	}
	return ns, ns.ClientURL(), nil
}

// NewNATSPublisher connects to url and ensures a JetStream stream
// exists for subject.
func NewNATSPublisher(ctx context.Context, url, streamName, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("eventbus: jetstream: %w", err)
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subject},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("eventbus: create stream: %w", err)
	}
	return &NATSPublisher{subject: subject, js: js, nc: nc}, nil
}

// Attach drains bus.Events() and republishes each one to JetStream
// until the bus closes. Run in its own goroutine by the caller.
func (p *NATSPublisher) Attach(ctx context.Context, bus *Bus) error {
	for ev := range bus.Events() {
		raw, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("eventbus: marshal event: %w", err)
		}
		if _, err := p.js.Publish(ctx, p.subject, raw); err != nil {
			return fmt.Errorf("eventbus: publish: %w", err)
		}
	}
	return nil
}

func (p *NATSPublisher) Close() {
	p.nc.Close()
	if p.embedded != nil {
		p.embedded.Shutdown()
	}
}
