// Package ingest feeds externally-produced delta events into the broadcast
// path. Producers that are not part of the change detector (job-progress
// notifiers, manual operator tooling) publish to a NATS subject and the
// bridge injects their events through the hub, so they are sequenced and
// buffered like everything else.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"meshview/internal/world"
)

// Config controls the NATS bridge.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// DefaultConfig returns sensible defaults. The bridge is off unless enabled.
func DefaultConfig() Config {
	return Config{
		URL:     nats.DefaultURL,
		Subject: "meshview.deltas",
	}
}

// ApplyDefaults fills in missing values with defaults.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.URL == "" {
		c.URL = def.URL
	}
	if c.Subject == "" {
		c.Subject = def.Subject
	}
}

// Broadcaster is the slice of the hub the bridge needs.
type Broadcaster interface {
	BroadcastDelta(events []world.DeltaEvent) (uint64, time.Time)
}

// Bridge subscribes to the configured subject and injects each message's
// events. One message carries a JSON array of delta events.
type Bridge struct {
	cfg Config
	hub Broadcaster
	log *slog.Logger

	nc  *nats.Conn
	sub *nats.Subscription
}

func NewBridge(cfg Config, hub Broadcaster, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{cfg: cfg, hub: hub, log: log}
}

// Start connects and subscribes. The context bounds the initial connect only;
// the subscription lives until Stop.
func (b *Bridge) Start(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name("meshview-ingest"),
		nats.MaxReconnects(-1),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(b.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("connecting to NATS at %s: %w", b.cfg.URL, err)
	}

	sub, err := nc.Subscribe(b.cfg.Subject, b.handle)
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribing to %s: %w", b.cfg.Subject, err)
	}

	b.nc = nc
	b.sub = sub
	b.log.Info("ingest bridge started", "url", b.cfg.URL, "subject", b.cfg.Subject)
	return nil
}

// Stop drains the subscription and closes the connection. Safe to call on a
// bridge that never started.
func (b *Bridge) Stop() {
	if b.sub != nil {
		_ = b.sub.Drain()
		b.sub = nil
	}
	if b.nc != nil {
		b.nc.Close()
		b.nc = nil
	}
}

func (b *Bridge) handle(msg *nats.Msg) {
	var events []world.DeltaEvent
	if err := json.Unmarshal(msg.Data, &events); err != nil {
		b.log.Warn("dropping malformed ingest message", "subject", msg.Subject, "error", err)
		return
	}
	if len(events) == 0 {
		return
	}

	seq, _ := b.hub.BroadcastDelta(events)
	b.log.Debug("injected external delta", "events", len(events), "seq", seq)
}
