package stream

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"meshview/internal/world"
)

// Detector turns the external world model into delta broadcasts with two
// independent timers: a metrics tick that synthesizes telemetry for every
// endpoint in the cached model, and a diff tick that re-fetches the model and
// emits structural upsert/remove events against the previous snapshot.
//
// Both ticks feed the hub's BroadcastDelta, so their events share the global
// sequence with everything else.
type Detector struct {
	hub       *Hub
	projector world.Projector
	cfg       Config
	log       *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	baseline *world.Snapshot
}

func NewDetector(hub *Hub, projector world.Projector, cfg Config, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{
		hub:       hub,
		projector: projector,
		cfg:       cfg,
		log:       log,
	}
}

// Start launches both timers. Starting an already-running detector is a
// no-op. The diff baseline is seeded from the projector's cache so the first
// tick does not re-announce a model the clients already have.
func (d *Detector) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		return
	}
	if d.baseline == nil {
		d.baseline = d.projector.CachedModel()
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.metricsLoop(ctx)
	go d.diffLoop(ctx)
	d.log.Info("change detector started",
		"metrics_interval", d.cfg.MetricsInterval,
		"diff_interval", d.cfg.DiffInterval,
	)
}

// Stop cancels both timers. Safe to call multiple times. An in-flight model
// fetch is not aborted; its result is discarded.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel == nil {
		return
	}
	d.cancel()
	d.cancel = nil
	d.log.Info("change detector stopped")
}

func (d *Detector) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.metricsTick()
		}
	}
}

func (d *Detector) diffLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.DiffInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.diffTick(ctx)
		}
	}
}

// metricsTick synthesizes one metrics and one health event per endpoint in
// the cached model, batched into a single delta broadcast. No cached model,
// no broadcast.
func (d *Detector) metricsTick() {
	snap := d.projector.CachedModel()
	if snap == nil || len(snap.Endpoints) == 0 {
		return
	}

	events := make([]world.DeltaEvent, 0, 2*len(snap.Endpoints))
	for _, ep := range snap.Endpoints {
		events = append(events, world.MetricsUpdated(ep.ID, synthesizeMetrics()))
		events = append(events, world.HealthUpdated(ep.ID, synthesizeHealth()))
	}
	d.hub.BroadcastDelta(events)
}

// diffTick fetches a fresh snapshot and broadcasts the structural delta
// against the previous one. Fetch failures are skipped silently: no events,
// and the old baseline stays in place for the next tick. On success the
// baseline is always replaced, even when the diff is empty.
func (d *Detector) diffTick(ctx context.Context) {
	snap, err := d.projector.FetchModel(ctx)
	if err != nil {
		d.log.Warn("model fetch failed, skipping diff tick", "error", err)
		return
	}

	d.mu.Lock()
	prev := d.baseline
	d.baseline = snap
	d.mu.Unlock()

	events := world.Diff(prev, snap)
	if len(events) == 0 {
		return
	}

	seq, _ := d.hub.BroadcastDelta(events)
	d.log.Debug("structural delta broadcast", "events", len(events), "seq", seq)
}

func synthesizeMetrics() world.EndpointMetrics {
	p50 := 1 + rand.Float64()*199
	return world.EndpointMetrics{
		RPS:       rand.Float64() * 500,
		P50:       p50,
		P95:       p50 + rand.Float64()*300,
		ErrorRate: rand.Float64() * 0.05,
	}
}

// synthesizeHealth draws from a weighted distribution: 80% healthy,
// 15% degraded, 5% down.
func synthesizeHealth() world.HealthStatus {
	r := rand.Float64()
	switch {
	case r < 0.80:
		return world.HealthHealthy
	case r < 0.95:
		return world.HealthDegraded
	default:
		return world.HealthDown
	}
}
