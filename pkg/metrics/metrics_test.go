package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/cellflow-dev/cellflow/pkg/cell"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("failed to read histogram: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestInstrumentCountsRecomputes(t *testing.T) {
	eng := cell.NewEngine()
	m := Instrument(eng, WithRegistry(prometheus.NewRegistry()))

	w := cell.NewIn(eng, 1)
	double := cell.NewComputedIn(eng, func() int { return w.Get() * 2 })

	if double.Peek() != 2 {
		t.Fatalf("expected 2, got %d", double.Peek())
	}
	if got := counterValue(t, m.recomputes); got != 1 {
		t.Errorf("expected 1 recompute, got %v", got)
	}
	if got := counterValue(t, m.cacheMisses); got != 1 {
		t.Errorf("expected 1 cache miss, got %v", got)
	}

	// Second read is served from the snapshot cache.
	double.Peek()
	if got := counterValue(t, m.recomputes); got != 1 {
		t.Errorf("expected no new recompute, got %v", got)
	}
	if got := counterValue(t, m.cacheHits); got != 1 {
		t.Errorf("expected 1 cache hit, got %v", got)
	}
}

func TestInstrumentCountsNotificationsAndFlushes(t *testing.T) {
	eng := cell.NewEngine()
	m := Instrument(eng, WithRegistry(prometheus.NewRegistry()))

	w := cell.NewIn(eng, 1)
	defer w.Observe(func(int) {})()
	defer w.Observe(func(int) {})()

	eng.Batch(func() {
		w.Set(2)
		w.Set(3)
	})

	if got := counterValue(t, m.notifications); got != 2 {
		t.Errorf("expected 2 subscriber callbacks, got %v", got)
	}
	if got := counterValue(t, m.batchFlushes); got != 1 {
		t.Errorf("expected 1 flush, got %v", got)
	}
	if got := histogramCount(t, m.flushSize); got != 1 {
		t.Errorf("expected 1 flush-size sample, got %v", got)
	}
}

func TestInstrumentOptions(t *testing.T) {
	reg := prometheus.NewRegistry()
	eng := cell.NewEngine()
	Instrument(eng,
		WithRegistry(reg),
		WithNamespace("myapp"),
		WithSubsystem("graph"),
		WithConstLabels(prometheus.Labels{"env": "test"}),
		WithBuckets([]float64{1, 10}),
	)

	w := cell.NewIn(eng, 1)
	defer w.Observe(func(int) {})()
	w.Set(2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	if !names["myapp_graph_notifications_total"] {
		t.Errorf("expected namespaced metric, got %v", names)
	}
}
