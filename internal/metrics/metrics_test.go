package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestDisabledMetricsRecordNothing(t *testing.T) {
	m := New(Config{Enabled: false})
	m.Inc(LoginSuccess)
	if m.Value(LoginSuccess) != 0 {
		t.Fatal("disabled metrics must not count")
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("disabled snapshot must be empty")
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(LoginSuccess)
	nilMetrics.Observe(ValidateLatency, time.Millisecond)
}

func TestConcurrentIncrements(t *testing.T) {
	m := New(Config{Enabled: true})
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Inc(RefreshSuccess)
			}
		}()
	}
	wg.Wait()
	if got := m.Value(RefreshSuccess); got != 3200 {
		t.Fatalf("expected 3200, got %d", got)
	}
}

func TestObserveBucketsAndSnapshot(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(ValidateLatency, 2*time.Millisecond)
	m.Observe(ValidateLatency, 30*time.Millisecond)
	m.Observe(RefreshLatency, time.Second)
	m.Observe(LoginSuccess, time.Millisecond)

	s := m.Snapshot()
	v := s.Histograms[ValidateLatency]
	if v[0] != 1 || v[3] != 1 {
		t.Fatalf("unexpected validate buckets %v", v)
	}
	if s.Histograms[RefreshLatency][7] != 1 {
		t.Fatalf("unexpected refresh buckets %v", s.Histograms[RefreshLatency])
	}
	if _, ok := s.Histograms[LoginSuccess]; ok {
		t.Fatal("counters must not appear as histograms")
	}
	if len(s.Counters) != len(CounterDefs) {
		t.Fatalf("expected %d counters, got %d", len(CounterDefs), len(s.Counters))
	}
}

func TestCumulative(t *testing.T) {
	got := Cumulative([]uint64{1, 2, 3})
	want := [BucketCount]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestEveryCounterHasAUniqueName(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range append(append([]Def{}, CounterDefs...), HistogramDefs...) {
		if seen[d.Name] {
			t.Fatalf("duplicate metric name %s", d.Name)
		}
		seen[d.Name] = true
	}
	if len(CounterDefs)+len(HistogramDefs) != int(idCount) {
		t.Fatalf("defs cover %d ids, want %d", len(CounterDefs)+len(HistogramDefs), idCount)
	}
}
