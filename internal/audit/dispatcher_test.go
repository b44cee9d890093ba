package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	events  []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDeliversAndStampsEvents(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	defer d.Close()

	d.Emit(context.Background(), Event{EventType: "login_success", AccountID: "a1", Success: true})

	select {
	case got := <-sink.Events():
		if got.EventType != "login_success" || got.AccountID != "a1" {
			t.Fatalf("unexpected event %+v", got)
		}
		if got.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestDispatcherDropIfFullCountsDrops(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "e"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink")
	}

	close(sink.release)
	d.Close()
	if d.Delivered()+d.Dropped() != 10 {
		t.Fatalf("delivered=%d dropped=%d, want total 10", d.Delivered(), d.Dropped())
	}
}

func TestCloseDrainsBufferedEvents(t *testing.T) {
	var buf bytes.Buffer
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, NewJSONWriterSink(&buf))
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh_success", Success: true})
	}
	d.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(lines))
	}
	var e Event
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if e.EventType != "refresh_success" {
		t.Fatalf("unexpected event type %q", e.EventType)
	}
}

type deadlineSink struct {
	got chan bool
}

func (s deadlineSink) Emit(ctx context.Context, _ Event) {
	_, ok := ctx.Deadline()
	s.got <- ok
}

func TestSinkTimeoutBoundsDelivery(t *testing.T) {
	for _, tc := range []struct {
		timeout time.Duration
		want    bool
	}{{0, false}, {time.Second, true}} {
		sink := deadlineSink{got: make(chan bool, 1)}
		d := NewDispatcher(Config{Enabled: true, BufferSize: 1, SinkTimeout: tc.timeout}, sink)
		d.Emit(context.Background(), Event{EventType: "login_success"})
		d.Close()
		if got := <-sink.got; got != tc.want {
			t.Fatalf("timeout %v: deadline set = %v, want %v", tc.timeout, got, tc.want)
		}
	}
}

func TestLogrusSinkLevels(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := NewLogrusSink(logger)

	sink.Emit(context.Background(), Event{EventType: "login_success", AccountID: "a1", Success: true})
	sink.Emit(context.Background(), Event{EventType: "refresh_reuse_detected", SessionID: "s1", IP: "10.0.0.1", Error: "invalid refresh token"})

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != logrus.InfoLevel || entries[0].Data["account_id"] != "a1" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Level != logrus.WarnLevel || entries[1].Data["ip"] != "10.0.0.1" {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := NewChannelSink(1), NewChannelSink(1)
	MultiSink{a, nil, b}.Emit(context.Background(), Event{EventType: "x"})
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatal("expected both sinks to receive the event")
	}
}
