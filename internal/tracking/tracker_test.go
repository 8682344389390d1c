package tracking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abdullahnizamani/Bus-Tracking-App/internal/api"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/model"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/realtime"
)

type scriptedSource struct {
	permissionErr error

	mu      sync.Mutex
	watchFn func(Sample)
}

func (s *scriptedSource) RequestPermission(context.Context) error {
	return s.permissionErr
}

func (s *scriptedSource) Watch(_ context.Context, fn func(Sample)) (func(), error) {
	s.mu.Lock()
	s.watchFn = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.watchFn = nil
			s.mu.Unlock()
		})
	}, nil
}

func (s *scriptedSource) emit(sample Sample) {
	s.mu.Lock()
	fn := s.watchFn
	s.mu.Unlock()
	if fn != nil {
		fn(sample)
	}
}

type harness struct {
	session *Session
	bridge  *realtime.Bridge
	store   *realtime.MemoryStore
	source  *scriptedSource
	patches func() []bool
	samples func() []model.BusLocation
}

func newHarness(t *testing.T, source *scriptedSource, watch WatchOptions) *harness {
	t.Helper()

	var mu sync.Mutex
	var patches []bool
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body struct {
			Status bool `json:"status"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		patches = append(patches, body.Status)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(backend.Close)

	store := realtime.NewMemoryStore()
	bridge := realtime.NewBridge(store)

	var sampleMu sync.Mutex
	var published []model.BusLocation

	session := NewSession(Config{
		Bridge: bridge,
		API:    api.NewClient(backend.URL),
		Source: source,
		Token:  "tok",
		BusID:  42,
		Driver: model.BusDriver{ID: 7, Name: "Asad Khan"},
		Watch:  watch,
		OnSample: func(location model.BusLocation) {
			sampleMu.Lock()
			published = append(published, location)
			sampleMu.Unlock()
		},
	})

	return &harness{
		session: session,
		bridge:  bridge,
		store:   store,
		source:  source,
		patches: func() []bool {
			mu.Lock()
			defer mu.Unlock()
			return append([]bool(nil), patches...)
		},
		samples: func() []model.BusLocation {
			sampleMu.Lock()
			defer sampleMu.Unlock()
			return append([]model.BusLocation(nil), published...)
		},
	}
}

func TestSpeedKmh(t *testing.T) {
	cases := []struct {
		raw  float64
		want float64
	}{
		{10, 36},
		{0, 0},
		{-1, 0},
		{2.5, 9},
		{1.2, 4},
	}
	for _, tc := range cases {
		if got := SpeedKmh(tc.raw); got != tc.want {
			t.Fatalf("SpeedKmh(%v) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestStartMarksActiveAndAnnouncesDriverOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &scriptedSource{}, WatchOptions{})

	var announcements int64
	cancel, err := h.store.Subscribe("buses/bus_42/driver", func(value []byte) {
		if value != nil {
			atomic.AddInt64(&announcements, 1)
		}
	})
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}
	defer cancel()

	if err := h.session.RequestPermission(ctx); err != nil {
		t.Fatalf("permission error: %v", err)
	}
	if err := h.session.Start(ctx); err != nil {
		t.Fatalf("start error: %v", err)
	}
	if h.session.State() != StateTracking {
		t.Fatalf("expected tracking, got %s", h.session.State())
	}

	status, err := h.bridge.BusActiveStatus(ctx, 42)
	if err != nil || status == nil || !status.IsActive {
		t.Fatalf("expected active status, got %+v err %v", status, err)
	}

	// Starting again without stopping is a no-op.
	if err := h.session.Start(ctx); err != nil {
		t.Fatalf("second start error: %v", err)
	}

	// Stop and start again inside the same session: the driver identity
	// must not be announced a second time.
	if err := h.session.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}
	if err := h.session.Start(ctx); err != nil {
		t.Fatalf("restart error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt64(&announcements) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for driver announcement")
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt64(&announcements); got != 1 {
		t.Fatalf("expected exactly one driver announcement, got %d", got)
	}
}

func TestStopMarksInactive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &scriptedSource{}, WatchOptions{})

	if err := h.session.RequestPermission(ctx); err != nil {
		t.Fatalf("permission error: %v", err)
	}
	if err := h.session.Start(ctx); err != nil {
		t.Fatalf("start error: %v", err)
	}

	before := time.Now().UnixMilli()
	if err := h.session.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}
	if h.session.State() != StateReady {
		t.Fatalf("expected ready after stop, got %s", h.session.State())
	}
	if h.session.Speed() != 0 {
		t.Fatalf("expected speed reset, got %v", h.session.Speed())
	}

	status, err := h.bridge.BusActiveStatus(ctx, 42)
	if err != nil || status == nil || status.IsActive {
		t.Fatalf("expected inactive status, got %+v err %v", status, err)
	}
	if status.LastUpdated < before {
		t.Fatalf("expected fresh lastUpdated, got %d < %d", status.LastUpdated, before)
	}

	// Stop again: must be a clean no-op.
	if err := h.session.Stop(ctx); err != nil {
		t.Fatalf("second stop error: %v", err)
	}

	// The REST backend mirror saw the deactivate.
	found := false
	for _, status := range h.patches() {
		if !status {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected backend deactivate call, got %v", h.patches())
	}
}

func TestPermissionDenied(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &scriptedSource{permissionErr: ErrPermissionDenied}, WatchOptions{})

	if err := h.session.RequestPermission(ctx); err != ErrPermissionDenied {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if h.session.State() != StateIdle {
		t.Fatalf("expected idle after denial, got %s", h.session.State())
	}
	if err := h.session.Start(ctx); err == nil {
		t.Fatalf("expected start to fail without permission")
	}
}

func TestSampleFilterIntervalAndDisplacement(t *testing.T) {
	ctx := context.Background()
	source := &scriptedSource{}
	h := newHarness(t, source, WatchOptions{MinInterval: 2 * time.Second, MinDistance: 5})

	if err := h.session.RequestPermission(ctx); err != nil {
		t.Fatalf("permission error: %v", err)
	}
	if err := h.session.Start(ctx); err != nil {
		t.Fatalf("start error: %v", err)
	}

	base := time.Now()
	at := func(d time.Duration) time.Time { return base.Add(d) }

	// First sample always publishes.
	source.emit(Sample{Lat: 33.6844, Lng: 73.0479, Speed: 10, Time: at(0)})
	// 500ms later, barely moved: filtered.
	source.emit(Sample{Lat: 33.68441, Lng: 73.0479, Speed: 10, Time: at(500 * time.Millisecond)})
	// 1s later but moved ~110m: displacement triggers.
	source.emit(Sample{Lat: 33.6854, Lng: 73.0479, Speed: 12, Time: at(time.Second)})
	// 3.5s after base, no movement: cadence triggers.
	source.emit(Sample{Lat: 33.6854, Lng: 73.0479, Speed: 0, Time: at(3500 * time.Millisecond)})

	published := h.samples()
	if len(published) != 3 {
		t.Fatalf("expected 3 published samples, got %d: %+v", len(published), published)
	}
	if published[0].Speed != 36 {
		t.Fatalf("expected 36 km/h on first sample, got %v", published[0].Speed)
	}
	if published[1].Lat != 33.6854 {
		t.Fatalf("expected displacement sample second, got %+v", published[1])
	}
	if published[2].Speed != 0 {
		t.Fatalf("expected cadence sample with 0 km/h, got %+v", published[2])
	}
}

func TestSamplesReachBridge(t *testing.T) {
	ctx := context.Background()
	source := &scriptedSource{}
	h := newHarness(t, source, WatchOptions{})

	if err := h.session.RequestPermission(ctx); err != nil {
		t.Fatalf("permission error: %v", err)
	}
	if err := h.session.Start(ctx); err != nil {
		t.Fatalf("start error: %v", err)
	}

	source.emit(Sample{Lat: 24.8607, Lng: 67.0011, Speed: 10, Heading: 90})

	deadline := time.Now().Add(2 * time.Second)
	for {
		location, err := h.bridge.BusLocation(ctx, 42)
		if err != nil {
			t.Fatalf("bus location error: %v", err)
		}
		if location != nil {
			if location.Lat != 24.8607 || location.Speed != 36 || location.Heading != 90 {
				t.Fatalf("unexpected published location: %+v", location)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for published location")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNegativeHeadingClampedToZero(t *testing.T) {
	ctx := context.Background()
	source := &scriptedSource{}
	h := newHarness(t, source, WatchOptions{})

	if err := h.session.RequestPermission(ctx); err != nil {
		t.Fatalf("permission error: %v", err)
	}
	if err := h.session.Start(ctx); err != nil {
		t.Fatalf("start error: %v", err)
	}

	source.emit(Sample{Lat: 1, Lng: 1, Speed: -3, Heading: -1})
	published := h.samples()
	if len(published) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(published))
	}
	if published[0].Heading != 0 || published[0].Speed != 0 {
		t.Fatalf("expected clamped heading and speed, got %+v", published[0])
	}
}
