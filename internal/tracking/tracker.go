// Package tracking runs the driver-side live tracking loop: it marks the
// bus active, announces the driver once, forwards filtered GPS samples to
// the realtime bridge, and marks the bus inactive again on stop. All
// per-trip state lives in the Session object.
package tracking

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abdullahnizamani/Bus-Tracking-App/internal/api"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/model"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/realtime"
)

type State int

const (
	StateIdle State = iota
	StateRequestingPermission
	StateReady
	StateTracking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingPermission:
		return "requesting-permission"
	case StateReady:
		return "ready"
	case StateTracking:
		return "tracking"
	default:
		return "unknown"
	}
}

// WatchOptions filter raw samples: one is forwarded when the minimum
// cadence has elapsed or the device moved at least the minimum distance,
// whichever triggers first.
type WatchOptions struct {
	MinInterval time.Duration
	MinDistance float64 // meters
}

type Config struct {
	Bridge *realtime.Bridge
	API    *api.Client
	Source LocationSource
	Token  string
	BusID  int
	Driver model.BusDriver
	Watch  WatchOptions
	// OnSample, when set, observes every published location. Used by the
	// CLI dashboard.
	OnSample func(model.BusLocation)
}

type Session struct {
	cfg Config
	id  string

	mu          sync.Mutex
	state       State
	driverSent  bool
	cancelWatch func()
	speed       float64

	hasLast  bool
	lastEmit time.Time
	lastLat  float64
	lastLng  float64
}

func NewSession(cfg Config) *Session {
	if cfg.Watch.MinInterval <= 0 {
		cfg.Watch.MinInterval = 2 * time.Second
	}
	if cfg.Watch.MinDistance <= 0 {
		cfg.Watch.MinDistance = 5
	}
	return &Session{cfg: cfg, id: uuid.NewString(), state: StateIdle}
}

// ID identifies this tracking session in logs.
func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Speed is the last published speed in km/h.
func (s *Session) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// RequestPermission asks the platform for location access. Denial leaves
// the session idle and returns ErrPermissionDenied.
func (s *Session) RequestPermission(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateRequestingPermission
	s.mu.Unlock()

	if err := s.cfg.Source.RequestPermission(ctx); err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.state = StateReady
	s.mu.Unlock()
	return nil
}

// Start marks the bus active, announces the driver identity once per
// session, and begins forwarding location samples. Starting while already
// tracking is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateTracking:
		s.mu.Unlock()
		return nil
	case StateReady:
	default:
		s.mu.Unlock()
		return ErrPermissionDenied
	}
	s.mu.Unlock()

	if err := s.cfg.Bridge.SetBusActiveStatus(ctx, s.cfg.BusID, true); err != nil {
		return err
	}
	// Mirror to the REST backend, fire-and-forget.
	go func() {
		if err := s.cfg.API.UpdateBusActiveStatus(context.Background(), s.cfg.Token, s.cfg.BusID, true); err != nil {
			log.Printf("tracking %s: backend activate failed (ignored): %v", s.id, err)
		}
	}()

	s.mu.Lock()
	announce := !s.driverSent
	s.driverSent = true
	s.mu.Unlock()
	if announce {
		if err := s.cfg.Bridge.SetBusDriver(ctx, s.cfg.BusID, s.cfg.Driver); err != nil {
			return err
		}
	}

	cancel, err := s.cfg.Source.Watch(ctx, s.handleSample)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cancelWatch = cancel
	s.state = StateTracking
	s.hasLast = false
	s.mu.Unlock()
	return nil
}

// Stop cancels the location watch and marks the bus inactive in both
// stores. The backend update is best-effort; the realtime update is
// awaited and its error returned. Stopping twice is safe.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateTracking {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancelWatch
	s.cancelWatch = nil
	s.state = StateReady
	s.speed = 0
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if err := s.cfg.API.UpdateBusActiveStatus(ctx, s.cfg.Token, s.cfg.BusID, false); err != nil {
		log.Printf("tracking %s: backend deactivate failed (ignored): %v", s.id, err)
	}
	return s.cfg.Bridge.SetBusActiveStatus(ctx, s.cfg.BusID, false)
}

func (s *Session) handleSample(sample Sample) {
	now := sample.Time
	if now.IsZero() {
		now = time.Now()
	}

	s.mu.Lock()
	if s.state != StateTracking {
		s.mu.Unlock()
		return
	}
	if s.hasLast {
		elapsed := now.Sub(s.lastEmit)
		moved := haversineMeters(s.lastLat, s.lastLng, sample.Lat, sample.Lng)
		if elapsed < s.cfg.Watch.MinInterval && moved < s.cfg.Watch.MinDistance {
			s.mu.Unlock()
			return
		}
	}
	s.hasLast = true
	s.lastEmit = now
	s.lastLat = sample.Lat
	s.lastLng = sample.Lng

	speed := SpeedKmh(sample.Speed)
	s.speed = speed
	s.mu.Unlock()

	location := model.BusLocation{
		Lat:       sample.Lat,
		Lng:       sample.Lng,
		Timestamp: time.Now().UnixMilli(),
		Heading:   math.Max(sample.Heading, 0),
		Speed:     speed,
	}

	// One fire-and-forget write per sample; overlapping writes resolve
	// last-write-wins in the store.
	go func() {
		if err := s.cfg.Bridge.UpdateBusLocation(context.Background(), s.cfg.BusID, location); err != nil {
			log.Printf("tracking %s: location publish failed: %v", s.id, err)
		}
	}()

	if s.cfg.OnSample != nil {
		s.cfg.OnSample(location)
	}
}

// SpeedKmh converts a platform-reported speed in meters per second to a
// whole km/h value, clamped at zero for negative or unknown readings.
func SpeedKmh(metersPerSecond float64) float64 {
	kmh := math.Round(metersPerSecond * 3.6)
	if kmh <= 0 {
		return 0
	}
	return kmh
}
