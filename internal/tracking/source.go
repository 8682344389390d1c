package tracking

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrPermissionDenied is returned when the platform refuses access to
// device location. Callers surface it as a dedicated UI state rather than
// a generic failure.
var ErrPermissionDenied = errors.New("tracking: location permission denied")

// Sample is one raw reading from the platform location API. Speed is
// meters per second as reported by the platform; a negative value means
// the platform could not determine it. Heading follows the same
// convention.
type Sample struct {
	Lat     float64   `json:"lat"`
	Lng     float64   `json:"lng"`
	Heading float64   `json:"heading"`
	Speed   float64   `json:"speed"`
	Time    time.Time `json:"-"`
}

// LocationSource abstracts the platform location API: a permission
// request followed by a continuous watch. Watch delivers raw samples on a
// platform-driven callback until the context ends or the returned cancel
// runs; cancel is idempotent.
type LocationSource interface {
	RequestPermission(ctx context.Context) error
	Watch(ctx context.Context, fn func(Sample)) (func(), error)
}

// ReplaySource feeds samples from a JSON-lines reader at a fixed cadence.
// It backs the CLI's tracking loop in environments without a GPS device.
type ReplaySource struct {
	samples  []Sample
	interval time.Duration
}

func NewReplaySource(r io.Reader, interval time.Duration) (*ReplaySource, error) {
	var samples []Sample
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var sample Sample
		if err := json.Unmarshal(line, &sample); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, errors.New("tracking: replay file contains no samples")
	}
	return &ReplaySource{samples: samples, interval: interval}, nil
}

func (r *ReplaySource) RequestPermission(context.Context) error {
	return nil
}

func (r *ReplaySource) Watch(ctx context.Context, fn func(Sample)) (func(), error) {
	watchCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for _, sample := range r.samples {
			select {
			case <-watchCtx.Done():
				return
			case now := <-ticker.C:
				sample.Time = now
				fn(sample)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			<-done
		})
	}
	return cancel, nil
}
