// Package watch implements the rider side of live tracking. A Watcher
// follows a bus's active status and, only while the bus is active, streams
// its location. When the bus goes inactive the location stream is torn
// down and a nil location is delivered so the caller clears its display
// right away instead of showing a stale position.
package watch

import (
	"errors"
	"log"
	"sync"

	"github.com/abdullahnizamani/Bus-Tracking-App/internal/model"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/realtime"
)

// Handlers receive watcher events. Both callbacks run on the store's
// delivery goroutines and must not call back into the Watcher.
type Handlers struct {
	// OnStatus fires for every status push, nil when none is published.
	OnStatus func(*model.ActiveStatus)
	// OnLocation fires for location pushes while the bus is active, and
	// once with nil when the bus goes inactive.
	OnLocation func(*model.BusLocation)
}

type Watcher struct {
	bridge   *realtime.Bridge
	busID    int
	handlers Handlers

	mu             sync.Mutex
	started        bool
	stopped        bool
	cancelStatus   func()
	cancelLocation func()
}

func New(bridge *realtime.Bridge, busID int, handlers Handlers) *Watcher {
	return &Watcher{bridge: bridge, busID: busID, handlers: handlers}
}

// Start subscribes to the bus status. Calling Start twice is an error;
// calling it after Stop is too.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return errors.New("watch: watcher already stopped")
	}
	if w.started {
		w.mu.Unlock()
		return errors.New("watch: watcher already started")
	}
	w.started = true
	w.mu.Unlock()

	cancel, err := w.bridge.WatchStatus(w.busID, w.handleStatus)
	if err != nil {
		w.mu.Lock()
		w.started = false
		w.mu.Unlock()
		return err
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		cancel()
		return nil
	}
	w.cancelStatus = cancel
	w.mu.Unlock()
	return nil
}

// Stop tears down both subscriptions. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	cancelLocation := w.cancelLocation
	w.cancelLocation = nil
	cancelStatus := w.cancelStatus
	w.cancelStatus = nil
	w.mu.Unlock()

	if cancelLocation != nil {
		cancelLocation()
	}
	if cancelStatus != nil {
		cancelStatus()
	}
}

func (w *Watcher) handleStatus(status *model.ActiveStatus) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	if w.handlers.OnStatus != nil {
		w.handlers.OnStatus(status)
	}

	if status != nil && status.IsActive {
		w.followLocation()
		return
	}

	w.mu.Lock()
	cancel := w.cancelLocation
	w.cancelLocation = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
		if w.handlers.OnLocation != nil {
			w.handlers.OnLocation(nil)
		}
	}
}

func (w *Watcher) followLocation() {
	w.mu.Lock()
	if w.stopped || w.cancelLocation != nil {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	cancel, err := w.bridge.WatchLocation(w.busID, w.handleLocation)
	if err != nil {
		log.Printf("watch bus %d: location subscribe failed: %v", w.busID, err)
		return
	}

	w.mu.Lock()
	if w.stopped || w.cancelLocation != nil {
		w.mu.Unlock()
		cancel()
		return
	}
	w.cancelLocation = cancel
	w.mu.Unlock()
}

func (w *Watcher) handleLocation(location *model.BusLocation) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	if w.handlers.OnLocation != nil {
		w.handlers.OnLocation(location)
	}
}
