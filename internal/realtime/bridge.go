package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/abdullahnizamani/Bus-Tracking-App/internal/model"
)

var locationsPublished = promauto.NewCounter(prometheus.CounterOpts{
	Name: "busnaama_locations_published_total",
	Help: "Location documents published to the realtime store.",
})

// Bridge exposes the per-bus paths of the realtime tree as typed
// operations. Every write is an unconditional overwrite; the store keeps
// no history and resolves concurrent writers last-write-wins.
type Bridge struct {
	store Store
}

func NewBridge(store Store) *Bridge {
	return &Bridge{store: store}
}

func busPath(busID int, leaf string) string {
	return fmt.Sprintf("buses/bus_%d/%s", busID, leaf)
}

func (b *Bridge) UpdateBusLocation(ctx context.Context, busID int, location model.BusLocation) error {
	payload, err := json.Marshal(location)
	if err != nil {
		return err
	}
	if err := b.store.Set(ctx, busPath(busID, "location"), payload); err != nil {
		return err
	}
	locationsPublished.Inc()
	return nil
}

func (b *Bridge) SetBusActiveStatus(ctx context.Context, busID int, isActive bool) error {
	payload, err := json.Marshal(model.ActiveStatus{
		IsActive:    isActive,
		LastUpdated: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return b.store.Set(ctx, busPath(busID, "status"), payload)
}

func (b *Bridge) SetBusDriver(ctx context.Context, busID int, driver model.BusDriver) error {
	payload, err := json.Marshal(driver)
	if err != nil {
		return err
	}
	return b.store.Set(ctx, busPath(busID, "driver"), payload)
}

// BusLocation reads the current position, or nil when none is published.
func (b *Bridge) BusLocation(ctx context.Context, busID int) (*model.BusLocation, error) {
	value, err := b.store.Get(ctx, busPath(busID, "location"))
	if err != nil || value == nil {
		return nil, err
	}
	var location *model.BusLocation
	if err := json.Unmarshal(value, &location); err != nil {
		return nil, err
	}
	return location, nil
}

// BusActiveStatus reads the current status record, or nil.
func (b *Bridge) BusActiveStatus(ctx context.Context, busID int) (*model.ActiveStatus, error) {
	value, err := b.store.Get(ctx, busPath(busID, "status"))
	if err != nil || value == nil {
		return nil, err
	}
	var status *model.ActiveStatus
	if err := json.Unmarshal(value, &status); err != nil {
		return nil, err
	}
	return status, nil
}

// WatchLocation invokes fn for every location push, nil when the path is
// deleted. The returned cancel is idempotent.
func (b *Bridge) WatchLocation(busID int, fn func(*model.BusLocation)) (func(), error) {
	return b.store.Subscribe(busPath(busID, "location"), func(value []byte) {
		var location *model.BusLocation
		if value != nil {
			if err := json.Unmarshal(value, &location); err != nil {
				location = nil
			}
		}
		fn(location)
	})
}

// WatchStatus invokes fn for every status push, nil when the path is
// deleted. The returned cancel is idempotent.
func (b *Bridge) WatchStatus(busID int, fn func(*model.ActiveStatus)) (func(), error) {
	return b.store.Subscribe(busPath(busID, "status"), func(value []byte) {
		var status *model.ActiveStatus
		if value != nil {
			if err := json.Unmarshal(value, &status); err != nil {
				status = nil
			}
		}
		fn(status)
	})
}
