// Package geo abstracts the device position sensor.
package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrPermissionDenied is returned when the user has not granted location access.
var ErrPermissionDenied = errors.New("location permission denied")

// ErrInvalidReading is returned for a reading outside the valid coordinate range.
var ErrInvalidReading = errors.New("location reading out of range")

// Coordinates is a single position reading.
type Coordinates struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// Check reports ErrInvalidReading unless both axes are finite and in range.
func (c Coordinates) Check() error {
	if math.IsNaN(c.Latitude) || c.Latitude < -90 || c.Latitude > 90 ||
		math.IsNaN(c.Longitude) || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: %v,%v", ErrInvalidReading, c.Latitude, c.Longitude)
	}
	return nil
}

// Locator reads the current position. Implementations honor ctx cancellation.
type Locator interface {
	CurrentPosition(ctx context.Context) (Coordinates, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (Coordinates, error)

func (f LocatorFunc) CurrentPosition(ctx context.Context) (Coordinates, error) {
	return f(ctx)
}

// WithTimeout caps every reading of inner at timeout.
func WithTimeout(inner Locator, timeout time.Duration) Locator {
	if timeout <= 0 {
		return inner
	}
	return LocatorFunc(func(ctx context.Context) (Coordinates, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		type reading struct {
			coords Coordinates
			err    error
		}
		done := make(chan reading, 1)
		go func() {
			coords, err := inner.CurrentPosition(ctx)
			done <- reading{coords: coords, err: err}
		}()

		select {
		case r := <-done:
			return r.coords, r.err
		case <-ctx.Done():
			return Coordinates{}, fmt.Errorf("reading position: %w", ctx.Err())
		}
	})
}

// StaticLocator reports a fixed position. It stands in for the device sensor
// on hosts without one.
type StaticLocator struct {
	Position Coordinates
	Denied   bool
}

func (s StaticLocator) CurrentPosition(ctx context.Context) (Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return Coordinates{}, err
	}
	if s.Denied {
		return Coordinates{}, ErrPermissionDenied
	}
	return s.Position, nil
}
