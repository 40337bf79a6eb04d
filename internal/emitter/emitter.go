// Package emitter fans region scan results out to their consumers.
package emitter

import (
	"context"
	"errors"

	"github.com/yairfalse/inventory/pkg/inventory"
)

// Emitter consumes the result of one region scan.
// Emit may be called concurrently for different regions.
type Emitter interface {
	// Emit hands over one region's result, failed or not.
	Emit(ctx context.Context, result inventory.RegionResult) error

	// Close cleans up resources.
	Close() error
}

// MultiEmitter hands each result to every emitter in order.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter returns an emitter over emitters.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit stops at the first failing emitter; later ones do not see the result.
func (m *MultiEmitter) Emit(ctx context.Context, result inventory.RegionResult) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every emitter and joins their errors.
func (m *MultiEmitter) Close() error {
	var errs []error
	for _, e := range m.emitters {
		errs = append(errs, e.Close())
	}
	return errors.Join(errs...)
}
