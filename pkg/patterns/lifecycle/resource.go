package lifecycle

import (
	"context"
	"errors"
	"fmt"
)

// HealthStatus represents the health of a component.
type HealthStatus struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message,omitempty"`
}

// ManagedResource is a long-lived component: callback executors, the fake platform server.
type ManagedResource interface {
	// Start begins serving. Calling it twice is a no-op.
	Start(ctx context.Context) error

	// Stop drains in-flight work and releases resources. Calling it twice is a no-op.
	Stop(ctx context.Context) error

	Health(ctx context.Context) HealthStatus
}

// StartAll starts resources in order. On failure the ones already started are
// stopped in reverse order and the start error is returned.
func StartAll(ctx context.Context, resources ...ManagedResource) error {
	for i, r := range resources {
		if err := r.Start(ctx); err != nil {
			stopErr := StopAll(ctx, resources[:i]...)
			return errors.Join(fmt.Errorf("start resource %d: %w", i, err), stopErr)
		}
	}
	return nil
}

// StopAll stops resources in reverse order and joins every error.
func StopAll(ctx context.Context, resources ...ManagedResource) error {
	var errs []error
	for i := len(resources) - 1; i >= 0; i-- {
		if err := resources[i].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop resource %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
