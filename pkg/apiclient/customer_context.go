package apiclient

import (
	"context"
	"errors"

	"github.com/spounge-ai/polypay/pkg/async"
	apierrors "github.com/spounge-ai/polypay/pkg/errors"
)

// KeySource hands out a usable ephemeral key for the current customer.
type KeySource interface {
	Key(ctx context.Context) (*EphemeralKey, error)
}

// KeySourceFunc adapts a function to KeySource.
type KeySourceFunc func(ctx context.Context) (*EphemeralKey, error)

func (f KeySourceFunc) Key(ctx context.Context) (*EphemeralKey, error) { return f(ctx) }

// StaticKey is a KeySource that always returns the same key.
func StaticKey(key *EphemeralKey) KeySource {
	return KeySourceFunc(func(context.Context) (*EphemeralKey, error) { return key, nil })
}

// CustomerContext binds a customer client to a key source so callers do not
// pass keys around. A fresh key is resolved for every call.
type CustomerContext struct {
	customers *CustomerClient
	keys      KeySource
}

func NewCustomerContext(customers *CustomerClient, keys KeySource) *CustomerContext {
	return &CustomerContext{customers: customers, keys: keys}
}

func (cc *CustomerContext) RetrieveCustomer(ctx context.Context) (*Customer, error) {
	key, err := cc.key(ctx, opRetrieveCustomer)
	if err != nil {
		return nil, err
	}
	return cc.customers.RetrieveCustomer(ctx, key)
}

func (cc *CustomerContext) UpdateCustomer(ctx context.Context, params map[string]any) (*Customer, error) {
	key, err := cc.key(ctx, opUpdateCustomer)
	if err != nil {
		return nil, err
	}
	return cc.customers.UpdateCustomer(ctx, params, key)
}

func (cc *CustomerContext) AddSource(ctx context.Context, sourceID string) (*PaymentSource, error) {
	key, err := cc.key(ctx, opAddSource)
	if err != nil {
		return nil, err
	}
	return cc.customers.AddSource(ctx, sourceID, key)
}

func (cc *CustomerContext) DetachSource(ctx context.Context, sourceID string) (*PaymentSource, error) {
	key, err := cc.key(ctx, opDetachSource)
	if err != nil {
		return nil, err
	}
	return cc.customers.DetachSource(ctx, sourceID, key)
}

// RetrieveCustomerAsync resolves the key and fetches the customer off the
// caller's goroutine.
func (cc *CustomerContext) RetrieveCustomerAsync(ctx context.Context, done async.Completion[*Customer]) *async.Handle {
	return async.Go(ctx, cc.customers.config.Executor, opRetrieveCustomer, cc.RetrieveCustomer, done)
}

func (cc *CustomerContext) AddSourceAsync(ctx context.Context, sourceID string, done async.Completion[*PaymentSource]) *async.Handle {
	return async.Go(ctx, cc.customers.config.Executor, opAddSource, func(ctx context.Context) (*PaymentSource, error) {
		return cc.AddSource(ctx, sourceID)
	}, done)
}

func (cc *CustomerContext) DetachSourceAsync(ctx context.Context, sourceID string, done async.Completion[*PaymentSource]) *async.Handle {
	return async.Go(ctx, cc.customers.config.Executor, opDetachSource, func(ctx context.Context) (*PaymentSource, error) {
		return cc.DetachSource(ctx, sourceID)
	}, done)
}

// key resolves a key. Transient key source failures keep their kind so callers
// retry them; anything else is a credential problem.
func (cc *CustomerContext) key(ctx context.Context, op string) (*EphemeralKey, error) {
	if cc.keys == nil {
		return nil, apierrors.Unauthorized(op, "no ephemeral key source")
	}
	key, err := cc.keys.Key(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, apierrors.FromTransport(op, err)
		}
		if apierrors.Retryable(err) || apierrors.KindOf(err) == apierrors.KindUnauthorized {
			return nil, err
		}
		return nil, apierrors.New(apierrors.KindUnauthorized, op, err)
	}
	return key, nil
}
