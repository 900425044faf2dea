// Package chain resolves a capability by trying an ordered list of
// interchangeable providers until one of them succeeds.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoProviders is returned (wrapped) when a chain was built without providers
var ErrNoProviders = errors.New("no providers configured")

// Provider is one interchangeable source for a capability
type Provider[Req, T any] interface {
	Name() string
	Resolve(ctx context.Context, req Req) (T, error)
}

// Func adapts a plain function into a Provider
type Func[Req, T any] struct {
	ID string
	Fn func(ctx context.Context, req Req) (T, error)
}

func (f Func[Req, T]) Name() string { return f.ID }

func (f Func[Req, T]) Resolve(ctx context.Context, req Req) (T, error) {
	return f.Fn(ctx, req)
}

// RetryPolicy bounds same-provider retries for providers that report Initializing
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// Options configures a Chain
type Options struct {
	AttemptTimeout time.Duration
	Retry          RetryPolicy
	Registry       *Registry
	Logger         zerolog.Logger
}

// Result is a successful resolution
type Result[T any] struct {
	Value    T
	Provider string
	Attempts int
}

// Chain tries its providers strictly in the order given at construction
type Chain[Req, T any] struct {
	capability string
	providers  []Provider[Req, T]
	opts       Options
	log        zerolog.Logger
}

// New builds a chain for one capability. The order of providers never changes.
func New[Req, T any](capability string, providers []Provider[Req, T], opts Options) *Chain[Req, T] {
	logger := opts.Logger.With().Str("component", "chain").Str("capability", capability).Logger()
	if opts.Registry != nil {
		if last, ok := opts.Registry.Last(capability); ok {
			logger.Debug().Str("last_winner", last).Msg("chain built")
		}
	}
	return &Chain[Req, T]{
		capability: capability,
		providers:  providers,
		opts:       opts,
		log:        logger,
	}
}

// Capability is the name of what this chain resolves
func (c *Chain[Req, T]) Capability() string { return c.capability }

// Names lists the providers in the order they are tried
func (c *Chain[Req, T]) Names() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Resolve walks the chain. Provider failures are logged and swallowed; only
// exhaustion of the whole chain or cancellation of ctx is returned.
func (c *Chain[Req, T]) Resolve(ctx context.Context, req Req) (Result[T], error) {
	var zero Result[T]
	if len(c.providers) == 0 {
		return zero, &AllProvidersExhausted{Capability: c.capability, Err: ErrNoProviders}
	}

	attempts := 0
	var last *ProviderFailure
	for _, p := range c.providers {
		for try := 0; ; try++ {
			if err := ctx.Err(); err != nil {
				return zero, fmt.Errorf("%s: %w", c.capability, err)
			}
			attempts++
			v, err := c.attempt(ctx, p, req)
			if err == nil {
				c.log.Info().Str("provider", p.Name()).Int("attempts", attempts).Msg("✅ resolved")
				if c.opts.Registry != nil {
					c.opts.Registry.Record(c.capability, p.Name())
				}
				return Result[T]{Value: v, Provider: p.Name(), Attempts: attempts}, nil
			}
			if ctx.Err() != nil {
				return zero, fmt.Errorf("%s: %w", c.capability, ctx.Err())
			}
			last = &ProviderFailure{Provider: p.Name(), Attempt: try + 1, Err: err}

			var warming *Initializing
			if errors.As(err, &warming) && try < c.opts.Retry.MaxRetries {
				wait := c.opts.Retry.Delay
				if warming.RetryAfter > 0 {
					wait = warming.RetryAfter
				}
				c.log.Warn().Str("provider", p.Name()).Dur("wait", wait).Int("retry", try+1).Msg("⏳ provider initializing, retrying")
				if err := sleep(ctx, wait); err != nil {
					return zero, fmt.Errorf("%s: %w", c.capability, err)
				}
				continue
			}
			c.log.Warn().Err(err).Str("provider", p.Name()).Msg("⚠️  provider failed, trying next")
			break
		}
	}
	return zero, &AllProvidersExhausted{
		Capability: c.capability,
		Provider:   last.Provider,
		Attempts:   attempts,
		Err:        last,
	}
}

func (c *Chain[Req, T]) attempt(ctx context.Context, p Provider[Req, T], req Req) (T, error) {
	if c.opts.AttemptTimeout <= 0 {
		return p.Resolve(ctx, req)
	}
	actx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
	defer cancel()
	return p.Resolve(actx, req)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
