package retry

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/yaml.v3"

	"mazaochain/pkg/apperr"
)

const (
	PolicyLedger   = "ledger"
	PolicyDatabase = "database"
)

// Policy describes how an operation is re-run. Only errors accepted by
// Retryable are retried; everything else is returned on first occurrence.
type Policy struct {
	Name            string           `yaml:"-"`
	MaxAttempts     int              `yaml:"max_attempts"`
	InitialInterval time.Duration    `yaml:"initial_interval"`
	MaxInterval     time.Duration    `yaml:"max_interval"`
	Multiplier      float64          `yaml:"multiplier"`
	Jitter          float64          `yaml:"jitter"`
	Retryable       func(error) bool `yaml:"-"`
}

type Policies map[string]Policy

func DefaultPolicies() Policies {
	return Policies{
		PolicyLedger: {
			Name:            PolicyLedger,
			MaxAttempts:     3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2,
			Jitter:          0.3,
		},
		PolicyDatabase: {
			Name:            PolicyDatabase,
			MaxAttempts:     3,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     time.Second,
			Multiplier:      2,
			Jitter:          0.2,
		},
	}
}

// Get returns the named policy, or a single-attempt policy when unknown.
func (p Policies) Get(name string) Policy {
	if pol, ok := p[name]; ok {
		return pol
	}
	return Policy{Name: name, MaxAttempts: 1}
}

// LoadPolicies overlays policies from a yaml file on top of the defaults.
// An empty path returns the defaults.
//
//	ledger:
//	  max_attempts: 4
//	  initial_interval: 250ms
func LoadPolicies(path string) (Policies, error) {
	out := DefaultPolicies()
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read retry policy file %s: %w", path, err)
	}
	var raw map[string]Policy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse retry policy file %s: %w", path, err)
	}
	for name, pol := range raw {
		pol.Name = name
		if pol.MaxAttempts <= 0 {
			return nil, fmt.Errorf("retry policy %q: max_attempts must be positive", name)
		}
		out[name] = pol
	}
	return out, nil
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		eb.Multiplier = p.Multiplier
	}
	eb.RandomizationFactor = p.Jitter
	eb.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// Execute runs op under policy p and returns its result or the last error.
func Execute[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = apperr.IsRetryable
	}
	return backoff.RetryWithData(func() (T, error) {
		v, err := op(ctx)
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, p.backOff(ctx))
}

// Do is Execute for operations without a result.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Execute(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
