package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/1F47E/geo-outage-rtree/internal/logging"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
)

// Provider is a named NodeSource, typically one network operator.
type Provider struct {
	Name   string
	Source NodeSource
}

// Failure records a provider that could not deliver nodes.
type Failure struct {
	Provider string
	Err      error
}

func (f Failure) Error() string {
	return fmt.Sprintf("provider %s: %v", f.Provider, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Multi queries several providers concurrently and concatenates their nodes
// in provider order. A failing provider is skipped; the call fails only when
// every provider failed.
type Multi struct {
	providers []Provider
	log       logging.Logger
	onFailure func(provider string)

	mu       sync.Mutex
	failures []Failure
}

// MultiOption configures a Multi.
type MultiOption func(*Multi)

// WithLogger sets the logger used to report provider failures.
func WithLogger(log logging.Logger) MultiOption {
	return func(m *Multi) {
		if log != nil {
			m.log = log
		}
	}
}

// WithFailureHook registers fn to be called once per failed provider.
func WithFailureHook(fn func(provider string)) MultiOption {
	return func(m *Multi) { m.onFailure = fn }
}

func NewMulti(providers []Provider, opts ...MultiOption) *Multi {
	m := &Multi{
		providers: providers,
		log:       logging.Noop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Nodes implements NodeSource. Nodes without a provider label are stamped
// with the name of the provider that returned them.
func (m *Multi) Nodes(ctx context.Context) ([]models.Node, error) {
	results := make([][]models.Node, len(m.providers))
	errs := make([]error, len(m.providers))

	var wg sync.WaitGroup
	for i, p := range m.providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			results[i], errs[i] = p.Source.Nodes(ctx)
		}(i, p)
	}
	wg.Wait()

	var (
		nodes    []models.Node
		failures []Failure
	)
	for i, p := range m.providers {
		if errs[i] != nil {
			failures = append(failures, Failure{Provider: p.Name, Err: errs[i]})
			m.log.Warn(ctx, "node provider failed",
				logging.String("provider", p.Name),
				logging.Err(errs[i]))
			if m.onFailure != nil {
				m.onFailure(p.Name)
			}
			continue
		}
		for _, n := range results[i] {
			if n.Provider == "" {
				n.Provider = p.Name
			}
			nodes = append(nodes, n)
		}
	}

	m.mu.Lock()
	m.failures = failures
	m.mu.Unlock()

	if len(m.providers) > 0 && len(failures) == len(m.providers) {
		joined := make([]error, len(failures))
		for i := range failures {
			joined[i] = failures[i]
		}
		return nil, fmt.Errorf("all node providers failed: %w", errors.Join(joined...))
	}
	if nodes == nil {
		nodes = []models.Node{}
	}
	return nodes, nil
}

// Failures returns the providers that failed during the last Nodes call.
func (m *Multi) Failures() []Failure {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Failure, len(m.failures))
	copy(out, m.failures)
	return out
}
