package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moolen/tripwire/internal/logging"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	rollbackTimeout        = 5 * time.Second
)

// Manager starts registered components after their dependencies and stops
// them in reverse start order.
type Manager struct {
	mu              sync.Mutex
	components      []Component
	dependencies    map[Component][]Component
	started         []Component
	shutdownTimeout time.Duration
	logger          *logging.Logger
}

// NewManager creates a manager with a 30 second per-component shutdown timeout.
func NewManager() *Manager {
	return &Manager{
		dependencies:    make(map[Component][]Component),
		shutdownTimeout: defaultShutdownTimeout,
		logger:          logging.GetLogger("lifecycle"),
	}
}

// Register adds a component. Dependencies must already be registered, which
// also rules out cycles.
func (m *Manager) Register(component Component, dependsOn ...Component) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if component == nil {
		return fmt.Errorf("cannot register nil component")
	}
	if component.Name() == "" {
		return fmt.Errorf("component must have a non-empty name")
	}
	if _, ok := m.dependencies[component]; ok {
		return fmt.Errorf("component %s is already registered", component.Name())
	}
	for _, dep := range dependsOn {
		if dep == component {
			return fmt.Errorf("component %s cannot depend on itself", component.Name())
		}
		if _, ok := m.dependencies[dep]; !ok {
			return fmt.Errorf("dependency %s is not registered", dep.Name())
		}
	}

	m.components = append(m.components, component)
	m.dependencies[component] = append([]Component(nil), dependsOn...)
	m.logger.Debug("Registered component %s with %d dependencies", component.Name(), len(dependsOn))
	return nil
}

// Start starts every component in dependency order. On failure the components
// started so far are stopped in reverse order and the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = nil
	for _, component := range m.order() {
		startTime := time.Now()
		if err := component.Start(ctx); err != nil {
			m.logger.Error("Failed to start %s: %v", component.Name(), err)
			m.rollback()
			return fmt.Errorf("initialization failed for %s: %w", component.Name(), err)
		}
		m.started = append(m.started, component)
		m.logger.Info("%s started (took %dms)", component.Name(), time.Since(startTime).Milliseconds())
	}
	return nil
}

// Stop stops started components in reverse order. Each component gets its
// own shutdown timeout. Errors are logged and joined.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		component := m.started[i]
		componentCtx, cancel := context.WithTimeout(ctx, m.shutdownTimeout)
		err := component.Stop(componentCtx)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				m.logger.Warn("%s exceeded its %v shutdown timeout", component.Name(), m.shutdownTimeout)
			} else {
				m.logger.Error("Error stopping %s: %v", component.Name(), err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", component.Name(), err))
			continue
		}
		m.logger.Debug("%s stopped", component.Name())
	}
	m.started = nil
	return errors.Join(errs...)
}

// Running returns the names of started components in start order.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.started))
	for i, c := range m.started {
		names[i] = c.Name()
	}
	return names
}

// SetShutdownTimeout sets the per-component grace period used by Stop.
func (m *Manager) SetShutdownTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownTimeout = timeout
}

// order returns the components with dependencies first, otherwise in
// registration order.
func (m *Manager) order() []Component {
	visited := make(map[Component]bool)
	var sorted []Component
	var visit func(c Component)
	visit = func(c Component) {
		if visited[c] {
			return
		}
		visited[c] = true
		for _, dep := range m.dependencies[c] {
			visit(dep)
		}
		sorted = append(sorted, c)
	}
	for _, c := range m.components {
		visit(c)
	}
	return sorted
}

func (m *Manager) rollback() {
	for i := len(m.started) - 1; i >= 0; i-- {
		component := m.started[i]
		ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
		if err := component.Stop(ctx); err != nil {
			m.logger.Warn("Error stopping %s during rollback: %v", component.Name(), err)
		}
		cancel()
	}
	m.started = nil
}
