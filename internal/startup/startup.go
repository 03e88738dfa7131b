// Package startup restores in-flight work after a restart: outbox rows left
// in the sending state and recovery messages that came due while the process
// was down.
package startup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/ShopPipe/internal/cartrecovery"
	"github.com/BTreeMap/ShopPipe/internal/store"
)

// Recoverable is a component that restores its state on startup.
type Recoverable interface {
	RecoverState(ctx context.Context) error
}

// RecoverFunc adapts a function to Recoverable.
type RecoverFunc func(ctx context.Context) error

// RecoverState calls f.
func (f RecoverFunc) RecoverState(ctx context.Context) error {
	return f(ctx)
}

type component struct {
	name string
	r    Recoverable
}

// Manager runs every registered component once, in registration order.
type Manager struct {
	components []component
}

// NewManager creates an empty recovery manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a component under a name used in logs.
func (m *Manager) Register(name string, r Recoverable) {
	m.components = append(m.components, component{name: name, r: r})
}

// RecoverAll runs every component. A failing component does not stop the
// others; the returned error counts the failures.
func (m *Manager) RecoverAll(ctx context.Context) error {
	slog.Info("Manager.RecoverAll: starting recovery", "components", len(m.components))

	failed := 0
	for _, c := range m.components {
		if err := c.r.RecoverState(ctx); err != nil {
			slog.Error("Manager.RecoverAll: component recovery failed", "component", c.name, "error", err)
			failed++
			continue
		}
		slog.Debug("Manager.RecoverAll: component recovered", "component", c.name)
	}

	slog.Info("Manager.RecoverAll: recovery completed", "recovered", len(m.components)-failed, "errors", failed)
	if failed > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d components", failed, len(m.components))
	}
	return nil
}

// OutboxRecovery requeues messages a crashed sender left mid-delivery.
func OutboxRecovery(sender *store.OutboxSender) Recoverable {
	return RecoverFunc(func(context.Context) error {
		return sender.RecoverStaleMessages()
	})
}

// AutomationCatchUp runs the cart recovery automation once so carts that came
// due during downtime are not held until the next scheduled tick.
func AutomationCatchUp(runner *cartrecovery.Runner) Recoverable {
	return RecoverFunc(func(ctx context.Context) error {
		result := runner.RunOnce(ctx)
		if !result.Success {
			return errors.New(result.Error)
		}
		slog.Info("AutomationCatchUp: run completed", "sent", result.Sent, "failures", len(result.Failures), "skipped", result.Skipped)
		return nil
	})
}
