package backend

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	apperrors "github.com/allisson/credstore/internal/errors"
	"github.com/allisson/credstore/internal/resilience"
)

// Handle is the active backend selected for one top-level call.
type Handle struct {
	InstanceID string
	Priority   int
	Plugin     Plugin
	Breaker    *resilience.CircuitBreaker
}

// Selector picks the single active backend instance.
type Selector struct {
	registry Registry
	breakers *resilience.BreakerSet
	logger   *slog.Logger
}

// NewSelector creates a Selector. Breakers are owned by the set and shared with the dispatcher.
func NewSelector(registry Registry, breakers *resilience.BreakerSet, logger *slog.Logger) *Selector {
	return &Selector{registry: registry, breakers: breakers, logger: logger}
}

// SelectActive returns the eligible instance with the lowest priority, ties broken by
// instance ID. An instance is eligible while its breaker admits calls and, when ctx
// requires encryption, its plugin encrypts at rest. Nothing is cached:
// every call re-reads the registry so a recovered higher-priority instance takes over again.
func (s *Selector) SelectActive(ctx context.Context) (*Handle, error) {
	instances, err := s.registry.Instances(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPluginUnavailable, err.Error())
	}

	instances = slices.Clone(instances)
	slices.SortFunc(instances, func(a, b Instance) int {
		return cmp.Or(cmp.Compare(a.Priority, b.Priority), cmp.Compare(a.ID, b.ID))
	})

	requireEncryption := EncryptionRequired(ctx)
	for _, inst := range instances {
		breaker := s.breakers.Get(inst.ID)
		if !breaker.Eligible() {
			continue
		}

		plugin, err := s.registry.Handle(ctx, inst.ID)
		if err != nil {
			s.logger.Warn("backend instance unavailable",
				slog.String("instance_id", inst.ID),
				slog.String("error_code", apperrors.Code(err)),
			)
			breaker.Failure()
			continue
		}
		if requireEncryption && !encryptsAtRest(plugin) {
			continue
		}

		return &Handle{
			InstanceID: inst.ID,
			Priority:   inst.Priority,
			Plugin:     plugin,
			Breaker:    breaker,
		}, nil
	}

	return nil, apperrors.Wrap(apperrors.ErrPluginUnavailable, "no eligible backend")
}
