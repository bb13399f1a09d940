package backend

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	apperrors "github.com/allisson/credstore/internal/errors"
)

// Instance is a registered backend instance. Lower priority wins.
type Instance struct {
	ID       string
	Priority int
}

// Registry hands the core the registered instances and a call-capable handle per instance.
type Registry interface {
	Instances(ctx context.Context) ([]Instance, error)
	Handle(ctx context.Context, instanceID string) (Plugin, error)
}

// Factory builds the plugin of one instance.
type Factory func(ctx context.Context, instanceID string) (Plugin, error)

// StaticRegistry is a Registry built from configuration. Plugins are constructed lazily
// on first use and cached; a failed construction is retried on the next call.
type StaticRegistry struct {
	instances []Instance
	kinds     map[string]string
	factories map[string]Factory

	mu      sync.Mutex
	plugins map[string]Plugin
}

// ParseInstances parses "kind[/name]:priority" entries separated by commas, e.g.
// "embedded:10,vault/primary:20". The instance ID is the entry without its priority.
func ParseInstances(spec string) ([]Instance, error) {
	var instances []Instance
	seen := make(map[string]struct{})

	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		id, priority, ok := strings.Cut(entry, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: backend entry %q must be kind[/name]:priority", apperrors.ErrInvalidInput, entry)
		}
		p, err := strconv.Atoi(priority)
		if err != nil {
			return nil, fmt.Errorf("%w: backend entry %q has invalid priority", apperrors.ErrInvalidInput, entry)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate backend instance %q", apperrors.ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
		instances = append(instances, Instance{ID: id, Priority: p})
	}

	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: no backend configured", apperrors.ErrInvalidInput)
	}
	return instances, nil
}

func kindOf(instanceID string) string {
	kind, _, _ := strings.Cut(instanceID, "/")
	return kind
}

// NewStaticRegistry creates a registry from a BACKENDS spec and a factory per kind.
func NewStaticRegistry(spec string, factories map[string]Factory) (*StaticRegistry, error) {
	instances, err := ParseInstances(spec)
	if err != nil {
		return nil, err
	}

	kinds := make(map[string]string, len(instances))
	for _, inst := range instances {
		kind := kindOf(inst.ID)
		if _, ok := factories[kind]; !ok {
			return nil, fmt.Errorf("%w: unknown backend kind %q", apperrors.ErrInvalidInput, kind)
		}
		kinds[inst.ID] = kind
	}

	return &StaticRegistry{
		instances: instances,
		kinds:     kinds,
		factories: factories,
		plugins:   make(map[string]Plugin),
	}, nil
}

// Instances returns a copy of the configured instances.
func (r *StaticRegistry) Instances(ctx context.Context) ([]Instance, error) {
	return append([]Instance(nil), r.instances...), nil
}

// Handle returns the plugin of instanceID.
func (r *StaticRegistry) Handle(ctx context.Context, instanceID string) (Plugin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.plugins[instanceID]; ok {
		return p, nil
	}
	kind, ok := r.kinds[instanceID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown backend instance %q", apperrors.ErrPluginUnavailable, instanceID)
	}

	p, err := r.factories[kind](ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnavailable, err)
	}
	r.plugins[instanceID] = p
	return p, nil
}
