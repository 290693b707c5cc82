// Package components owns the long-lived dependencies of a process and
// brings them up and down in dependency order.
package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"evently/internal/graph"
)

const (
	StorageComponentName  = "storage"
	QueueComponentName    = "queue"
	PlatformComponentName = "platforms"
	ImagesComponentName   = "images"
	ServerComponentName   = "server"
)

type IComponent interface {
	Name() string
	Dependencies() []string
	Validate() error
	Initialize(ctx context.Context) error
	Close(ctx context.Context) error
}

type Registry struct {
	components map[string]IComponent
	order      []string
}

func NewRegistry() *Registry {
	return &Registry{
		components: make(map[string]IComponent),
		order:      make([]string, 0),
	}
}

func (r *Registry) Register(component IComponent) error {
	name := component.Name()
	if _, exists := r.components[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}
	r.components[name] = component
	return nil
}

func (r *Registry) Get(name string) IComponent {
	comp, exists := r.components[name]
	if !exists {
		panic(fmt.Sprintf("component %s not found", name))
	}
	return comp
}

func (r *Registry) Has(name string) bool {
	_, exists := r.components[name]
	return exists
}

// InitializeAll validates every component, then initializes them
// dependencies-first. On failure the components already up are closed.
func (r *Registry) InitializeAll(ctx context.Context) error {
	nodes := make(map[string]graph.Node)
	for name, comp := range r.components {
		nodes[name] = &componentNode{comp: comp}
	}

	if err := graph.ValidateGraph(nodes); err != nil {
		return err
	}
	order, err := graph.TopologicalSort(nodes)
	if err != nil {
		return err
	}

	for _, name := range order {
		comp := r.components[name]
		if err := comp.Validate(); err != nil {
			return fmt.Errorf("component %s validation failed: %w", name, err)
		}
	}

	for _, name := range order {
		comp := r.components[name]
		if err := comp.Initialize(ctx); err != nil {
			closeErr := r.CloseAll(ctx)
			if closeErr != nil {
				slog.Warn("Cleanup after failed initialization", "error", closeErr)
			}
			return fmt.Errorf("component %s initialization failed: %w", name, err)
		}
		r.order = append(r.order, name)
		slog.Debug("Component initialized", "component", name)
	}

	return nil
}

type componentNode struct {
	comp IComponent
}

func (cn *componentNode) GetName() string {
	return cn.comp.Name()
}

func (cn *componentNode) GetDependencies() []string {
	return cn.comp.Dependencies()
}

// CloseAll closes initialized components in reverse order and reports every
// failure.
func (r *Registry) CloseAll(ctx context.Context) error {
	var result *multierror.Error
	for _, name := range graph.Reverse(r.order) {
		if err := r.components[name].Close(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", name, err))
		}
	}
	r.order = r.order[:0]
	return result.ErrorOrNil()
}
