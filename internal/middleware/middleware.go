// Package middleware runs the per-payload stage chain of an ingestion job.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"evently/internal/dedup"
	"evently/internal/graph"
	"evently/internal/storage"
	"evently/internal/types"
)

// Item carries one raw payload through the chain. Stages fill Event and
// Outcome as they go.
type Item struct {
	Raw     types.RawEvent
	Job     types.Job
	Batch   storage.EventBatch
	Event   *types.Event
	Outcome dedup.Outcome
}

// Stage is one step of the chain. Returning types.ErrDuplicate or a
// *types.ValidationError stops the item without failing the job.
type Stage interface {
	Name() string
	DependsOn() []string
	Process(ctx context.Context, item *Item) error
}

type ProcessorChain struct {
	logger *slog.Logger
	stages map[string]Stage
	order  []string
	mu     sync.RWMutex
}

func New(logger *slog.Logger) *ProcessorChain {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessorChain{
		logger: logger,
		stages: make(map[string]Stage),
	}
}

func (pc *ProcessorChain) With(stage Stage) *ProcessorChain {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.stages[stage.Name()] = stage
	pc.order = nil
	return pc
}

func (pc *ProcessorChain) WithMultiple(stages ...Stage) *ProcessorChain {
	for _, stage := range stages {
		pc.With(stage)
	}
	return pc
}

func (pc *ProcessorChain) Execute(ctx context.Context, item *Item) error {
	order, err := pc.Order()
	if err != nil {
		return err
	}

	for _, name := range order {
		pc.mu.RLock()
		stage := pc.stages[name]
		pc.mu.RUnlock()

		if err := stage.Process(ctx, item); err != nil {
			pc.logger.Debug("Stage stopped item", "stage", name, "title", item.Raw.Title, "error", err)
			return fmt.Errorf("stage %s: %w", name, err)
		}
	}

	return nil
}

// Order returns the stage names dependencies-first.
func (pc *ProcessorChain) Order() ([]string, error) {
	pc.mu.RLock()
	if pc.order != nil {
		defer pc.mu.RUnlock()
		return pc.order, nil
	}

	nodes := make(map[string]graph.Node, len(pc.stages))
	for name, stage := range pc.stages {
		nodes[name] = stageNode{stage}
	}
	pc.mu.RUnlock()

	if err := graph.ValidateGraph(nodes); err != nil {
		return nil, err
	}
	order, err := graph.TopologicalSort(nodes)
	if err != nil {
		return nil, err
	}

	pc.mu.Lock()
	pc.order = order
	pc.mu.Unlock()

	pc.logger.Debug("Stage execution order", "order", order)
	return order, nil
}

type stageNode struct {
	stage Stage
}

func (n stageNode) GetName() string           { return n.stage.Name() }
func (n stageNode) GetDependencies() []string { return n.stage.DependsOn() }
