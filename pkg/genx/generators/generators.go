// Package generators routes logical model names to genx.Generator
// implementations.
//
// The chat service talks to models by role ("chat-model", "title-model",
// "artifact-model", ...). A Mux maps those names to the provider generators
// built by modelloader.
package generators

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/haivivi/chatlogo/pkg/genx"
)

var _ genx.Generator = (*Mux)(nil)

// Mux is a generator multiplexer keyed by model name. It is safe for
// concurrent use.
type Mux struct {
	mu   sync.RWMutex
	gens map[string]genx.Generator
}

// NewMux creates an empty generator multiplexer.
func NewMux() *Mux {
	return &Mux{gens: make(map[string]genx.Generator)}
}

// Handle registers a generator under name.
// Returns an error if a generator is already registered for the name.
func (gm *Mux) Handle(name string, gen genx.Generator) error {
	if name == "" || gen == nil {
		return fmt.Errorf("generators: empty name or nil generator")
	}
	gm.mu.Lock()
	defer gm.mu.Unlock()
	if _, ok := gm.gens[name]; ok {
		return fmt.Errorf("generator already registered for %s", name)
	}
	gm.gens[name] = gen
	return nil
}

// Alias makes name resolve to the generator registered as target.
func (gm *Mux) Alias(name, target string) error {
	gen, err := gm.get(target)
	if err != nil {
		return err
	}
	return gm.Handle(name, gen)
}

// Has reports whether name is registered.
func (gm *Mux) Has(name string) bool {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	_, ok := gm.gens[name]
	return ok
}

// Names returns the registered names in sorted order.
func (gm *Mux) Names() []string {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	names := make([]string, 0, len(gm.gens))
	for n := range gm.gens {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// GenerateStream generates a stream by looking up the generator for name.
func (gm *Mux) GenerateStream(ctx context.Context, name string, mctx genx.ModelContext) (genx.Stream, error) {
	gen, err := gm.get(name)
	if err != nil {
		return nil, err
	}
	return gen.GenerateStream(ctx, name, mctx)
}

// Invoke invokes a function tool by looking up the generator for name.
func (gm *Mux) Invoke(ctx context.Context, name string, mctx genx.ModelContext, tool *genx.FuncTool) (genx.Usage, *genx.FuncCall, error) {
	gen, err := gm.get(name)
	if err != nil {
		return genx.Usage{}, nil, err
	}
	return gen.Invoke(ctx, name, mctx, tool)
}

func (gm *Mux) get(name string) (genx.Generator, error) {
	gm.mu.RLock()
	gen, ok := gm.gens[name]
	gm.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("generator not found for %s", name)
	}
	return gen, nil
}
