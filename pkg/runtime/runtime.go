package runtime

import (
	"context"
	"sync"

	"github.com/cuemby/hearthd/pkg/asset"
	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/log"
	"github.com/cuemby/hearthd/pkg/lump"
	"github.com/cuemby/hearthd/pkg/postoffice"
	"github.com/cuemby/hearthd/pkg/process"
	"github.com/cuemby/hearthd/pkg/registry"
)

// Runtime is a fully built, not-yet-started hearthd instance.
type Runtime struct {
	po       *postoffice.PostOffice
	factory  *process.Factory
	lumps    *lump.Store
	assets   *asset.Store
	registry *registry.Registry

	runners []Runner

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// PostOffice returns the shared route registry.
func (rt *Runtime) PostOffice() *postoffice.PostOffice { return rt.po }

// Factory returns the shared process factory.
func (rt *Runtime) Factory() *process.Factory { return rt.factory }

// Lumps returns the shared content-addressed blob store.
func (rt *Runtime) Lumps() *lump.Store { return rt.lumps }

// Assets returns the shared typed-derivation store.
func (rt *Runtime) Assets() *asset.Store { return rt.assets }

// RegistryCapability returns the capability other processes use to
// issue Get/List requests against the registry.
func (rt *Runtime) RegistryCapability() hearth.Capability {
	return rt.registry.Capability()
}

// Start launches every accumulated runner in its own goroutine and
// blocks until all of them have signalled readiness, then returns.
// The runtime keeps running in the background until Shutdown is
// called or ctx is cancelled.
func (rt *Runtime) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel

	var ready sync.WaitGroup
	ready.Add(len(rt.runners))

	l := log.WithComponent("runtime")
	for i, run := range rt.runners {
		rt.wg.Add(1)
		go func(i int, run Runner) {
			defer rt.wg.Done()
			var once sync.Once
			signal := func() { once.Do(ready.Done) }
			if err := run(runCtx, signal); err != nil {
				l.Error().Err(err).Int("runner", i).Msg("runner exited with error")
			}
			signal() // a runner that errors before calling ready must not hang Start forever
		}(i, run)
	}

	ready.Wait()
	l.Info().Int("runners", len(rt.runners)).Msg("runtime started")
}

// Shutdown cancels every runner's context and waits for them to exit.
func (rt *Runtime) Shutdown() {
	if rt.cancel != nil {
		rt.cancel()
	}
	rt.wg.Wait()
}
