package runtime

import (
	"context"
	"fmt"

	"github.com/cuemby/hearthd/pkg/asset"
	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/lump"
	"github.com/cuemby/hearthd/pkg/postoffice"
	"github.com/cuemby/hearthd/pkg/process"
	"github.com/cuemby/hearthd/pkg/registry"
)

// Runner is one long-running service loop. It must block until ctx is
// cancelled (or its own mailbox group dies), calling ready once it has
// reached its main loop.
type Runner func(ctx context.Context, ready func()) error

// Plugin contributes services, asset loaders, runners, or further
// plugins to a Builder. Build runs synchronously inside AddPlugin.
type Plugin interface {
	Name() string
	Build(b *Builder) error
}

// Finalizer is an optional second phase a Plugin may implement, run
// after every plugin's Build has completed, in reverse build order.
type Finalizer interface {
	Finalize(b *Builder) error
}

// Builder assembles the shared resources of one hearthd instance —
// the post office, the process factory, the lump and asset stores —
// and accumulates plugins, services, and runners against them.
type Builder struct {
	po      *postoffice.PostOffice
	factory *process.Factory
	lumps   *lump.Store
	assets  *asset.Store
	reg     *registry.Builder

	runners []Runner

	// pending is both the build queue and the finalize stack: AddPlugin
	// pushes before calling Build (and drops the plugin again if Build
	// fails), so plugins a Build call adds sit above the plugin that
	// added them, and Finish pops from the end
	// (LIFO) calling Finalize, so plugins a Finalize call adds run
	// before the plugins already on the stack beneath them.
	pending []Plugin
}

// Option configures a Builder at construction time.
type Option func(*Builder)

// WithLumpBacking gives the lump store durable backing (e.g. a bbolt
// file), rather than the default memory-only store.
func WithLumpBacking(backing lump.Backing) Option {
	return func(b *Builder) {
		b.lumps = lump.New(lump.WithBacking(backing))
	}
}

// New constructs an empty Builder: a fresh post office, process
// factory, lump store, asset store, and registry builder, ready for
// AddPlugin/AddService/AddRunner calls.
func New(opts ...Option) *Builder {
	po := postoffice.New()
	b := &Builder{
		po:      po,
		factory: process.NewFactory(po),
		lumps:   lump.New(),
		reg:     registry.NewBuilder(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.assets = asset.New(b.lumps)
	return b
}

// PostOffice returns the shared route registry.
func (b *Builder) PostOffice() *postoffice.PostOffice { return b.po }

// Factory returns the shared process factory.
func (b *Builder) Factory() *process.Factory { return b.factory }

// Lumps returns the shared content-addressed blob store.
func (b *Builder) Lumps() *lump.Store { return b.lumps }

// Assets returns the shared typed-derivation store.
func (b *Builder) Assets() *asset.Store { return b.assets }

// AddAssetLoader registers a named asset loader, delegating to the
// shared asset store.
func (b *Builder) AddAssetLoader(name string, loader asset.Loader) {
	b.assets.Register(name, loader)
}

// AddRunner schedules run to start once the runtime starts, independent
// of any named service registration.
func (b *Builder) AddRunner(run Runner) {
	b.runners = append(b.runners, run)
}

// AddService registers cap under name in the registry and schedules
// run as one of the runtime's runners, so a service added before
// start is both discoverable via the registry and running by the
// time the runtime reports ready.
func (b *Builder) AddService(name string, cap hearth.Capability, run Runner) {
	b.reg.Add(name, cap)
	b.AddRunner(run)
}

// AddPlugin records p so its Finalize (if any) runs during Finish,
// then runs p's Build callback immediately.
func (b *Builder) AddPlugin(p Plugin) error {
	idx := len(b.pending)
	b.pending = append(b.pending, p)
	if err := p.Build(b); err != nil {
		b.pending = append(b.pending[:idx], b.pending[idx+1:]...)
		return fmt.Errorf("runtime: plugin %q build: %w", p.Name(), err)
	}
	return nil
}

// Finish finalizes every plugin in reverse build order — popping a
// LIFO stack that Finalize calls may themselves push onto — then
// spawns the immutable registry process and returns a Runtime ready
// to Start.
func (b *Builder) Finish() (*Runtime, error) {
	for len(b.pending) > 0 {
		n := len(b.pending) - 1
		p := b.pending[n]
		b.pending = b.pending[:n]

		f, ok := p.(Finalizer)
		if !ok {
			continue
		}
		if err := f.Finalize(b); err != nil {
			return nil, fmt.Errorf("runtime: plugin %q finalize: %w", p.Name(), err)
		}
	}

	reg := b.reg.Build(b.factory)
	b.AddRunner(func(ctx context.Context, ready func()) error {
		ready()
		reg.Run(ctx)
		return nil
	})

	return &Runtime{
		po:       b.po,
		factory:  b.factory,
		lumps:    b.lumps,
		assets:   b.assets,
		registry: reg,
		runners:  b.runners,
	}, nil
}
