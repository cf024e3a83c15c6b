package runtime

import (
	"context"
	"fmt"

	"github.com/cuemby/hearthd/pkg/wasmhost"
)

// WasmPlugin wires a wasmhost.Host into the runtime, registering the
// "wasm_module" asset loader during Build and exposing the
// constructed Host to later plugins (e.g. a control-plane service
// that accepts Spawn requests) via Host.
type WasmPlugin struct {
	Host *wasmhost.Host
}

func (p *WasmPlugin) Name() string { return "wasmhost" }

func (p *WasmPlugin) Build(b *Builder) error {
	host, err := wasmhost.New(context.Background(), b.Lumps(), b.Assets(), b.Factory(), b.PostOffice())
	if err != nil {
		return fmt.Errorf("wasmhost plugin: %w", err)
	}
	p.Host = host
	return nil
}

func (p *WasmPlugin) Finalize(b *Builder) error {
	svc := wasmhost.NewSpawnService(p.Host, b.Lumps(), b.Factory())
	b.AddService("wasm.spawn", svc.Capability(), func(ctx context.Context, ready func()) error {
		ready()
		svc.Run(ctx)
		return nil
	})

	b.AddRunner(func(ctx context.Context, ready func()) error {
		ready()
		<-ctx.Done()
		return p.Host.Close(context.Background())
	})
	return nil
}
