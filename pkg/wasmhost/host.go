package wasmhost

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/hearthd/pkg/asset"
	"github.com/cuemby/hearthd/pkg/lump"
	"github.com/cuemby/hearthd/pkg/metrics"
	"github.com/cuemby/hearthd/pkg/postoffice"
	"github.com/cuemby/hearthd/pkg/process"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// wasmModuleAssetType is the asset-store loader name under which
// compiled modules are cached, keyed by the module bytes' LumpId.
const wasmModuleAssetType = "wasm_module"

// epochQuantum is how often the host's background ticker re-checks
// every running guest's owning mailbox group for liveness.
const epochQuantum = 100 * time.Microsecond

// Host runs sandboxed WebAssembly guest processes sharing one wazero
// runtime, asset store, lump store, and process factory.
type Host struct {
	runtime wazero.Runtime
	assets  *asset.Store
	lumps   *lump.Store
	factory *process.Factory
	po      *postoffice.PostOffice

	guestsMu sync.RWMutex
	guests   map[api.Module]*guestState

	stopTicker context.CancelFunc
}

// New constructs a wasm host. The returned Host registers its ABI
// namespaces on the wazero runtime and a "wasm_module" loader on
// assets; callers are expected to have already constructed lumps,
// assets, factory, and po and to share them with the rest of the
// runtime.
func New(ctx context.Context, lumps *lump.Store, assets *asset.Store, factory *process.Factory, po *postoffice.PostOffice) (*Host, error) {
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(ctx, cfg)

	h := &Host{
		runtime: runtime,
		assets:  assets,
		lumps:   lumps,
		factory: factory,
		po:      po,
		guests:  make(map[api.Module]*guestState),
	}

	assets.Register(wasmModuleAssetType, func(data []byte) (any, error) {
		mod, err := runtime.CompileModule(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("wasmhost: compile module: %w", err)
		}
		return mod, nil
	})

	if err := h.registerABI(ctx); err != nil {
		runtime.Close(ctx)
		return nil, err
	}

	tickCtx, cancel := context.WithCancel(context.Background())
	h.stopTicker = cancel
	go h.runEpochTicker(tickCtx)

	return h, nil
}

// Close tears down every guest and the underlying wazero runtime.
func (h *Host) Close(ctx context.Context) error {
	h.stopTicker()
	return h.runtime.Close(ctx)
}

func (h *Host) guestOf(mod api.Module) *guestState {
	h.guestsMu.RLock()
	defer h.guestsMu.RUnlock()
	return h.guests[mod]
}

func (h *Host) registerGuest(mod api.Module, g *guestState) {
	h.guestsMu.Lock()
	defer h.guestsMu.Unlock()
	h.guests[mod] = g
	metrics.WasmGuestsActive.Inc()
}

func (h *Host) unregisterGuest(mod api.Module) {
	h.guestsMu.Lock()
	defer h.guestsMu.Unlock()
	delete(h.guests, mod)
	metrics.WasmGuestsActive.Dec()
}

// runEpochTicker periodically scans every live guest and cancels the
// per-call context feeding its wazero calls once its owning mailbox
// group has died, aborting any in-flight guest call promptly instead
// of waiting for a natural suspension point.
func (h *Host) runEpochTicker(ctx context.Context) {
	ticker := time.NewTicker(epochQuantum)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.guestsMu.RLock()
			dead := make([]*guestState, 0)
			for _, g := range h.guests {
				if g.isGroupKilled() {
					dead = append(dead, g)
				}
			}
			h.guestsMu.RUnlock()
			for _, g := range dead {
				g.cancelRun()
				metrics.WasmEpochPreemptionsTotal.Inc()
			}
		}
	}
}
