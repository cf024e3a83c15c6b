package wasmhost

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
)

// registerABI builds the five guest-facing host module namespaces:
// hearth::log, hearth::lump, hearth::table, hearth::mailbox, and
// hearth::metadata. Every function resolves its
// caller's guestState via the api.Module wazero passes as the
// function's first non-context argument, so one registration serves
// every guest the host ever spawns.
func (h *Host) registerABI(ctx context.Context) error {
	builders := []func(context.Context) error{
		h.registerLogABI,
		h.registerLumpABI,
		h.registerTableABI,
		h.registerMailboxABI,
		h.registerMetadataABI,
	}
	for _, b := range builders {
		if err := b(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) instantiateHostModule(ctx context.Context, name string, build func(wazero.HostModuleBuilder)) error {
	b := h.runtime.NewHostModuleBuilder(name)
	build(b)
	if _, err := b.Instantiate(ctx); err != nil {
		return fmt.Errorf("wasmhost: register %s: %w", name, err)
	}
	return nil
}
