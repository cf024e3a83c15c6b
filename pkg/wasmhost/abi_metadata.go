package wasmhost

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func (h *Host) registerMetadataABI(ctx context.Context) error {
	return h.instantiateHostModule(ctx, "hearth::metadata", func(b wazero.HostModuleBuilder) {
		b.NewFunctionBuilder().WithFunc(h.abiMetadataSetName).Export("set_name")
		b.NewFunctionBuilder().WithFunc(h.abiMetadataSetDescription).Export("set_description")
		b.NewFunctionBuilder().WithFunc(h.abiMetadataAddAuthor).Export("add_author")
		b.NewFunctionBuilder().WithFunc(h.abiMetadataSetRepository).Export("set_repository")
		b.NewFunctionBuilder().WithFunc(h.abiMetadataSetHomepage).Export("set_homepage")
		b.NewFunctionBuilder().WithFunc(h.abiMetadataSetLicense).Export("set_license")
	})
}

// guestOfInMetadataPhase resolves the calling guest and rejects the call
// unless it is still in its metadata phase.
func (h *Host) guestOfInMetadataPhase(mod api.Module) (*guestState, uint32) {
	g := h.guestOf(mod)
	if g == nil {
		return nil, errFault
	}
	if guestPhase(g.phase.Load()) != phaseMetadata {
		return nil, errWrongPhase
	}
	return g, errOK
}

func (h *Host) abiMetadataSetName(ctx context.Context, mod api.Module, ptr, length uint32) uint32 {
	g, code := h.guestOfInMetadataPhase(mod)
	if g == nil {
		return code
	}
	s, ok := readGuestBytes(mod, ptr, length)
	if !ok {
		return errFault
	}
	g.metaMu.Lock()
	g.meta.Name = string(s)
	g.metaMu.Unlock()
	return errOK
}

func (h *Host) abiMetadataSetDescription(ctx context.Context, mod api.Module, ptr, length uint32) uint32 {
	g, code := h.guestOfInMetadataPhase(mod)
	if g == nil {
		return code
	}
	s, ok := readGuestBytes(mod, ptr, length)
	if !ok {
		return errFault
	}
	g.metaMu.Lock()
	g.meta.Description = string(s)
	g.metaMu.Unlock()
	return errOK
}

func (h *Host) abiMetadataAddAuthor(ctx context.Context, mod api.Module, ptr, length uint32) uint32 {
	g, code := h.guestOfInMetadataPhase(mod)
	if g == nil {
		return code
	}
	s, ok := readGuestBytes(mod, ptr, length)
	if !ok {
		return errFault
	}
	g.metaMu.Lock()
	g.meta.Authors = append(g.meta.Authors, string(s))
	g.metaMu.Unlock()
	return errOK
}

func (h *Host) abiMetadataSetRepository(ctx context.Context, mod api.Module, ptr, length uint32) uint32 {
	g, code := h.guestOfInMetadataPhase(mod)
	if g == nil {
		return code
	}
	s, ok := readGuestBytes(mod, ptr, length)
	if !ok {
		return errFault
	}
	g.metaMu.Lock()
	g.meta.Repository = string(s)
	g.metaMu.Unlock()
	return errOK
}

func (h *Host) abiMetadataSetHomepage(ctx context.Context, mod api.Module, ptr, length uint32) uint32 {
	g, code := h.guestOfInMetadataPhase(mod)
	if g == nil {
		return code
	}
	s, ok := readGuestBytes(mod, ptr, length)
	if !ok {
		return errFault
	}
	g.metaMu.Lock()
	g.meta.Homepage = string(s)
	g.metaMu.Unlock()
	return errOK
}

func (h *Host) abiMetadataSetLicense(ctx context.Context, mod api.Module, ptr, length uint32) uint32 {
	g, code := h.guestOfInMetadataPhase(mod)
	if g == nil {
		return code
	}
	s, ok := readGuestBytes(mod, ptr, length)
	if !ok {
		return errFault
	}
	g.metaMu.Lock()
	g.meta.License = string(s)
	g.metaMu.Unlock()
	return errOK
}
