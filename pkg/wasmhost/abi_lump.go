package wasmhost

import (
	"context"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func (h *Host) registerLumpABI(ctx context.Context) error {
	return h.instantiateHostModule(ctx, "hearth::lump", func(b wazero.HostModuleBuilder) {
		b.NewFunctionBuilder().WithFunc(h.abiLumpThisLump).Export("this_lump")
		b.NewFunctionBuilder().WithFunc(h.abiLumpLoad).Export("load")
		b.NewFunctionBuilder().WithFunc(h.abiLumpLoadByID).Export("load_by_id")
		b.NewFunctionBuilder().WithFunc(h.abiLumpGetID).Export("get_id")
		b.NewFunctionBuilder().WithFunc(h.abiLumpGetLen).Export("get_len")
		b.NewFunctionBuilder().WithFunc(h.abiLumpGetData).Export("get_data")
		b.NewFunctionBuilder().WithFunc(h.abiLumpFree).Export("free")
	})
}

// guestLump resolves a guest-local lump handle to its LumpId.
func (g *guestState) guestLump(handle uint32) (hearth.LumpId, bool) {
	g.lumpMu.Lock()
	defer g.lumpMu.Unlock()
	id, ok := g.lumpHandles[handle]
	return id, ok
}

func (g *guestState) addLumpHandle(id hearth.LumpId) uint32 {
	g.lumpMu.Lock()
	defer g.lumpMu.Unlock()
	h := g.nextLumpHandle
	g.nextLumpHandle++
	g.lumpHandles[h] = id
	return h
}

// abiLumpThisLump returns a guest-local handle to the lump this guest
// module itself was loaded from.
func (h *Host) abiLumpThisLump(ctx context.Context, mod api.Module, outHandlePtr uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	handle := g.addLumpHandle(g.moduleLump)
	if !writeGuestU32(mod, outHandlePtr, handle) {
		return errFault
	}
	return errOK
}

// abiLumpLoad ingests ptr/len bytes from guest memory into the shared
// lump store and returns a guest-local handle for subsequent get_*
// calls.
func (h *Host) abiLumpLoad(ctx context.Context, mod api.Module, ptr, length, outHandlePtr uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	data, ok := readGuestBytes(mod, ptr, length)
	if !ok {
		return errFault
	}
	id, err := h.lumps.Add(data)
	if err != nil {
		return errFault
	}
	handle := g.addLumpHandle(id)
	if !writeGuestU32(mod, outHandlePtr, handle) {
		return errFault
	}
	return errOK
}

// abiLumpLoadByID looks up a lump the guest already knows the id of
// (e.g. a sibling asset produced elsewhere), reading the 32-byte digest
// from guest memory at idPtr.
func (h *Host) abiLumpLoadByID(ctx context.Context, mod api.Module, idPtr, outHandlePtr uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	raw, ok := readGuestBytes(mod, idPtr, 32)
	if !ok {
		return errFault
	}
	var id hearth.LumpId
	copy(id[:], raw)

	if _, found := h.lumps.Get(id); !found {
		return errFault
	}
	handle := g.addLumpHandle(id)
	if !writeGuestU32(mod, outHandlePtr, handle) {
		return errFault
	}
	return errOK
}

func (h *Host) abiLumpGetID(ctx context.Context, mod api.Module, handle, outPtr uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	id, ok := g.guestLump(handle)
	if !ok {
		return errInvalidHandle
	}
	if !writeGuestBytes(mod, outPtr, id[:]) {
		return errFault
	}
	return errOK
}

func (h *Host) abiLumpGetLen(ctx context.Context, mod api.Module, handle, outLenPtr uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	id, ok := g.guestLump(handle)
	if !ok {
		return errInvalidHandle
	}
	data, ok := h.lumps.Get(id)
	if !ok {
		return errFault
	}
	if !writeGuestU32(mod, outLenPtr, uint32(len(data))) {
		return errFault
	}
	return errOK
}

func (h *Host) abiLumpGetData(ctx context.Context, mod api.Module, handle, dstPtr, dstLen uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	id, ok := g.guestLump(handle)
	if !ok {
		return errInvalidHandle
	}
	data, ok := h.lumps.Get(id)
	if !ok {
		return errFault
	}
	if uint32(len(data)) > dstLen {
		return errFault
	}
	if !writeGuestBytes(mod, dstPtr, data) {
		return errFault
	}
	return errOK
}

func (h *Host) abiLumpFree(ctx context.Context, mod api.Module, handle uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	g.lumpMu.Lock()
	defer g.lumpMu.Unlock()
	delete(g.lumpHandles, handle)
	return errOK
}
