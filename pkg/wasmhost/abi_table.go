package wasmhost

import (
	"context"
	"errors"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func (h *Host) registerTableABI(ctx context.Context) error {
	return h.instantiateHostModule(ctx, "hearth::table", func(b wazero.HostModuleBuilder) {
		b.NewFunctionBuilder().WithFunc(h.abiTableIncRef).Export("inc_ref")
		b.NewFunctionBuilder().WithFunc(h.abiTableDecRef).Export("dec_ref")
		b.NewFunctionBuilder().WithFunc(h.abiTableGetPermissions).Export("get_permissions")
		b.NewFunctionBuilder().WithFunc(h.abiTableDemote).Export("demote")
		b.NewFunctionBuilder().WithFunc(h.abiTableSend).Export("send")
		b.NewFunctionBuilder().WithFunc(h.abiTableKill).Export("kill")
	})
}

func tableErrCode(err error) uint32 {
	switch {
	case err == nil:
		return errOK
	case errors.Is(err, hearth.ErrInvalidHandle):
		return errInvalidHandle
	case errors.Is(err, hearth.ErrPermissionDenied), errors.Is(err, hearth.ErrPermissionEscalate):
		return errPermissionDenied
	case errors.Is(err, hearth.ErrGroupKilled), errors.Is(err, hearth.ErrRouteClosed):
		return errGroupKilled
	default:
		return errFault
	}
}

func (h *Host) abiTableIncRef(ctx context.Context, mod api.Module, handle uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	return tableErrCode(g.proc.Table.IncRef(hearth.Handle(handle)))
}

func (h *Host) abiTableDecRef(ctx context.Context, mod api.Module, handle uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	return tableErrCode(g.proc.Table.DecRef(hearth.Handle(handle)))
}

func (h *Host) abiTableGetPermissions(ctx context.Context, mod api.Module, handle, outPtr uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	perms, err := g.proc.Table.GetPermissions(hearth.Handle(handle))
	if err != nil {
		return tableErrCode(err)
	}
	if !writeGuestU32(mod, outPtr, uint32(perms)) {
		return errFault
	}
	return errOK
}

func (h *Host) abiTableDemote(ctx context.Context, mod api.Module, handle, newPerms, outHandlePtr uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	demoted, err := g.proc.Table.Demote(hearth.Handle(handle), hearth.Permissions(newPerms))
	if err != nil {
		return tableErrCode(err)
	}
	if !writeGuestU32(mod, outHandlePtr, uint32(demoted)) {
		return errFault
	}
	return errOK
}

func (h *Host) abiTableSend(ctx context.Context, mod api.Module, handle, dataPtr, dataLen, capsPtr, capsLen uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	data, ok := readGuestBytes(mod, dataPtr, dataLen)
	if !ok {
		return errFault
	}
	caps := make([]hearth.Handle, capsLen)
	for i := uint32(0); i < capsLen; i++ {
		v, ok := readGuestU32(mod, capsPtr+i*4)
		if !ok {
			return errFault
		}
		caps[i] = hearth.Handle(v)
	}
	return tableErrCode(g.proc.Table.Send(hearth.Handle(handle), data, caps))
}

func (h *Host) abiTableKill(ctx context.Context, mod api.Module, handle uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	return tableErrCode(g.proc.Table.Kill(hearth.Handle(handle)))
}
