package wasmhost

import (
	"context"
	"errors"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/postoffice"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func (h *Host) registerMailboxABI(ctx context.Context) error {
	return h.instantiateHostModule(ctx, "hearth::mailbox", func(b wazero.HostModuleBuilder) {
		b.NewFunctionBuilder().WithFunc(h.abiMailboxCreate).Export("create")
		b.NewFunctionBuilder().WithFunc(h.abiMailboxDestroy).Export("destroy")
		b.NewFunctionBuilder().WithFunc(h.abiMailboxMakeCapability).Export("make_capability")
		b.NewFunctionBuilder().WithFunc(h.abiMailboxMonitor).Export("monitor")
		b.NewFunctionBuilder().WithFunc(h.abiMailboxRecv).Export("recv")
		b.NewFunctionBuilder().WithFunc(h.abiMailboxTryRecv).Export("try_recv")
		b.NewFunctionBuilder().WithFunc(h.abiMailboxPoll).Export("poll")
		b.NewFunctionBuilder().WithFunc(h.abiMailboxDestroySignal).Export("destroy_signal")
		b.NewFunctionBuilder().WithFunc(h.abiMailboxGetSignalKind).Export("get_signal_kind")
		b.NewFunctionBuilder().WithFunc(h.abiMailboxGetDownCapability).Export("get_down_capability")
		b.NewFunctionBuilder().WithFunc(h.abiMailboxGetMessageDataLen).Export("get_message_data_len")
		b.NewFunctionBuilder().WithFunc(h.abiMailboxGetMessageData).Export("get_message_data")
		b.NewFunctionBuilder().WithFunc(h.abiMailboxGetMessageCapsNum).Export("get_message_caps_num")
		b.NewFunctionBuilder().WithFunc(h.abiMailboxGetMessageCaps).Export("get_message_caps")
	})
}

func (g *guestState) mailbox(handle uint32) (*postoffice.Mailbox, bool) {
	g.mbMu.Lock()
	defer g.mbMu.Unlock()
	mb, ok := g.mailboxes[handle]
	return mb, ok
}

func (g *guestState) addMailbox(mb *postoffice.Mailbox) uint32 {
	g.mbMu.Lock()
	defer g.mbMu.Unlock()
	h := g.nextMbHandle
	g.nextMbHandle++
	g.mailboxes[h] = mb
	return h
}

func (g *guestState) addSignal(sig postoffice.Signal) uint32 {
	g.sigMu.Lock()
	defer g.sigMu.Unlock()
	h := g.nextSigHandle
	g.nextSigHandle++
	g.signals[h] = sig
	return h
}

func (g *guestState) signal(handle uint32) (postoffice.Signal, bool) {
	g.sigMu.Lock()
	defer g.sigMu.Unlock()
	sig, ok := g.signals[handle]
	return sig, ok
}

func (h *Host) abiMailboxCreate(ctx context.Context, mod api.Module, outHandlePtr uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	mb := g.proc.Group.NewMailbox()
	handle := g.addMailbox(mb)
	if !writeGuestU32(mod, outHandlePtr, handle) {
		return errFault
	}
	return errOK
}

func (h *Host) abiMailboxDestroy(ctx context.Context, mod api.Module, handle uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	if handle == uint32(0) {
		return errPermissionDenied // handle 0 is the parent mailbox, never destroyable
	}
	mb, ok := g.mailbox(handle)
	if !ok {
		return errInvalidHandle
	}
	if err := g.proc.Group.DestroyMailbox(mb); err != nil {
		return tableErrCode(err)
	}
	g.mbMu.Lock()
	delete(g.mailboxes, handle)
	g.mbMu.Unlock()
	return errOK
}

func (h *Host) abiMailboxMakeCapability(ctx context.Context, mod api.Module, mbHandle, perms, outTableHandlePtr uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	mb, ok := g.mailbox(mbHandle)
	if !ok {
		return errInvalidHandle
	}
	cap := mb.Export(hearth.Permissions(perms))
	th := g.proc.Table.Import(cap)
	if !writeGuestU32(mod, outTableHandlePtr, uint32(th)) {
		return errFault
	}
	return errOK
}

func (h *Host) abiMailboxMonitor(ctx context.Context, mod api.Module, mbHandle, capTableHandle uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	mb, ok := g.mailbox(mbHandle)
	if !ok {
		return errInvalidHandle
	}
	return tableErrCode(g.proc.Table.Monitor(hearth.Handle(capTableHandle), mb))
}

func (h *Host) abiMailboxRecv(ctx context.Context, mod api.Module, mbHandle, outSigHandlePtr uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	mb, ok := g.mailbox(mbHandle)
	if !ok {
		return errInvalidHandle
	}
	sig, err := mb.Recv(ctx, func(s postoffice.Signal) (any, error) { return s, nil })
	if err != nil {
		if errors.Is(err, hearth.ErrGroupKilled) {
			return errGroupKilled
		}
		return errFault
	}
	handle := g.addSignal(sig.(postoffice.Signal))
	if !writeGuestU32(mod, outSigHandlePtr, handle) {
		return errFault
	}
	return errOK
}

func (h *Host) abiMailboxTryRecv(ctx context.Context, mod api.Module, mbHandle, outSigHandlePtr uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	mb, ok := g.mailbox(mbHandle)
	if !ok {
		return errInvalidHandle
	}
	sig, err := mb.TryRecv(func(s postoffice.Signal) (any, error) { return s, nil })
	if err != nil {
		if errors.Is(err, hearth.ErrGroupKilled) {
			return errGroupKilled
		}
		return errFault
	}
	if sig == nil {
		return errNoSignal
	}
	handle := g.addSignal(sig.(postoffice.Signal))
	if !writeGuestU32(mod, outSigHandlePtr, handle) {
		return errFault
	}
	return errOK
}

func (h *Host) abiMailboxPoll(ctx context.Context, mod api.Module, mbHandlesPtr, mbHandlesLen, outIndexPtr uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	mailboxes := make([]*postoffice.Mailbox, mbHandlesLen)
	for i := uint32(0); i < mbHandlesLen; i++ {
		v, ok := readGuestU32(mod, mbHandlesPtr+i*4)
		if !ok {
			return errFault
		}
		mb, ok := g.mailbox(v)
		if !ok {
			return errInvalidHandle
		}
		mailboxes[i] = mb
	}
	idx, err := postoffice.Poll(ctx, mailboxes)
	if err != nil {
		if errors.Is(err, hearth.ErrGroupKilled) {
			return errGroupKilled
		}
		return errFault
	}
	if !writeGuestU32(mod, outIndexPtr, uint32(idx)) {
		return errFault
	}
	return errOK
}

func (h *Host) abiMailboxDestroySignal(ctx context.Context, mod api.Module, sigHandle uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	g.sigMu.Lock()
	defer g.sigMu.Unlock()
	delete(g.signals, sigHandle)
	return errOK
}

func (h *Host) abiMailboxGetSignalKind(ctx context.Context, mod api.Module, sigHandle, outKindPtr uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	sig, ok := g.signal(sigHandle)
	if !ok {
		return errInvalidHandle
	}
	if !writeGuestU32(mod, outKindPtr, uint32(postoffice.Kind(sig))) {
		return errFault
	}
	return errOK
}

func (h *Host) abiMailboxGetDownCapability(ctx context.Context, mod api.Module, sigHandle, outTableHandlePtr uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	sig, ok := g.signal(sigHandle)
	if !ok {
		return errInvalidHandle
	}
	down, ok := sig.(postoffice.Down)
	if !ok {
		return errFault
	}
	th := g.proc.Table.Import(down.Subject)
	if !writeGuestU32(mod, outTableHandlePtr, uint32(th)) {
		return errFault
	}
	return errOK
}

func (h *Host) abiMailboxGetMessageDataLen(ctx context.Context, mod api.Module, sigHandle, outLenPtr uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	sig, ok := g.signal(sigHandle)
	if !ok {
		return errInvalidHandle
	}
	msg, ok := sig.(postoffice.Message)
	if !ok {
		return errFault
	}
	if !writeGuestU32(mod, outLenPtr, uint32(len(msg.Data))) {
		return errFault
	}
	return errOK
}

func (h *Host) abiMailboxGetMessageData(ctx context.Context, mod api.Module, sigHandle, dstPtr, dstLen uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	sig, ok := g.signal(sigHandle)
	if !ok {
		return errInvalidHandle
	}
	msg, ok := sig.(postoffice.Message)
	if !ok {
		return errFault
	}
	if uint32(len(msg.Data)) > dstLen {
		return errFault
	}
	if !writeGuestBytes(mod, dstPtr, msg.Data) {
		return errFault
	}
	return errOK
}

func (h *Host) abiMailboxGetMessageCapsNum(ctx context.Context, mod api.Module, sigHandle, outNumPtr uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	sig, ok := g.signal(sigHandle)
	if !ok {
		return errInvalidHandle
	}
	msg, ok := sig.(postoffice.Message)
	if !ok {
		return errFault
	}
	if !writeGuestU32(mod, outNumPtr, uint32(len(msg.Caps))) {
		return errFault
	}
	return errOK
}

func (h *Host) abiMailboxGetMessageCaps(ctx context.Context, mod api.Module, sigHandle, dstPtr, dstCapacity uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}
	sig, ok := g.signal(sigHandle)
	if !ok {
		return errInvalidHandle
	}
	msg, ok := sig.(postoffice.Message)
	if !ok {
		return errFault
	}
	if uint32(len(msg.Caps)) > dstCapacity {
		return errFault
	}
	for i, capHandle := range msg.Caps {
		if !writeGuestU32(mod, dstPtr+uint32(i)*4, uint32(capHandle)) {
			return errFault
		}
	}
	return errOK
}
