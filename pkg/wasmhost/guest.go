package wasmhost

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/log"
	"github.com/cuemby/hearthd/pkg/metrics"
	"github.com/cuemby/hearthd/pkg/postoffice"
	"github.com/cuemby/hearthd/pkg/process"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

type guestPhase int32

const (
	phaseMetadata guestPhase = iota
	phaseRunning
)

// guestState is the host-side bookkeeping for one guest process: its
// lifecycle phase, its guest-local lump and mailbox handle tables
// (distinct from the process's own capability table, which the ABI
// operates on by guest-supplied hearth.Handle values directly), and the
// cancellation hook the epoch ticker uses to abort a running guest
// whose group has died.
type guestState struct {
	host       *Host
	proc       *process.Process
	phase      atomic.Int32
	moduleLump hearth.LumpId

	metaMu sync.Mutex
	meta   process.Metadata

	lumpMu         sync.Mutex
	lumpHandles    map[uint32]hearth.LumpId
	nextLumpHandle uint32

	mbMu         sync.Mutex
	mailboxes    map[uint32]*postoffice.Mailbox
	nextMbHandle uint32

	sigMu         sync.Mutex
	signals       map[uint32]postoffice.Signal
	nextSigHandle uint32

	runMu     sync.Mutex
	runCancel context.CancelFunc
}

func (g *guestState) isGroupKilled() bool {
	return g.proc.Group.IsKilled()
}

func (g *guestState) cancelRun() {
	g.runMu.Lock()
	defer g.runMu.Unlock()
	if g.runCancel != nil {
		g.runCancel()
	}
}

// SpawnRequest parameterizes one guest process instantiation.
type SpawnRequest struct {
	// ModuleLump identifies the compiled module's bytes in the lump
	// store; the host loads (and caches) the compiled module through
	// the asset store keyed by this id.
	ModuleLump hearth.LumpId
	// EntryIndex selects _hearth_spawn_by_index(index) as the running
	// phase's entry point. If nil, the exported nullary run is used.
	EntryIndex *uint32
	// InitialCaps are delivered to the guest's parent mailbox before
	// user code runs.
	InitialCaps []hearth.Capability
	Metadata    process.Metadata
}

// Spawn runs a guest module through its metadata phase, then launches
// its running phase in the background, returning the newly spawned
// process immediately. The running phase's entry point executes
// concurrently; callers observe the guest only through the returned
// process's capabilities (parent mailbox, table).
func (h *Host) Spawn(ctx context.Context, req SpawnRequest) (*process.Process, error) {
	compiledAny, err := h.assets.Load(wasmModuleAssetType, req.ModuleLump)
	if err != nil {
		return nil, fmt.Errorf("wasmhost: load module: %w", err)
	}
	compiled := compiledAny.(wazero.CompiledModule)

	proc := h.factory.Spawn(req.Metadata)
	g := &guestState{
		host:           h,
		proc:           proc,
		moduleLump:     req.ModuleLump,
		meta:           req.Metadata,
		lumpHandles:    make(map[uint32]hearth.LumpId),
		mailboxes:      map[uint32]*postoffice.Mailbox{uint32(process.ParentHandle): proc.Parent},
		nextMbHandle:   1,
		nextLumpHandle: 1,
		signals:        make(map[uint32]postoffice.Signal),
		nextSigHandle:  1,
	}
	g.phase.Store(int32(phaseMetadata))

	if err := h.runMetadataPhase(ctx, compiled, g); err != nil {
		proc.Kill()
		return nil, err
	}

	if err := h.deliverInitialCaps(proc, req.InitialCaps); err != nil {
		proc.Kill()
		return nil, err
	}

	g.phase.Store(int32(phaseRunning))
	go h.runRunningPhase(compiled, g, req.EntryIndex)

	return proc, nil
}

func (h *Host) runMetadataPhase(ctx context.Context, compiled wazero.CompiledModule, g *guestState) error {
	cfg := wazero.NewModuleConfig().WithName(fmt.Sprintf("guest-%d-meta", g.proc.Info.Pid))
	instance, err := h.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		metrics.WasmGuestTrapsTotal.Inc()
		return fmt.Errorf("wasmhost: instantiate metadata phase: %w: %v", hearth.ErrGuestTrap, err)
	}
	h.registerGuest(instance, g)
	defer h.unregisterGuest(instance)
	defer instance.Close(ctx)

	fn := instance.ExportedFunction("_hearth_metadata")
	if fn == nil {
		log.WithPid(g.proc.Info.Pid).Warn().Msg("guest module does not export _hearth_metadata")
		return nil
	}
	if _, err := fn.Call(ctx); err != nil {
		metrics.WasmGuestTrapsTotal.Inc()
		return fmt.Errorf("wasmhost: metadata phase call: %w: %v", hearth.ErrGuestTrap, err)
	}

	g.metaMu.Lock()
	g.proc.Info.Metadata = g.meta
	g.metaMu.Unlock()
	return nil
}

func (h *Host) runRunningPhase(compiled wazero.CompiledModule, g *guestState, entryIndex *uint32) {
	pid := g.proc.Info.Pid
	l := log.WithPid(pid)

	ctx, cancel := context.WithCancel(context.Background())
	g.runMu.Lock()
	g.runCancel = cancel
	g.runMu.Unlock()
	defer cancel()

	cfg := wazero.NewModuleConfig().WithName(fmt.Sprintf("guest-%d-run", pid))
	instance, err := h.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		metrics.WasmGuestTrapsTotal.Inc()
		l.Error().Err(err).Msg("guest trapped instantiating running phase")
		g.proc.Kill()
		return
	}
	h.registerGuest(instance, g)
	defer h.unregisterGuest(instance)
	defer instance.Close(context.Background())

	if err := h.runEntryPoint(ctx, instance, entryIndex); err != nil {
		l.Error().Err(err).Msg("guest process ended with an error")
	}
	g.proc.Kill()
}

func (h *Host) runEntryPoint(ctx context.Context, instance api.Module, entryIndex *uint32) error {
	if init := instance.ExportedFunction("_hearth_init"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			metrics.WasmGuestTrapsTotal.Inc()
			return fmt.Errorf("%w: _hearth_init: %v", hearth.ErrGuestTrap, err)
		}
	}

	if entryIndex != nil {
		fn := instance.ExportedFunction("_hearth_spawn_by_index")
		if fn == nil {
			return fmt.Errorf("%w: _hearth_spawn_by_index", hearth.ErrMissingRequiredExport)
		}
		if _, err := fn.Call(ctx, uint64(*entryIndex)); err != nil {
			metrics.WasmGuestTrapsTotal.Inc()
			return fmt.Errorf("%w: _hearth_spawn_by_index: %v", hearth.ErrGuestTrap, err)
		}
		return nil
	}

	fn := instance.ExportedFunction("run")
	if fn == nil {
		return fmt.Errorf("%w: run", hearth.ErrMissingRequiredExport)
	}
	if _, err := fn.Call(ctx); err != nil {
		metrics.WasmGuestTrapsTotal.Inc()
		return fmt.Errorf("%w: run: %v", hearth.ErrGuestTrap, err)
	}
	return nil
}

// deliverInitialCaps places a single message carrying caps into proc's
// own parent mailbox, ahead of anything user code will later send it.
//
// This is a self-send: process.ParentHandle's route resolves back to
// proc's own mailbox, so Table.Send's delivery path (mailbox.deliver)
// imports each capability into proc.Table a second time, landing on
// the same handle the byCap dedup already assigned above but bumping
// its refcount again. Left alone, that phantom second reference could
// never be released by the guest's single dec_ref per handle. Cancel
// it immediately after the send so each handle ends up with exactly
// the one reference the guest is expected to own.
func (h *Host) deliverInitialCaps(proc *process.Process, caps []hearth.Capability) error {
	if len(caps) == 0 {
		return nil
	}
	handles := make([]hearth.Handle, len(caps))
	for i, c := range caps {
		handles[i] = proc.Table.Import(c)
	}
	if err := proc.Table.Send(process.ParentHandle, nil, handles); err != nil {
		return err
	}
	for _, hdl := range handles {
		if err := proc.Table.DecRef(hdl); err != nil {
			return fmt.Errorf("wasmhost: deliver initial caps: cancel duplicate self-send reference: %w", err)
		}
	}
	return nil
}
