package wasmhost

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/log"
	"github.com/cuemby/hearthd/pkg/lump"
	"github.com/cuemby/hearthd/pkg/postoffice"
	"github.com/cuemby/hearthd/pkg/process"
)

// SpawnServiceRequest is the JSON payload a remote peer (typically the
// CLI's spawn command) sends to request a new guest process. As with a
// registry request (pkg/registry), the reply capability is the
// message's first capability; unlike one, it carries no op tag.
type SpawnServiceRequest struct {
	// Module is the compiled wasm module's raw bytes. The service adds
	// them to the lump store itself, so a caller need not have a
	// direct connection to the lump store.
	Module []byte `json:"module"`
	// EntryIndex selects _hearth_spawn_by_index, matching
	// SpawnRequest.EntryIndex.
	EntryIndex *uint32 `json:"entry_index,omitempty"`
	Name       string  `json:"name,omitempty"`
}

// SpawnServiceResponse reports the outcome of a spawn request.
type SpawnServiceResponse struct {
	Ok    bool   `json:"ok"`
	Pid   uint64 `json:"pid,omitempty"`
	Error string `json:"error,omitempty"`
}

// SpawnService exposes Host.Spawn as a registry-style process so a
// remote connection can request new guest processes without a direct
// in-process reference to the Host.
type SpawnService struct {
	host  *Host
	lumps *lump.Store
	proc  *process.Process
}

// NewSpawnService spawns the control process backing the service and
// returns it ready to Run.
func NewSpawnService(host *Host, lumps *lump.Store, factory *process.Factory) *SpawnService {
	p := factory.Spawn(process.Metadata{Name: "wasm.spawn"})
	return &SpawnService{host: host, lumps: lumps, proc: p}
}

// Capability returns the SEND-only capability other processes (or a
// registry Get reply) use to submit spawn requests.
func (s *SpawnService) Capability() hearth.Capability {
	return s.proc.Parent.Export(hearth.PermSend)
}

// Run services spawn requests until ctx is cancelled or the service's
// group is killed.
func (s *SpawnService) Run(ctx context.Context) {
	l := log.WithComponent("wasm")
	for {
		_, err := s.proc.Parent.Recv(ctx, func(sig postoffice.Signal) (any, error) {
			msg, ok := sig.(postoffice.Message)
			if !ok {
				return nil, nil
			}
			s.handle(ctx, msg)
			return nil, nil
		})
		if err != nil {
			l.Info().Err(err).Msg("wasm spawn service loop exiting")
			return
		}
	}
}

func (s *SpawnService) handle(ctx context.Context, msg postoffice.Message) {
	l := log.WithComponent("wasm")

	var req SpawnServiceRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		l.Warn().Err(err).Msg("malformed spawn service request")
		return
	}
	if len(msg.Caps) == 0 {
		l.Warn().Msg("spawn service request carried no reply capability")
		return
	}
	replyHandle := msg.Caps[0]

	resp := s.spawn(ctx, req)

	body, err := json.Marshal(resp)
	if err != nil {
		l.Error().Err(err).Msg("failed to marshal spawn service response")
		return
	}
	if err := s.proc.Table.Send(replyHandle, body, nil); err != nil {
		l.Warn().Err(err).Msg("failed to reply to spawn service request")
	}
}

func (s *SpawnService) spawn(ctx context.Context, req SpawnServiceRequest) SpawnServiceResponse {
	id, err := s.lumps.Add(req.Module)
	if err != nil {
		return SpawnServiceResponse{Error: fmt.Sprintf("store module: %v", err)}
	}

	name := req.Name
	if name == "" {
		name = "wasm.guest"
	}

	proc, err := s.host.Spawn(ctx, SpawnRequest{
		ModuleLump: id,
		EntryIndex: req.EntryIndex,
		Metadata:   process.Metadata{Name: name},
	})
	if err != nil {
		return SpawnServiceResponse{Error: err.Error()}
	}

	return SpawnServiceResponse{Ok: true, Pid: uint64(proc.Info.Pid)}
}
