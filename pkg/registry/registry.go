// Package registry implements the singleton registry process: an
// immutable name→capability map served over the same JSON
// request/response convention the runtime uses for every other
// service-shaped process.
package registry

import (
	"context"
	"encoding/json"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/log"
	"github.com/cuemby/hearthd/pkg/metrics"
	"github.com/cuemby/hearthd/pkg/postoffice"
	"github.com/cuemby/hearthd/pkg/process"
)

// Request is the JSON payload of a registry request. Op mirrors the
// dispatch-by-string-tag convention used throughout this codebase's
// command handling (see pkg/runtime for the plugin/runner equivalent).
type Request struct {
	Op   string `json:"op"`
	Name string `json:"name,omitempty"`
}

const (
	OpGet      = "get"
	OpRegister = "register"
	OpList     = "list"
)

// Response is the JSON payload of a registry reply.
type Response struct {
	Op    string   `json:"op"`
	Found bool     `json:"found,omitempty"`
	Names []string `json:"names,omitempty"`
}

// Builder accumulates named service capabilities during runtime
// construction. It is not itself a process;
// Build consumes it to spawn the immutable registry.
type Builder struct {
	services map[string]hearth.Capability
}

// NewBuilder creates an empty registry builder.
func NewBuilder() *Builder {
	return &Builder{services: make(map[string]hearth.Capability)}
}

// Add registers a named service capability. A later Add with the same
// name overwrites the earlier one — the builder is assembled once,
// single-threaded, during runtime construction, before the registry
// process exists to serve anything.
func (b *Builder) Add(name string, cap hearth.Capability) {
	b.services[name] = cap
}

// Registry is a process whose sole state is a name→capability map,
// answering Get/List requests and refusing Register.
type Registry struct {
	proc     *process.Process
	services map[string]hearth.Capability
}

// Build spawns the registry process and records every registered
// service capability demoted to at most SEND|MONITOR permissions. A Get
// request imports the matching capability into the registry's table
// and attaches it to the reply.
func (b *Builder) Build(factory *process.Factory) *Registry {
	p := factory.Spawn(process.Metadata{Name: "hearth.registry"})

	services := make(map[string]hearth.Capability, len(b.services))
	for name, cap := range b.services {
		services[name] = cap.Demote(hearth.PermSend | hearth.PermMonitor)
	}

	return &Registry{proc: p, services: services}
}

// Capability exports a SEND-only capability to the registry's parent
// mailbox, the handle other processes use to issue requests.
func (r *Registry) Capability() hearth.Capability {
	return r.proc.Parent.Export(hearth.PermSend)
}

// Run services requests until ctx is cancelled or the registry's group
// is killed. Intended to be run as one of the runtime builder's runners.
func (r *Registry) Run(ctx context.Context) {
	l := log.WithComponent("registry")
	for {
		_, err := r.proc.Parent.Recv(ctx, func(sig postoffice.Signal) (any, error) {
			msg, ok := sig.(postoffice.Message)
			if !ok {
				return nil, nil // a Down signal addressed to the registry itself; ignore
			}
			r.handle(msg)
			return nil, nil
		})
		if err != nil {
			l.Info().Err(err).Msg("registry loop exiting")
			return
		}
	}
}

func (r *Registry) handle(msg postoffice.Message) {
	l := log.WithComponent("registry")

	var req Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		l.Warn().Err(err).Msg("malformed registry request")
		return
	}
	if len(msg.Caps) == 0 {
		l.Warn().Str("op", req.Op).Msg("registry request carried no reply capability")
		return
	}
	replyHandle := msg.Caps[0]
	metrics.RegistryRequestsTotal.WithLabelValues(req.Op).Inc()

	var (
		resp      Response
		extraCaps []hearth.Handle
	)

	switch req.Op {
	case OpGet:
		cap, found := r.services[req.Name]
		resp = Response{Op: OpGet, Found: found}
		if found {
			extraCaps = append(extraCaps, r.proc.Table.Import(cap))
		}
	case OpRegister:
		resp = Response{Op: OpRegister}
	case OpList:
		names := make([]string, 0, len(r.services))
		for name := range r.services {
			names = append(names, name)
		}
		resp = Response{Op: OpList, Names: names}
	default:
		l.Warn().Str("op", req.Op).Msg("unknown registry request")
		return
	}

	body, err := json.Marshal(resp)
	if err != nil {
		l.Error().Err(err).Msg("failed to marshal registry response")
		return
	}
	if err := r.proc.Table.Send(replyHandle, body, extraCaps); err != nil {
		l.Warn().Err(err).Str("op", req.Op).Msg("failed to reply to registry request")
	}
}
