package registry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/postoffice"
	"github.com/cuemby/hearthd/pkg/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHarness bundles a post office, a process factory, and the registry
// under test, all sharing one post office instance (capability route ids
// are only meaningful within a single post office).
type testHarness struct {
	po      *postoffice.PostOffice
	factory *process.Factory
	reg     *Registry
}

// newHarness spawns a throwaway service process per requested name,
// registers each with the registry builder, and starts the registry.
func newHarness(t *testing.T, serviceNames ...string) *testHarness {
	t.Helper()
	po := postoffice.New()
	factory := process.NewFactory(po)

	b := NewBuilder()
	for _, name := range serviceNames {
		svc := factory.Spawn(process.Metadata{Name: name})
		b.Add(name, svc.Parent.Export(hearth.PermSend))
	}
	reg := b.Build(factory)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go reg.Run(ctx)

	return &testHarness{po: po, factory: factory, reg: reg}
}

func (h *testHarness) request(t *testing.T, req Request) Response {
	t.Helper()
	client := h.factory.Spawn(process.Metadata{Name: "client"})

	regHandle := client.Table.Import(h.reg.Capability())
	replyCap := client.Parent.Export(hearth.PermSend)
	replyHandle := client.Table.Import(replyCap)

	body, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, client.Table.Send(regHandle, body, []hearth.Handle{replyHandle}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	raw, err := client.Parent.Recv(ctx, func(sig postoffice.Signal) (any, error) {
		msg, ok := sig.(postoffice.Message)
		if !ok {
			return nil, hearth.ErrMalformedRequest
		}
		var resp Response
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	require.NoError(t, err)
	return raw.(Response)
}

func TestRegistryGetFound(t *testing.T) {
	h := newHarness(t, "hearth.echo")

	resp := h.request(t, Request{Op: OpGet, Name: "hearth.echo"})
	assert.Equal(t, OpGet, resp.Op)
	assert.True(t, resp.Found)
}

func TestRegistryGetNotFound(t *testing.T) {
	h := newHarness(t)

	resp := h.request(t, Request{Op: OpGet, Name: "nope"})
	assert.False(t, resp.Found)
}

func TestRegistryRegisterAlwaysRefused(t *testing.T) {
	h := newHarness(t)

	resp := h.request(t, Request{Op: OpRegister, Name: "anything"})
	assert.Equal(t, OpRegister, resp.Op)
	assert.False(t, resp.Found)

	list := h.request(t, Request{Op: OpList})
	assert.Empty(t, list.Names)
}

func TestRegistryList(t *testing.T) {
	h := newHarness(t, "hearth.echo", "hearth.clock")

	resp := h.request(t, Request{Op: OpList})
	assert.ElementsMatch(t, []string{"hearth.echo", "hearth.clock"}, resp.Names)
}
