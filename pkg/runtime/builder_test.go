package runtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/postoffice"
	"github.com/cuemby/hearthd/pkg/process"
	"github.com/cuemby/hearthd/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orderPlugin records its own name into a shared log at Build and
// Finalize time, optionally adding further plugins from either hook.
type orderPlugin struct {
	name        string
	log         *[]string
	addOnBuild  []Plugin
	addOnFinal  []Plugin
	finalizeErr error
}

func (p *orderPlugin) Name() string { return p.name }

func (p *orderPlugin) Build(b *Builder) error {
	*p.log = append(*p.log, "build:"+p.name)
	for _, child := range p.addOnBuild {
		if err := b.AddPlugin(child); err != nil {
			return err
		}
	}
	return nil
}

func (p *orderPlugin) Finalize(b *Builder) error {
	*p.log = append(*p.log, "finalize:"+p.name)
	for _, child := range p.addOnFinal {
		if err := b.AddPlugin(child); err != nil {
			return err
		}
	}
	return p.finalizeErr
}

func TestPluginsFinalizeInReverseBuildOrder(t *testing.T) {
	var log []string
	b := New()

	require.NoError(t, b.AddPlugin(&orderPlugin{name: "a", log: &log}))
	require.NoError(t, b.AddPlugin(&orderPlugin{name: "b", log: &log}))
	require.NoError(t, b.AddPlugin(&orderPlugin{name: "c", log: &log}))

	_, err := b.Finish()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"build:a", "build:b", "build:c",
		"finalize:c", "finalize:b", "finalize:a",
	}, log)
}

func TestFinalizeAddedPluginsRunBeforeOlderOnes(t *testing.T) {
	var log []string
	b := New()

	grandchild := &orderPlugin{name: "grandchild", log: &log}
	child := &orderPlugin{name: "child", log: &log, addOnFinal: []Plugin{grandchild}}
	parent := &orderPlugin{name: "parent", log: &log, addOnBuild: []Plugin{child}}
	sibling := &orderPlugin{name: "sibling", log: &log}

	require.NoError(t, b.AddPlugin(parent))
	require.NoError(t, b.AddPlugin(sibling))

	_, err := b.Finish()
	require.NoError(t, err)

	// parent's Build discovers child immediately; sibling builds after
	// both. Finalize pops the stack in LIFO order: sibling, then child
	// (whose Finalize adds grandchild, which builds and must finalize
	// before control returns to parent), then parent.
	assert.Equal(t, []string{
		"build:parent", "build:child", "build:sibling",
		"finalize:sibling", "finalize:child", "build:grandchild", "finalize:grandchild", "finalize:parent",
	}, log)
}

func TestAddRunnerIsStartedByStart(t *testing.T) {
	b := New()

	started := make(chan struct{})

	b.AddRunner(func(ctx context.Context, ready func()) error {
		ready()
		close(started)
		<-ctx.Done()
		return nil
	})

	rt, err := b.Finish()
	require.NoError(t, err)

	rt.Start(context.Background())
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("runner never observed as started")
	}
	rt.Shutdown()
}

func TestServiceResolvableThroughRegistryAfterStart(t *testing.T) {
	b := New()

	svcProc := b.Factory().Spawn(process.Metadata{Name: "widgets"})
	svcCap := svcProc.Parent.Export(hearth.PermSend)

	b.AddService("widgets", svcCap, func(ctx context.Context, ready func()) error {
		ready()
		<-ctx.Done()
		return nil
	})

	rt, err := b.Finish()
	require.NoError(t, err)
	rt.Start(context.Background())
	defer rt.Shutdown()

	client := rt.Factory().Spawn(process.Metadata{Name: "client"})
	regHandle := client.Table.Import(rt.RegistryCapability())
	replyHandle := client.Table.Import(client.Parent.Export(hearth.PermSend))

	body, err := json.Marshal(registry.Request{Op: registry.OpGet, Name: "widgets"})
	require.NoError(t, err)
	require.NoError(t, client.Table.Send(regHandle, body, []hearth.Handle{replyHandle}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	raw, err := client.Parent.Recv(ctx, func(sig postoffice.Signal) (any, error) {
		msg, ok := sig.(postoffice.Message)
		if !ok {
			return nil, hearth.ErrMalformedRequest
		}
		var resp registry.Response
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	require.NoError(t, err)
	assert.True(t, raw.(registry.Response).Found)
}
