package process

import (
	"context"
	"testing"

	"github.com/cuemby/hearthd/pkg/postoffice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnAssignsIncreasingPids(t *testing.T) {
	po := postoffice.New()
	f := NewFactory(po)

	p1 := f.Spawn(Metadata{Name: "a"})
	p2 := f.Spawn(Metadata{Name: "b"})

	assert.NotEqual(t, p1.Info.Pid, p2.Info.Pid)
	assert.Less(t, p1.Info.Pid, p2.Info.Pid)
}

func TestParentHandleIsZeroAndIndestructibleByConvention(t *testing.T) {
	po := postoffice.New()
	f := NewFactory(po)
	p := f.Spawn(Metadata{})

	perms, err := p.Table.GetPermissions(ParentHandle)
	require.NoError(t, err)
	assert.NotZero(t, perms)
}

func TestKillCascadesToMonitors(t *testing.T) {
	po := postoffice.New()
	f := NewFactory(po)
	child := f.Spawn(Metadata{})
	watcher := f.Spawn(Metadata{})

	cap := child.Parent.Export(2) // MONITOR
	h := watcher.Table.Import(cap)
	require.NoError(t, watcher.Table.Monitor(h, watcher.Parent))

	child.Kill()

	sig, err := watcher.Parent.Recv(context.Background(), func(s postoffice.Signal) (any, error) { return s, nil })
	require.NoError(t, err)
	_, ok := sig.(postoffice.Down)
	assert.True(t, ok)
}
