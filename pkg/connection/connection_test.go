package connection

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/postoffice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootHandshakeAndSendRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	poA := postoffice.New()
	tableA := poA.NewTable()
	groupA := poA.NewGroup(tableA)
	serviceMb := groupA.NewMailbox()
	serviceCap := serviceMb.Export(hearth.PermSend)

	poB := postoffice.New()
	tableB := poB.NewTable()

	connA := New(serverConn, poA, tableA)
	connB := New(clientConn, poB, tableB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go connA.Start(ctx)
	go connB.Start(ctx)

	require.NoError(t, connA.ExportRoot(serviceCap))

	rootCtx, rootCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer rootCancel()
	rootCap, err := connB.Root(rootCtx)
	require.NoError(t, err)
	assert.True(t, rootCap.Perms.Has(hearth.PermSend))

	hB := tableB.Import(rootCap)
	require.NoError(t, tableB.Send(hB, []byte("hello"), nil))

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer recvCancel()
	got, err := serviceMb.Recv(recvCtx, func(sig postoffice.Signal) (any, error) {
		return sig.(postoffice.Message).Data, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestConnectionIDsAreUniqueAndStable(t *testing.T) {
	_, connA := net.Pipe()
	_, connB := net.Pipe()
	poA, poB := postoffice.New(), postoffice.New()

	a := New(connA, poA, poA.NewTable())
	b := New(connB, poB, poB.NewTable())

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, a.ID(), a.ID())
}
