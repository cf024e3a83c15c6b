package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/cuemby/hearthd/pkg/connection"
	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/postoffice"
	"github.com/cuemby/hearthd/pkg/registry"
	"github.com/cuemby/hearthd/pkg/security"
	"github.com/cuemby/hearthd/pkg/wasmhost"
	"github.com/spf13/cobra"
)

var spawnCmd = &cobra.Command{
	Use:   "spawn <module.wasm>",
	Short: "Ask a running daemon to spawn a guest process from a wasm module",
	Long: `Dial a running hearthd instance's connection listener, resolve its
"wasm.spawn" service through the remote registry, and submit the given
compiled wasm module for execution.`,
	Args: cobra.ExactArgs(1),
	RunE: runSpawn,
}

func init() {
	spawnCmd.Flags().String("addr", "127.0.0.1:7420", "Daemon connection address")
	spawnCmd.Flags().String("name", "", "Process name (metadata only)")
	spawnCmd.Flags().Uint32("entry-index", 0, "Entry index to invoke, if the module exports more than one")
	spawnCmd.Flags().Bool("entry-index-set", false, "Pass --entry-index through to the daemon (otherwise the module's default entry is used)")
	spawnCmd.Flags().Bool("insecure", false, "Skip server certificate verification (testing only)")
	spawnCmd.Flags().String("runtime-id", "", "Require the daemon's certificate to identify this runtime ID (rejects any other CA-trusted daemon)")
}

func runSpawn(cmd *cobra.Command, args []string) error {
	modulePath := args[0]
	addr, _ := cmd.Flags().GetString("addr")
	name, _ := cmd.Flags().GetString("name")
	insecure, _ := cmd.Flags().GetBool("insecure")
	wantRuntimeID, _ := cmd.Flags().GetString("runtime-id")

	module, err := os.ReadFile(modulePath)
	if err != nil {
		return fmt.Errorf("read module: %w", err)
	}

	netConn, err := dial(addr, insecure, wantRuntimeID)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer netConn.Close()

	po := postoffice.New()
	table := po.NewTable()
	group := po.NewGroup(table)
	replyMb := group.NewMailbox()
	replyHandle := table.Import(replyMb.Export(hearth.PermSend))

	conn := connection.New(netConn, po, table)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	go conn.Start(ctx)
	defer conn.Close()

	rootCap, err := conn.Root(ctx)
	if err != nil {
		return fmt.Errorf("root handshake: %w", err)
	}
	rootHandle := table.Import(rootCap)

	spawnCap, err := resolveService(ctx, table, replyMb, rootHandle, replyHandle, "wasm.spawn")
	if err != nil {
		return err
	}
	spawnHandle := table.Import(spawnCap)

	var entryIndex *uint32
	if set, _ := cmd.Flags().GetBool("entry-index-set"); set {
		idx, _ := cmd.Flags().GetUint32("entry-index")
		entryIndex = &idx
	}

	req := wasmhost.SpawnServiceRequest{
		Module:     module,
		EntryIndex: entryIndex,
		Name:       name,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal spawn request: %w", err)
	}
	if err := table.Send(spawnHandle, body, []hearth.Handle{replyHandle}); err != nil {
		return fmt.Errorf("send spawn request: %w", err)
	}

	resp, err := recvResponse[wasmhost.SpawnServiceResponse](ctx, replyMb)
	if err != nil {
		return fmt.Errorf("await spawn response: %w", err)
	}

	if !resp.Ok {
		return fmt.Errorf("daemon refused spawn: %s", resp.Error)
	}

	fmt.Printf("spawned pid %d\n", resp.Pid)
	return nil
}

// resolveService issues a registry Get for name over the already
// root-handshaken connection and returns the capability it resolves to.
func resolveService(ctx context.Context, table *postoffice.Table, replyMb *postoffice.Mailbox, rootHandle, replyHandle hearth.Handle, name string) (hearth.Capability, error) {
	req := registry.Request{Op: registry.OpGet, Name: name}
	body, err := json.Marshal(req)
	if err != nil {
		return hearth.Capability{}, fmt.Errorf("marshal registry request: %w", err)
	}
	if err := table.Send(rootHandle, body, []hearth.Handle{replyHandle}); err != nil {
		return hearth.Capability{}, fmt.Errorf("send registry request: %w", err)
	}

	raw, err := replyMb.Recv(ctx, func(sig postoffice.Signal) (any, error) {
		msg, ok := sig.(postoffice.Message)
		if !ok {
			return nil, nil
		}
		var resp registry.Response
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			return nil, err
		}
		if !resp.Found {
			return nil, fmt.Errorf("service %q not registered on daemon", name)
		}
		if len(msg.Caps) == 0 {
			return nil, fmt.Errorf("registry reply for %q carried no capability", name)
		}
		cap, err := table.Capability(msg.Caps[0])
		if err != nil {
			return nil, fmt.Errorf("resolve %q capability: %w", name, err)
		}
		return cap, nil
	})
	if err != nil {
		return hearth.Capability{}, err
	}
	return raw.(hearth.Capability), nil
}

// recvResponse waits for the next Message on mb and JSON-decodes it as
// a T, the client side of the request/reply convention every
// service-shaped process in this codebase answers with.
func recvResponse[T any](ctx context.Context, mb *postoffice.Mailbox) (T, error) {
	var zero T
	raw, err := mb.Recv(ctx, func(sig postoffice.Signal) (any, error) {
		msg, ok := sig.(postoffice.Message)
		if !ok {
			return nil, nil
		}
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return raw.(T), nil
}

// dial opens a TLS connection to addr, rooted in the CA certificate
// read from this CLI's cert directory (security.GetCLICertDir); this
// command reads that file but never writes it. With insecure set, certificate verification is skipped
// entirely — for local development against a daemon whose CA hasn't
// been distributed yet. When wantRuntimeID is non-empty, the daemon's
// leaf certificate must additionally identify that exact runtime —
// rejecting any other daemon the same CA happens to vouch for.
func dial(addr string, insecure bool, wantRuntimeID string) (net.Conn, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: insecure}

	if !insecure {
		certDir, err := security.GetCLICertDir()
		if err != nil {
			return nil, fmt.Errorf("locate CLI cert dir: %w", err)
		}
		caCert, err := security.LoadCACertFromFile(certDir)
		if err != nil {
			return nil, fmt.Errorf("load trusted daemon CA (run with --insecure to skip, or trust a CA first): %w", err)
		}
		pool := x509.NewCertPool()
		pool.AddCert(caCert)
		tlsConfig.RootCAs = pool
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return nil, err
	}

	if wantRuntimeID != "" {
		state := conn.ConnectionState()
		if len(state.PeerCertificates) == 0 {
			conn.Close()
			return nil, fmt.Errorf("daemon presented no certificate to check runtime ID against")
		}
		if err := security.VerifyRuntimeID(state.PeerCertificates[0], wantRuntimeID); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return conn, nil
}
