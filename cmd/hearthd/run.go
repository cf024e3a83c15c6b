package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/hearthd/pkg/config"
	"github.com/cuemby/hearthd/pkg/connection"
	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/log"
	"github.com/cuemby/hearthd/pkg/lump"
	"github.com/cuemby/hearthd/pkg/metrics"
	"github.com/cuemby/hearthd/pkg/postoffice"
	"github.com/cuemby/hearthd/pkg/runtime"
	"github.com/cuemby/hearthd/pkg/security"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build and run a hearthd instance",
	Long: `Load a configuration file, build the runtime (post office, lump
and asset stores, wasm guest host, registry), and serve remote
connections and metrics until interrupted.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("config", "c", "", "YAML configuration file (defaults built in if omitted)")
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	l := log.WithComponent("hearthd")

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	backing, err := lump.OpenBoltBacking(cfg.DataDir + "/lumps.db")
	if err != nil {
		return fmt.Errorf("open lump backing: %w", err)
	}

	b := runtime.New(runtime.WithLumpBacking(backing))

	if cfg.Plugins.Wasm {
		if err := b.AddPlugin(&runtime.WasmPlugin{}); err != nil {
			return err
		}
	}

	rt, err := b.Finish()
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt.Start(ctx)
	metrics.RegisterProbe("postoffice", func() error {
		rt.PostOffice().NewTable()
		return nil
	})
	metrics.RegisterProbe("lump", func() error {
		rt.Lumps().Len()
		return nil
	})
	if cfg.Plugins.Wasm {
		metrics.RegisterProbe("wasmhost", func() error { return nil })
	}
	metrics.RegisterProbe("registry", func() error {
		if rt.RegistryCapability().Route == hearth.RouteID(0) {
			return fmt.Errorf("registry capability not bound")
		}
		return nil
	})

	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(cfg.Listen.Metrics, nil); err != nil {
			l.Error().Err(err).Msg("metrics server exited")
		}
	}()
	l.Info().Str("addr", cfg.Listen.Metrics).Msg("metrics endpoint listening")

	var tlsConfig *tls.Config
	if cfg.Security.RequireTLS {
		tlsConfig, err = buildServerTLSConfig(cfg)
		if err != nil {
			return fmt.Errorf("build TLS config: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- serveConnections(ctx, cfg.Listen.Connection, tlsConfig, rt.PostOffice(), rt.RegistryCapability())
	}()

	l.Info().Str("connection", cfg.Listen.Connection).Msg("hearthd started")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			l.Error().Err(err).Msg("connection listener exited")
		}
	}

	rt.Shutdown()
	l.Info().Msg("hearthd stopped")
	return backing.Close()
}

// serveConnections accepts incoming streams over a (possibly
// TLS-wrapped) net.Listener and hands each one to a new
// connection.Connection.
func serveConnections(ctx context.Context, addr string, tlsConfig *tls.Config, po *postoffice.PostOffice, root hearth.Capability) error {
	var ln net.Listener
	var err error
	if tlsConfig != nil {
		ln, err = tls.Listen("tcp", addr, tlsConfig)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	l := log.WithComponent("connection")
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		table := po.NewTable()
		c := connection.New(conn, po, table)
		if err := c.ExportRoot(root); err != nil {
			l.Warn().Err(err).Str("connection_id", c.ID()).Msg("failed to export root capability")
			conn.Close()
			continue
		}
		l.Info().Str("connection_id", c.ID()).Str("remote", conn.RemoteAddr().String()).Msg("accepted connection")
		go func() {
			if err := c.Start(ctx); err != nil {
				l.Warn().Err(err).Str("connection_id", c.ID()).Msg("connection closed")
			}
		}()
	}
}

// buildServerTLSConfig loads (or mints, on first run) this daemon's CA
// and issues the daemon's own leaf certificate for the TLS listener.
// Client certificates are requested but neither required nor verified.
func buildServerTLSConfig(cfg *config.Config) (*tls.Config, error) {
	store, err := security.OpenCAStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open CA store: %w", err)
	}

	key := security.DeriveKeyFromRuntimeID(cfg.RuntimeID)
	if err := security.SetEncryptionKey(key); err != nil {
		return nil, err
	}

	ca := security.NewCertAuthority(store)
	if err := ca.LoadFromStore(); err != nil {
		if err := ca.Initialize(); err != nil {
			return nil, fmt.Errorf("initialize CA: %w", err)
		}
		if err := ca.SaveToStore(); err != nil {
			return nil, fmt.Errorf("save CA: %w", err)
		}
	}

	cert, err := ca.IssueDaemonCertificate(cfg.RuntimeID, "daemon", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("issue daemon certificate: %w", err)
	}

	rootDER := ca.GetRootCACert()
	rootCert, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return nil, fmt.Errorf("parse root CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(rootCert)

	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		ClientAuth:   tls.RequestClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}
