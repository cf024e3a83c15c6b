// Command hearthd runs a single-binary hearth runtime daemon: a post
// office, lump and asset stores, a wasm guest host, a registry, and an
// optional CapTP-style remote connection listener, all in one process.
package main

import (
	"fmt"
	"os"

	"github.com/cuemby/hearthd/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hearthd",
	Short: "hearthd - a distributed, capability-secure wasm process runtime",
	Long: `hearthd runs a hearth runtime: sandboxed wasm guest processes
talking to each other and to remote peers purely through capabilities,
mailboxes, and a content-addressed lump store, delivered as a single
self-contained binary.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"hearthd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(spawnCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
