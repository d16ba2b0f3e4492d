package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	// SQL drivers for the postgres and sqlite state stores.
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/vango-dev/liveview/internal/config"
	"github.com/vango-dev/liveview/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.Fprint(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "liveview",
		Short: "Serve server-driven views over WebSocket",
		Long: `liveview keeps view state on the server and pushes the minimal
set of DOM patches to the browser after every event.

Views render to a virtual tree, the server diffs it against the
previous tree and sends the patches over a WebSocket. State can be
persisted to memory, Redis, PostgreSQL, SQLite or S3 so sessions
survive reconnects and restarts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default: liveview.yaml, liveview.yml or liveview.json in the working directory)")

	load := func() (*config.Config, error) {
		return loadConfig(configPath)
	}
	rootCmd.AddCommand(
		serveCmd(load),
		configCmd(load, &configPath),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig reads path, or searches the working directory when path is
// empty. A missing file in the working directory means all defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.Load(".")
	if errors.HasCode(err, "E100") {
		return config.New(), nil
	}
	return cfg, err
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}
