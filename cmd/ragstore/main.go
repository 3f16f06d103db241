// Ragstore is a local semantic retrieval store.
//
// It chunks documents, embeds the chunks through a configurable provider and
// answers similarity and metadata queries over the stored chunks. The store
// lives in one directory (nodes.json + model.txt).
//
// Usage:
//
//	# Ingest documents and search them
//	ragstore ingest notes.pdf report.html
//	ragstore search "how are vectors normalized?"
//
//	# Exact-match metadata query
//	ragstore query --filter source=notes.pdf
//
//	# Serve the HTTP API
//	ragstore serve
//
// Configuration is read from ~/.config/ragstore/config.yaml and RAGSTORE_
// environment variables. See internal/config.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// rootOptions are flags shared by every command.
type rootOptions struct {
	configPath string
	dir        string
	topK       int
	jsonOutput bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ragstore",
		Short: "Local semantic retrieval store",
		Long: `ragstore stores text chunks with their embeddings and one metadata tag,
and answers nearest-neighbour and exact-match metadata queries over them.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.config/ragstore/config.yaml)")
	flags.StringVar(&opts.dir, "dir", "", "store directory (overrides store.dir)")
	flags.IntVar(&opts.topK, "top-k", 0, "number of results for similarity queries (overrides store.top_k)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")

	cmd.AddCommand(
		newAddCmd(opts),
		newIngestCmd(opts),
		newQueryCmd(opts),
		newSearchCmd(opts),
		newGetCmd(opts),
		newDeleteCmd(opts),
		newExportCmd(opts),
		newServeCmd(opts),
		newWatchCmd(opts),
	)
	return cmd
}
