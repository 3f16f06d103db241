package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// withApp opens the app, runs fn and closes the app.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(*app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	return fn(a)
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	var key, value string

	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Embed and store one piece of text",
		Long: `Embed text as a single node, tag it and save the store.

Examples:
  ragstore add "Vectors are normalized before comparison." --key topic --value math`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				ctx := cmd.Context()
				id, err := a.store.Add(ctx, args[0], vectorstore.Filter{Key: key, Value: value})
				if err != nil {
					return err
				}
				if err := a.persist(ctx); err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), map[string]uint64{"id": id})
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "metadata key")
	cmd.Flags().StringVar(&value, "value", "", "metadata value")
	return cmd
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var key, value string

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Extract, chunk and store documents",
		Long: `Extract the text of each document (PDF, HTML, text, markdown), split it into
chunks and store one node per chunk. Each document is saved as it is added.

Without --value, nodes are tagged source=<file name>.

Examples:
  ragstore ingest paper.pdf
  ragstore ingest a.md b.md --key project --value atlas`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				ctx := cmd.Context()
				results := make(map[string][]uint64, len(args))
				for _, path := range args {
					tag := vectorstore.Filter{Key: key, Value: value}
					if value == "" {
						tag.Value = filepath.Base(path)
					}
					ids, err := a.store.AddDocument(ctx, path, tag)
					if err != nil {
						return fmt.Errorf("ingesting %s: %w", path, err)
					}
					results[path] = ids
					if !opts.jsonOutput {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", path, len(ids))
					}
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), results)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "source", "metadata key")
	cmd.Flags().StringVar(&value, "value", "", "metadata value (default: file name)")
	return cmd
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var (
		filters []string
		vector  string
	)

	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Rank nodes by similarity, or list nodes matching filters",
		Long: `Without filters, embed text (or use --vector) and print the top-k most
similar nodes, best first. With --filter, print every node whose tag matches
all filters, in store order.

Examples:
  ragstore query "tokenizer limits"
  ragstore query --vector 1,0,0
  ragstore query --filter source=paper.pdf`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := make([]vectorstore.Filter, 0, len(filters))
			for _, f := range filters {
				filter, err := parseFilter(f)
				if err != nil {
					return err
				}
				parsed = append(parsed, filter)
			}

			var vec []float32
			if vector != "" {
				v, err := parseVector(vector)
				if err != nil {
					return err
				}
				vec = v
			}
			if len(args) == 0 && vec == nil && len(parsed) == 0 {
				return fmt.Errorf("one of text, --vector or --filter is required")
			}

			return withApp(cmd, opts, func(a *app) error {
				ctx := cmd.Context()
				var (
					nodes []vectorstore.Node
					err   error
				)
				if vec != nil {
					nodes, err = a.store.Query(ctx, vec, parsed)
				} else {
					text := ""
					if len(args) > 0 {
						text = args[0]
					}
					nodes, err = a.store.QueryText(ctx, text, parsed)
				}
				if err != nil {
					return err
				}
				return printNodes(cmd.OutOrStdout(), nodes, opts.jsonOutput)
			})
		},
	}
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "metadata filter key=value (repeatable)")
	cmd.Flags().StringVar(&vector, "vector", "", "query vector as comma separated floats")
	return cmd
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <text>",
		Short: "Chunk text and rank nodes for every chunk",
		Long: `Split text into chunks and print the top-k nodes for each chunk, grouped
by chunk in order.

Examples:
  ragstore search "$(cat question.txt)"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				nodes, err := a.store.Search(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printNodes(cmd.OutOrStdout(), nodes, opts.jsonOutput)
			})
		},
	}
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one node with its embedding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app) error {
				n, err := a.store.GetNode(id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.jsonOutput {
					return writeJSON(out, nodeJSON{ID: n.TextID, Sentence: n.Sentence, Metadata: n.Metadata, Embedding: n.Embedding})
				}
				fmt.Fprintf(out, "id:        %d\n", n.TextID)
				fmt.Fprintf(out, "tag:       %s\n", n.Metadata)
				fmt.Fprintf(out, "dimension: %d\n", len(n.Embedding))
				_, err = fmt.Fprintf(out, "text:      %s\n", n.Sentence)
				return err
			})
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one node and save the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app) error {
				ctx := cmd.Context()
				if err := a.store.Delete(ctx, id); err != nil {
					return err
				}
				if err := a.persist(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
				return err
			})
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "export <chromem-dir>",
		Short: "Copy the store into a chromem-go database",
		Long: `Write every node, with its stored embedding, into a persistent chromem-go
collection. Document ids are node ids and document metadata is the node tag.

Examples:
  ragstore export ~/.ragstore/chromem --collection notes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				n, err := a.store.ExportChromem(cmd.Context(), args[0], collection)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported %d documents\n", n)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&collection, "collection", vectorstore.DefaultCollection, "chromem collection name")
	return cmd
}
