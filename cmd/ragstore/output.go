package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// headerStyle renders plain text when stdout is not a terminal.
var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

// nodeJSON is the --json form of a node.
type nodeJSON struct {
	ID        uint64             `json:"id"`
	Sentence  string             `json:"sentence"`
	Metadata  vectorstore.Filter `json:"metadata"`
	Embedding []float32          `json:"embedding,omitempty"`
}

func printNodes(w io.Writer, nodes []vectorstore.Node, asJSON bool) error {
	if asJSON {
		out := make([]nodeJSON, len(nodes))
		for i, n := range nodes {
			out[i] = nodeJSON{ID: n.TextID, Sentence: n.Sentence, Metadata: n.Metadata}
		}
		return writeJSON(w, out)
	}

	if len(nodes) == 0 {
		_, err := fmt.Fprintln(w, "no results")
		return err
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d results", len(nodes))))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTAG\tTEXT")
	for _, n := range nodes {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", n.TextID, n.Metadata, preview(n.Sentence, 80))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// preview collapses whitespace and truncates s to limit runes.
func preview(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

// parseFilter parses key=value. The value may be empty; the key may not.
func parseFilter(s string) (vectorstore.Filter, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return vectorstore.Filter{}, fmt.Errorf("invalid filter %q: expected key=value", s)
	}
	return vectorstore.Filter{Key: key, Value: value}, nil
}

// parseVector parses a comma separated list of floats.
func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	v := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: must be a positive integer", s)
	}
	return id, nil
}
