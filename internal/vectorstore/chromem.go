package vectorstore

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultCollection is the chromem collection ExportChromem writes to when
// none is named.
const DefaultCollection = "ragstore"

// ExportChromem copies every node into a persistent chromem-go database at
// dir. Each node becomes one document whose id is the text id, whose content
// is the sentence and whose metadata is the node's tag. Stored embeddings are
// written as is and nothing is re-embedded. Documents already in the
// collection under the same id are overwritten.
func (s *Store) ExportChromem(ctx context.Context, dir, collection string) (n int, err error) {
	if collection == "" {
		collection = DefaultCollection
	}
	ctx, span := s.tracer.Start(ctx, "vectorstore.ExportChromem", trace.WithAttributes(
		attribute.String("chromem.dir", dir),
		attribute.String("chromem.collection", collection),
	))
	defer s.finish(ctx, span, "export", time.Now(), &err)

	if strings.TrimSpace(dir) == "" {
		return 0, &PersistenceError{Op: "export", Err: fmt.Errorf("%w: no directory", ErrInvalidConfig)}
	}

	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return 0, &PersistenceError{Op: "export", Path: dir, Err: err}
	}
	col, err := db.GetOrCreateCollection(collection, map[string]string{"model": s.model}, s.chromemEmbeddingFunc())
	if err != nil {
		return 0, &PersistenceError{Op: "export", Path: dir, Err: fmt.Errorf("collection %s: %w", collection, err)}
	}

	docs := s.chromemDocuments()
	if len(docs) == 0 {
		return 0, nil
	}
	if err := col.AddDocuments(ctx, docs, s.config.Concurrency); err != nil {
		return 0, &PersistenceError{Op: "export", Path: dir, Err: err}
	}

	span.SetAttributes(attribute.Int("chromem.documents", len(docs)))
	s.logger.Info(ctx, "exported to chromem",
		zap.String("dir", dir),
		zap.String("collection", collection),
		zap.Int("documents", len(docs)))
	return len(docs), nil
}

func (s *Store) chromemDocuments() []chromem.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]chromem.Document, len(s.nodes))
	for i, n := range s.nodes {
		docs[i] = chromem.Document{
			ID:        strconv.FormatUint(n.TextID, 10),
			Content:   n.Sentence,
			Metadata:  map[string]string{n.Metadata.Key: n.Metadata.Value},
			Embedding: slices.Clone(n.Embedding),
		}
	}
	return docs
}

// chromemEmbeddingFunc lets chromem embed query text with the store's provider.
func (s *Store) chromemEmbeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.provider.EmbedQuery(ctx, text)
	}
}
