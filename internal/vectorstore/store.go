package vectorstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/ragstore/internal/chunker"
	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
	"github.com/fyrsmithlabs/ragstore/internal/extraction"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/ranking"
)

const instrumentationName = "github.com/fyrsmithlabs/ragstore/internal/vectorstore"

const (
	// DefaultTopK is the result count of an unfiltered query.
	DefaultTopK = 5

	// DefaultConcurrency bounds in-flight embedding calls.
	DefaultConcurrency = 4

	// DefaultChunkSize is the chunk bound, in runes, used when no chunker
	// is supplied.
	DefaultChunkSize = 256
)

// Config configures a Store.
type Config struct {
	// TopK is the number of nodes an unfiltered query returns.
	TopK int

	// Dir is the persistence directory. AddDocument saves to it after every
	// ingestion and Persist uses it when called with an empty directory.
	Dir string

	// AutoSave also saves to Dir after every Add and Delete.
	AutoSave bool

	// Concurrency bounds concurrent embedding calls in Search and AddDocument.
	Concurrency int
}

func (c *Config) applyDefaults() {
	if c.TopK == 0 {
		c.TopK = DefaultTopK
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("%w: top k must be >= 1, got %d", ErrInvalidConfig, c.TopK)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be >= 1, got %d", ErrInvalidConfig, c.Concurrency)
	}
	if c.AutoSave && c.Dir == "" {
		return fmt.Errorf("%w: auto save requires a directory", ErrInvalidConfig)
	}
	return nil
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracerProvider sets the tracer provider used for store spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Store) {
		if tp != nil {
			s.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithChunker sets the chunker used by Search and AddDocument.
func WithChunker(c *chunker.Chunker) Option {
	return func(s *Store) {
		if c != nil {
			s.chunker = c
		}
	}
}

// WithExtractor sets the document extractor used by AddDocument.
func WithExtractor(e extraction.Extractor) Option {
	return func(s *Store) {
		if e != nil {
			s.extractor = e
		}
	}
}

// Store is an in-memory collection of Nodes. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	nodes  []Node
	index  map[uint64]int // text id -> position in nodes
	nextID uint64

	model     string
	provider  embeddings.Provider
	chunker   *chunker.Chunker
	extractor extraction.Extractor
	config    Config
	logger    *logging.Logger
	tracer    trace.Tracer
}

// New creates an empty Store whose vectors come from provider.
func New(provider embeddings.Provider, cfg Config, opts ...Option) (*Store, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: embedding provider is required", ErrInvalidConfig)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		index:    make(map[uint64]int),
		nextID:   1,
		model:    provider.Model(),
		provider: provider,
		config:   cfg,
		logger:   logging.Nop(),
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.chunker == nil {
		c, err := chunker.New(chunker.Config{MaxSize: DefaultChunkSize})
		if err != nil {
			return nil, err
		}
		s.chunker = c
	}
	if s.extractor == nil {
		s.extractor = extraction.NewFileExtractor(extraction.WithLogger(s.logger.Underlying()))
	}
	return s, nil
}

// Model returns the identifier of the model that produced the stored vectors.
func (s *Store) Model() string {
	return s.model
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Dimension returns the width of the stored vectors, or 0 for an empty store.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensionLocked()
}

func (s *Store) dimensionLocked() int {
	if len(s.nodes) == 0 {
		return 0
	}
	return len(s.nodes[0].Embedding)
}

// Nodes returns copies of all nodes in store order.
func (s *Store) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.clone()
	}
	return out
}

// Close releases the embedding provider.
func (s *Store) Close() error {
	return s.provider.Close()
}

// Add embeds text and stores it as one node tagged with metadata.
func (s *Store) Add(ctx context.Context, text string, metadata Filter) (id uint64, err error) {
	ctx, span := s.tracer.Start(ctx, "vectorstore.Add")
	defer s.finish(ctx, span, "add", time.Now(), &err)

	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("%w: empty text", ErrInvalidInput)
	}

	vector, err := s.embedDocument(ctx, text)
	if err != nil {
		return 0, err
	}

	ids, err := s.insert(ctx, []Node{{Sentence: text, Embedding: vector, Metadata: metadata}}, s.config.AutoSave)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("node.id", int64(ids[0])))
	return ids[0], nil
}

// AddVector stores a node with a precomputed embedding.
func (s *Store) AddVector(ctx context.Context, text string, embedding []float32, metadata Filter) (id uint64, err error) {
	ctx, span := s.tracer.Start(ctx, "vectorstore.Add")
	defer s.finish(ctx, span, "add", time.Now(), &err)

	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("%w: empty text", ErrInvalidInput)
	}

	ids, err := s.insert(ctx, []Node{{Sentence: text, Embedding: embedding, Metadata: metadata}}, s.config.AutoSave)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// AddDocument extracts the text of the document at path, chunks it, embeds
// every chunk and stores one node per chunk, all tagged with metadata. The
// nodes are added together or not at all. The store is saved to Config.Dir
// afterwards when one is set.
func (s *Store) AddDocument(ctx context.Context, path string, metadata Filter) (ids []uint64, err error) {
	ctx = logging.WithIngestID(ctx, uuid.NewString())
	ctx, span := s.tracer.Start(ctx, "vectorstore.AddDocument", trace.WithAttributes(
		attribute.String("document.path", path),
		attribute.String("ingest.id", logging.IngestIDFromContext(ctx)),
	))
	defer s.finish(ctx, span, "add_document", time.Now(), &err)

	text, err := s.extractor.Extract(ctx, path)
	if err != nil {
		return nil, err
	}

	chunks := s.chunker.Split(text)
	span.SetAttributes(attribute.Int("chunks.count", len(chunks)))
	if len(chunks) == 0 {
		s.logger.Warn(ctx, "document has no text", zap.String("path", path))
		return []uint64{}, nil
	}

	vectors, err := s.embedChunks(ctx, chunks, s.embedDocument)
	if err != nil {
		return nil, err
	}

	nodes := make([]Node, len(chunks))
	for i, chunk := range chunks {
		nodes[i] = Node{Sentence: chunk, Embedding: vectors[i], Metadata: metadata}
	}
	ids, err = s.insert(ctx, nodes, s.config.Dir != "")
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "document ingested",
		zap.String("path", path),
		zap.Int("chunks", len(ids)),
		zap.Uint64("first_id", ids[0]),
		zap.Stringer("metadata", metadata))
	return ids, nil
}

// Delete removes the node with id.
func (s *Store) Delete(ctx context.Context, id uint64) (err error) {
	ctx, span := s.tracer.Start(ctx, "vectorstore.Delete", trace.WithAttributes(
		attribute.Int64("node.id", int64(id)),
	))
	defer s.finish(ctx, span, "delete", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	removed := s.nodes[pos]
	s.nodes = slices.Delete(s.nodes, pos, pos+1)
	delete(s.index, id)
	s.reindexLocked(pos)

	if s.config.AutoSave {
		if err := s.persistLocked(s.config.Dir); err != nil {
			s.nodes = slices.Insert(s.nodes, pos, removed)
			s.reindexLocked(pos)
			return err
		}
	}

	span.SetAttributes(attribute.Int("store.nodes", len(s.nodes)))
	NodesTotal.Set(float64(len(s.nodes)))
	return nil
}

// Get returns a copy of the embedding stored under id.
func (s *Store) Get(id uint64) ([]float32, error) {
	n, err := s.GetNode(id)
	if err != nil {
		return nil, err
	}
	return n.Embedding, nil
}

// GetNode returns a copy of the node stored under id.
func (s *Store) GetNode(id uint64) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.index[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return s.nodes[pos].clone(), nil
}

// Query returns nodes for a query vector.
//
// With filters, Query returns every node matching all of them in store
// order, unranked, and vector is ignored. Without filters, it returns the
// TopK nodes most similar to vector, best first. An empty store returns an
// empty result.
func (s *Store) Query(ctx context.Context, vector []float32, filters []Filter) (out []Node, err error) {
	ctx, span := s.tracer.Start(ctx, "vectorstore.Query", trace.WithAttributes(
		attribute.Int("query.filters", len(filters)),
		attribute.Int("query.top_k", s.config.TopK),
	))
	defer s.finish(ctx, span, "query", time.Now(), &err)

	s.mu.RLock()
	defer s.mu.RUnlock()
	span.SetAttributes(attribute.Int("store.nodes", len(s.nodes)))

	if len(s.nodes) == 0 {
		return []Node{}, nil
	}
	if len(filters) > 0 {
		return s.filterLocked(filters), nil
	}
	return s.rankLocked(vector, s.config.TopK)
}

// QueryText embeds text as a single query vector and runs Query. In filter
// mode nothing is embedded.
func (s *Store) QueryText(ctx context.Context, text string, filters []Filter) ([]Node, error) {
	if len(filters) > 0 || s.Len() == 0 {
		return s.Query(ctx, nil, filters)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidInput)
	}
	vector, err := s.provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return s.Query(ctx, vector, nil)
}

// Search chunks text, embeds every chunk and runs one unfiltered query per
// chunk. Results are concatenated in chunk order, each chunk's results best
// first. An empty store returns an empty result without embedding anything.
func (s *Store) Search(ctx context.Context, text string) (out []Node, err error) {
	ctx, span := s.tracer.Start(ctx, "vectorstore.Search", trace.WithAttributes(
		attribute.Int("query.top_k", s.config.TopK),
	))
	defer s.finish(ctx, span, "search", time.Now(), &err)

	if s.Len() == 0 {
		return []Node{}, nil
	}

	chunks := s.chunker.Split(text)
	span.SetAttributes(attribute.Int("chunks.count", len(chunks)))
	if len(chunks) == 0 {
		return []Node{}, nil
	}

	vectors, err := s.embedChunks(ctx, chunks, s.embedQuery)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	span.SetAttributes(attribute.Int("store.nodes", len(s.nodes)))

	out = make([]Node, 0, len(chunks)*s.config.TopK)
	for i, v := range vectors {
		ranked, err := s.rankLocked(v, s.config.TopK)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		out = append(out, ranked...)
	}
	return out, nil
}

func (s *Store) filterLocked(filters []Filter) []Node {
	out := []Node{}
	for _, n := range s.nodes {
		if Matches(n, filters) {
			out = append(out, n.clone())
		}
	}
	return out
}

func (s *Store) rankLocked(vector []float32, k int) ([]Node, error) {
	candidates := make([]ranking.Candidate, len(s.nodes))
	for i, n := range s.nodes {
		candidates[i] = ranking.Candidate{ID: n.TextID, Vector: n.Embedding}
	}

	scored, err := ranking.Rank(vector, candidates, k)
	if err != nil {
		return nil, err
	}

	out := make([]Node, len(scored))
	for i, sc := range scored {
		out[i] = s.nodes[s.index[sc.ID]].clone()
	}
	return out, nil
}

// insert validates nodes and appends them as one unit, assigning ids in
// order. With save set, the store is persisted before the lock is released
// and a failed save undoes the insertion.
func (s *Store) insert(ctx context.Context, nodes []Node, save bool) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimensionLocked()
	for i := range nodes {
		if err := checkVector(nodes[i].Embedding); err != nil {
			return nil, err
		}
		width := len(nodes[i].Embedding)
		if dim == 0 {
			dim = width
		} else if width != dim {
			return nil, fmt.Errorf("%w: embedding has %d dimensions, store has %d", ErrDimensionMismatch, width, dim)
		}
	}

	prevLen, prevNext := len(s.nodes), s.nextID
	ids := make([]uint64, len(nodes))
	for i, n := range nodes {
		n.TextID = s.nextID
		n.Embedding = slices.Clone(n.Embedding)
		s.nextID++
		s.index[n.TextID] = len(s.nodes)
		s.nodes = append(s.nodes, n)
		ids[i] = n.TextID
	}

	if save {
		if err := s.persistLocked(s.config.Dir); err != nil {
			for _, id := range ids {
				delete(s.index, id)
			}
			clear(s.nodes[prevLen:])
			s.nodes = s.nodes[:prevLen]
			s.nextID = prevNext
			return nil, err
		}
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("store.nodes", len(s.nodes)))
	NodesTotal.Set(float64(len(s.nodes)))
	return ids, nil
}

func (s *Store) reindexLocked(from int) {
	for i := from; i < len(s.nodes); i++ {
		s.index[s.nodes[i].TextID] = i
	}
}

func (s *Store) embedDocument(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.provider.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", ErrEmbeddingFailed, len(vectors))
	}
	return vectors[0], nil
}

func (s *Store) embedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := s.provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return v, nil
}

// embedChunks embeds each chunk with at most Concurrency calls in flight.
// Results are in chunk order. The first failure cancels the remaining calls.
func (s *Store) embedChunks(
	ctx context.Context,
	chunks []string,
	embed func(context.Context, string) ([]float32, error),
) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			v, err := embed(gctx, chunk)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// finish ends span and records metrics for op. errp points at the
// operation's named error result.
func (s *Store) finish(ctx context.Context, span trace.Span, op string, start time.Time, errp *error) {
	err := *errp
	observe(op, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Debug(ctx, "vectorstore operation failed",
			zap.String("op", op),
			zap.String("kind", errorKind(err)),
			zap.Error(err))
	}
	span.End()
}
