package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	// ErrExtractionFailed indicates the source document could not be read or parsed.
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrUnsupportedFormat indicates no loader handles the file extension.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

const (
	instrumentationName = "github.com/fyrsmithlabs/ragstore/internal/extraction"

	// DefaultMaxFileSize bounds the documents Extract will open.
	DefaultMaxFileSize int64 = 64 << 20
)

// Extractor acquires the text of a document.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Format identifies a document loader.
type Format string

const (
	FormatText Format = "text"
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
	FormatCSV  Format = "csv"
)

var formatsByExt = map[string]Format{
	"":          FormatText,
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatText,
	".markdown": FormatText,
	".rst":      FormatText,
	".log":      FormatText,
	".pdf":      FormatPDF,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".csv":      FormatCSV,
}

// FormatFor returns the loader format for path.
func FormatFor(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := formatsByExt[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return f, nil
}

// Supported reports whether path has an extension Extract can handle.
func Supported(path string) bool {
	_, err := FormatFor(path)
	return err == nil
}

// FileExtractor reads documents from the local filesystem.
type FileExtractor struct {
	maxSize int64
	logger  *zap.Logger
	tracer  trace.Tracer
}

// Option configures a FileExtractor.
type Option func(*FileExtractor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *FileExtractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracerProvider sets the tracer provider used for extraction spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *FileExtractor) {
		if tp != nil {
			e.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithMaxFileSize overrides DefaultMaxFileSize.
func WithMaxFileSize(n int64) Option {
	return func(e *FileExtractor) {
		if n > 0 {
			e.maxSize = n
		}
	}
}

// NewFileExtractor creates a FileExtractor.
func NewFileExtractor(opts ...Option) *FileExtractor {
	e := &FileExtractor{
		maxSize: DefaultMaxFileSize,
		logger:  zap.NewNop(),
		tracer:  otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the plain text of the document at path. Multi-page
// documents are joined with blank lines in page order.
func (e *FileExtractor) Extract(ctx context.Context, path string) (text string, err error) {
	ctx, span := e.tracer.Start(ctx, "extraction.Extract", trace.WithAttributes(
		attribute.String("document.path", path),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("document.chars", len(text)))
		}
		span.End()
	}()

	format, err := FormatFor(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	span.SetAttributes(attribute.String("document.format", string(format)))

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %w", ErrExtractionFailed, path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrExtractionFailed, path)
	}
	if info.Size() > e.maxSize {
		return "", fmt.Errorf("%w: %s is %d bytes (max %d)", ErrExtractionFailed, path, info.Size(), e.maxSize)
	}

	docs, err := e.load(ctx, format, f, info.Size())
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrExtractionFailed, path, err)
	}

	text = joinPages(docs)
	e.logger.Debug("extracted document",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("pages", len(docs)),
		zap.Int("chars", len(text)))
	return text, nil
}

// load runs the loader for format. The PDF parser panics on some malformed
// files, so panics are converted to errors.
func (e *FileExtractor) load(ctx context.Context, format Format, f *os.File, size int64) (docs []schema.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed %s document: %v", format, r)
		}
	}()

	var loader documentloaders.Loader
	switch format {
	case FormatPDF:
		loader = documentloaders.NewPDF(f, size)
	case FormatHTML:
		loader = documentloaders.NewHTML(f)
	case FormatCSV:
		loader = documentloaders.NewCSV(f)
	default:
		loader = documentloaders.NewText(io.LimitReader(f, size))
	}
	return loader.Load(ctx)
}

func joinPages(docs []schema.Document) string {
	pages := make([]string, 0, len(docs))
	for _, d := range docs {
		if content := strings.TrimSpace(d.PageContent); content != "" {
			pages = append(pages, content)
		}
	}
	return strings.Join(pages, "\n\n")
}

var _ Extractor = (*FileExtractor)(nil)
