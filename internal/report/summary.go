package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

const (
	summarySystemPrompt = "You are an expert summarizer."
	summaryUserPrompt   = "Please summarize the following documents:\n\n"

	// SummaryProgress is reported alongside every generated summary.
	SummaryProgress = "Generated a short summary of the uploaded documents."

	maxDocumentChars = 6000
)

// ErrNoDocuments is returned when there is nothing to summarize.
var ErrNoDocuments = errors.New("no documents to summarize")

// Summary is the result of Summarize.
type Summary struct {
	Summary  string `json:"summary"`
	Progress string `json:"progress"`
}

// PathResolver maps a stored document URL to a local file, when possible.
type PathResolver interface {
	LocalPath(url string) (string, bool)
}

type documentLoader interface {
	Load(ctx context.Context, src document.Source, opts ...document.LoaderOption) ([]*schema.Document, error)
}

// WithDocumentLoader lets Summarize read the text of documents that the
// resolver can place on local disk.
func WithDocumentLoader(loader documentLoader, resolver PathResolver) Option {
	return func(g *Generator) {
		g.loader = loader
		g.resolver = resolver
	}
}

// NewFileLoader builds the file loader used for summaries on top of p,
// or of NewDocumentParser when p is nil.
func NewFileLoader(ctx context.Context, p parser.Parser) (*file.FileLoader, error) {
	if p == nil {
		var err error
		if p, err = NewDocumentParser(ctx); err != nil {
			return nil, err
		}
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      p,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	return loader, nil
}

// Summarize asks the model for a short summary of the given documents.
func (g *Generator) Summarize(ctx context.Context, urls []string) (*Summary, error) {
	if len(urls) == 0 {
		return nil, ErrNoDocuments
	}
	var b strings.Builder
	b.WriteString(summaryUserPrompt)
	for _, u := range urls {
		fmt.Fprintf(&b, "Document URL: %s\n", u)
		if text := g.readLocal(ctx, u); text != "" {
			fmt.Fprintf(&b, "Content:\n%s\n", text)
		}
		b.WriteString("\n")
	}
	msgs := []*schema.Message{
		schema.SystemMessage(summarySystemPrompt),
		schema.UserMessage(strings.TrimSpace(b.String())),
	}
	resp, err := g.call(ctx, "summary", msgs)
	if err != nil {
		return nil, fmt.Errorf("summarize documents: %w", err)
	}
	return &Summary{Summary: resp.Content, Progress: SummaryProgress}, nil
}

func (g *Generator) readLocal(ctx context.Context, u string) (text string) {
	if g.loader == nil || g.resolver == nil {
		return ""
	}
	p, ok := g.resolver.LocalPath(u)
	if !ok {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("load document for summary", zap.String("path", p), zap.Any("panic", r))
			text = ""
		}
	}()
	docs, err := g.loader.Load(ctx, document.Source{URI: p})
	if err != nil {
		g.logger.Warn("load document for summary", zap.String("path", p), zap.Error(err))
		return ""
	}
	return clip(joinContent(docs), maxDocumentChars)
}
