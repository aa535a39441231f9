// Package report drafts due diligence reports with a chat model. Each
// call issues exactly one completion request and returns the raw text.
package report

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"diligencego/internal/catalog"
	"diligencego/internal/logger"
	"diligencego/internal/metrics"
	"diligencego/internal/models"
)

const (
	reportSystemPrompt = "You are an AI assistant that specializes in generating initial drafts of due diligence reports for startups.\n\n" +
		"Based on the information provided, generate a comprehensive report."

	reportUserTemplate = `Startup Name: {{.startupName}}
Email: {{.email}}
Year of Registration: {{.yearOfRegistration}}
Number of Employees: {{.numberOfEmployees}}
Field/Industry: {{.field}}`

	documentSystemPrompt = "You are an expert in due diligence. Generate structured reports."
	documentUserPrompt   = "Analyze the following company document (base64 encoded) and create a due diligence report covering financials, risks, compliance, and legal aspects:\n\n"

	// NoReport is returned by GenerateFromDocument for an empty completion.
	NoReport = "No report generated"
)

// ErrEmptyDocument rejects GenerateFromDocument calls without a payload.
var ErrEmptyDocument = errors.New("no file received")

// Document is one attachment passed to the model inline.
type Document struct {
	Type    catalog.DocumentType
	DataURI string
}

// Input is everything the report prompt is rendered from.
type Input struct {
	Details   models.BasicDetails
	Documents []Document
}

// Generator renders prompts and calls the chat model.
type Generator struct {
	model     model.BaseChatModel
	provider  string
	fileParts bool
	parser    parser.Parser
	template  prompt.ChatTemplate
	logger    *zap.Logger
	loader    documentLoader
	resolver  PathResolver
}

// Option configures a Generator.
type Option func(*Generator)

func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) { g.logger = logger.OrNop(l) }
}

// WithProvider labels metrics with the provider name and picks how
// documents are attached.
func WithProvider(name string) Option {
	return func(g *Generator) {
		g.provider = name
		g.fileParts = acceptsFileParts(name)
	}
}

func NewGenerator(chatModel model.BaseChatModel, opts ...Option) *Generator {
	g := &Generator{
		model:    chatModel,
		provider: "unknown",
		template: prompt.FromMessages(schema.GoTemplate,
			schema.SystemMessage(reportSystemPrompt),
			schema.UserMessage(reportUserTemplate),
		),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate drafts a report for the startup. Each document follows its label:
// images as image parts, other files as file parts where the provider takes
// them and as extracted text otherwise.
func (g *Generator) Generate(ctx context.Context, in Input) (string, error) {
	if err := validateInput(in); err != nil {
		return "", err
	}
	msgs, err := g.buildMessages(ctx, in)
	if err != nil {
		return "", err
	}
	resp, err := g.call(ctx, "report", msgs)
	if err != nil {
		return "", fmt.Errorf("generate report: %w", err)
	}
	return resp.Content, nil
}

// GenerateFromDocument drafts a report from a single base64 payload.
func (g *Generator) GenerateFromDocument(ctx context.Context, fileBase64 string) (string, error) {
	fileBase64 = strings.TrimSpace(fileBase64)
	if fileBase64 == "" {
		return "", ErrEmptyDocument
	}
	msgs := []*schema.Message{
		schema.SystemMessage(documentSystemPrompt),
		schema.UserMessage(documentUserPrompt + fileBase64),
	}
	resp, err := g.call(ctx, "document", msgs)
	if err != nil {
		return "", fmt.Errorf("generate document report: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return NoReport, nil
	}
	return resp.Content, nil
}

func (g *Generator) call(ctx context.Context, kind string, msgs []*schema.Message) (*schema.Message, error) {
	start := time.Now()
	resp, err := g.model.Generate(ctx, msgs)
	outcome := "ok"
	if err == nil && resp == nil {
		err = errors.New("empty model response")
	}
	if err != nil {
		outcome = "error"
	}
	elapsed := time.Since(start)
	metrics.ReportDuration.WithLabelValues(g.provider, outcome).Observe(elapsed.Seconds())
	g.logger.Debug("chat model call",
		zap.String("kind", kind),
		zap.String("provider", g.provider),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)
	return resp, err
}

func (g *Generator) buildMessages(ctx context.Context, in Input) ([]*schema.Message, error) {
	msgs, err := g.template.Format(ctx, map[string]any{
		"startupName":        in.Details.StartupName,
		"email":              in.Details.Email,
		"yearOfRegistration": in.Details.YearOfRegistration,
		"numberOfEmployees":  in.Details.NumberOfEmployees,
		"field":              string(in.Details.Field),
	})
	if err != nil {
		return nil, fmt.Errorf("format report prompt: %w", err)
	}
	user := msgs[len(msgs)-1]
	if len(in.Documents) == 0 {
		user.Content += "\n\nReport:"
		return msgs, nil
	}
	parts := []schema.ChatMessagePart{{Type: schema.ChatMessagePartTypeText, Text: user.Content}}
	for _, doc := range in.Documents {
		parts = append(parts, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeText,
			Text: doc.Type.Label() + ":",
		})
		parts = append(parts, g.documentPart(ctx, doc))
	}
	parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: "Report:"})
	user.Content = ""
	user.MultiContent = parts
	return msgs, nil
}

func (g *Generator) documentPart(ctx context.Context, doc Document) schema.ChatMessagePart {
	mime := MIMEType(doc.DataURI)
	if strings.HasPrefix(mime, "image/") {
		return schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{URL: doc.DataURI, MIMEType: mime},
		}
	}
	if !g.fileParts {
		return g.textPart(ctx, doc)
	}
	return schema.ChatMessagePart{
		Type:    schema.ChatMessagePartTypeFileURL,
		FileURL: &schema.ChatMessageFileURL{URL: doc.DataURI, MIMEType: mime, Name: string(doc.Type)},
	}
}

// DataURI encodes data as data:<mime>;base64,<payload>.
func DataURI(mime string, data []byte) string {
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// MIMEType extracts the media type of a data URI, or "".
func MIMEType(dataURI string) string {
	rest, ok := strings.CutPrefix(dataURI, "data:")
	if !ok {
		return ""
	}
	end := strings.IndexAny(rest, ";,")
	if end < 0 {
		return ""
	}
	return rest[:end]
}
