package report

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

const (
	// maxInlineChars caps the text of one document inlined into the report prompt.
	maxInlineChars = 20000

	docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// extensions maps upload media types to the parser registered for them.
var extensions = map[string]string{
	"application/pdf":  ".pdf",
	"application/json": ".json",
	"text/plain":       ".txt",
	"text/markdown":    ".md",
	"text/csv":         ".csv",
	docxMIME:           ".docx",
}

// NewDocumentParser returns the extension-aware parser that turns stored
// documents into text. Files without a text parser yield no documents.
func NewDocumentParser(ctx context.Context) (parser.Parser, error) {
	pdfParser, err := pdf.NewPDFParser(ctx, &pdf.Config{})
	if err != nil {
		return nil, fmt.Errorf("init pdf parser: %w", err)
	}
	text := parser.TextParser{}
	p, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		Parsers: map[string]parser.Parser{
			".pdf":  pdfParser,
			".txt":  text,
			".md":   text,
			".csv":  text,
			".json": text,
			".docx": docxParser{},
		},
		FallbackParser: skipParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init ext parser: %w", err)
	}
	return p, nil
}

// WithDocumentParser extracts document text for providers that cannot take
// file parts.
func WithDocumentParser(p parser.Parser) Option {
	return func(g *Generator) { g.parser = p }
}

type skipParser struct{}

func (skipParser) Parse(ctx context.Context, reader io.Reader, opts ...parser.Option) ([]*schema.Document, error) {
	return nil, nil
}

// docxParser reads the text runs of word/document.xml, one line per paragraph.
type docxParser struct{}

func (docxParser) Parse(ctx context.Context, reader io.Reader, opts ...parser.Option) ([]*schema.Document, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open docx body: %w", err)
		}
		defer rc.Close()
		text, err := docxText(rc)
		if err != nil {
			return nil, err
		}
		return []*schema.Document{{Content: text}}, nil
	}
	return nil, errors.New("docx body not found")
}

func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return strings.TrimSpace(b.String()), nil
		}
		if err != nil {
			return "", fmt.Errorf("read docx body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteString("\t")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
}

// documentText extracts the text of doc. Without a parser only text/*
// payloads are read.
func (g *Generator) documentText(ctx context.Context, doc Document) (text string, err error) {
	mime := MIMEType(doc.DataURI)
	data, err := decodeDataURI(doc.DataURI)
	if err != nil {
		return "", err
	}
	if g.parser == nil {
		if strings.HasPrefix(mime, "text/") {
			return clip(string(data), maxInlineChars), nil
		}
		return "", nil
	}
	ext, ok := extensions[mime]
	if !ok {
		return "", nil
	}
	// The pdf reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse %s: %v", doc.Type, r)
		}
	}()
	docs, err := g.parser.Parse(ctx, bytes.NewReader(data), parser.WithURI(string(doc.Type)+ext))
	if err != nil {
		return "", err
	}
	return clip(joinContent(docs), maxInlineChars), nil
}

// textPart renders a document the model cannot take as a file.
func (g *Generator) textPart(ctx context.Context, doc Document) schema.ChatMessagePart {
	mime := MIMEType(doc.DataURI)
	text, err := g.documentText(ctx, doc)
	if err != nil {
		g.logger.Warn("extract document text",
			zap.String("doc_type", string(doc.Type)),
			zap.String("mime", mime),
			zap.Error(err),
		)
	}
	if text == "" {
		text = fmt.Sprintf("[%s file, no text could be extracted]", mime)
	}
	return schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: text}
}

func decodeDataURI(dataURI string) ([]byte, error) {
	_, payload, ok := strings.Cut(dataURI, ";base64,")
	if !ok {
		return nil, fmt.Errorf("%w: not a base64 data uri", ErrInvalidInput)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return data, nil
}

func joinContent(docs []*schema.Document) string {
	var b strings.Builder
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func clip(text string, limit int) string {
	if r := []rune(text); len(r) > limit {
		return string(r[:limit])
	}
	return text
}
