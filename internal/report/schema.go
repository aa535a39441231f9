package report

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"diligencego/internal/catalog"
)

// ErrInvalidInput wraps schema violations found before calling the model.
var ErrInvalidInput = errors.New("invalid report input")

var (
	schemaOnce  sync.Once
	inputSchema *gojsonschema.Schema
	schemaErr   error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		docTypes := make([]string, 0)
		for _, d := range catalog.DocumentTypes() {
			docTypes = append(docTypes, string(d))
		}
		def := map[string]any{
			"type":     "object",
			"required": []string{"startupName", "email", "yearOfRegistration", "numberOfEmployees", "field"},
			"properties": map[string]any{
				"startupName":        map[string]any{"type": "string", "minLength": 2},
				"email":              map[string]any{"type": "string", "format": "email"},
				"yearOfRegistration": map[string]any{"type": "integer", "minimum": 1900},
				"numberOfEmployees":  map[string]any{"type": "integer", "minimum": 1},
				"field":              map[string]any{"type": "string", "minLength": 1},
				"documents": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":     "object",
						"required": []string{"type", "dataUri"},
						"properties": map[string]any{
							"type":    map[string]any{"type": "string", "enum": docTypes},
							"dataUri": map[string]any{"type": "string", "pattern": `^data:[^;,]+;base64,`},
						},
					},
				},
			},
		}
		inputSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewGoLoader(def))
	})
	return inputSchema, schemaErr
}

func validateInput(in Input) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile report schema: %w", err)
	}
	docs := make([]map[string]any, 0, len(in.Documents))
	for _, d := range in.Documents {
		docs = append(docs, map[string]any{"type": string(d.Type), "dataUri": d.DataURI})
	}
	payload := map[string]any{
		"startupName":        in.Details.StartupName,
		"email":              in.Details.Email,
		"yearOfRegistration": in.Details.YearOfRegistration,
		"numberOfEmployees":  in.Details.NumberOfEmployees,
		"field":              string(in.Details.Field),
		"documents":          docs,
	}
	result, err := s.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return fmt.Errorf("validate report input: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}
