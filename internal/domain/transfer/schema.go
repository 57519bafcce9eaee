package transfer

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/medtransfer/dss/internal/domain/synthetic"
)

// Schema is a named JSON Schema definition for a request body.
type Schema struct {
	Name       string
	Definition map[string]any
}

func intProp(min, max int) map[string]any {
	return map[string]any{"type": "integer", "minimum": min, "maximum": max}
}

func reportProp() map[string]any {
	return map[string]any{"type": "string", "minLength": 1, "maxLength": 4000}
}

func enumOf(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

var AnalyzeSchema = &Schema{
	Name: "analyze-request",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"report":      reportProp(),
			"n_transfers": intProp(MinTransfers, MaxTransfers),
			"seed_t":      intProp(MinSeed, MaxSeed),
		},
		"required":             []any{"report"},
		"additionalProperties": false,
	},
}

var RankSchema = &Schema{
	Name: "rank-request",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"specialty":   map[string]any{"type": "string", "minLength": 1},
			"severity":    map[string]any{"type": "string", "enum": enumOf(synthetic.SeverityLevels)},
			"top_k":       intProp(MinTopK, MaxTopK),
			"n_hospitals": intProp(MinHospitals, MaxHospitals),
			"seed_h":      intProp(MinSeed, MaxSeed),
		},
		"required":             []any{"specialty", "severity"},
		"additionalProperties": false,
	},
}

var RecommendSchema = &Schema{
	Name: "recommend-request",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"report":      reportProp(),
			"top_k":       intProp(MinTopK, MaxTopK),
			"n_hospitals": intProp(MinHospitals, MaxHospitals),
			"n_transfers": intProp(MinTransfers, MaxTransfers),
			"seed_h":      intProp(MinSeed, MaxSeed),
			"seed_t":      intProp(MinSeed, MaxSeed),
		},
		"required":             []any{"report"},
		"additionalProperties": false,
	},
}

var schemaCache sync.Map // map[string]*jsonschema.Schema

func compiled(schema *Schema) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(schema.Name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	// The compiler wants decoded JSON values, not Go ints.
	raw, err := json.Marshal(schema.Definition)
	if err != nil {
		return nil, fmt.Errorf("marshal schema definition: %w", err)
	}
	var def any
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parse schema definition: %w", err)
	}

	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", schema.Name)
	if err := c.AddResource(url, def); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	schemaCache.Store(schema.Name, s)
	return s, nil
}

// ValidateBody checks raw JSON against schema. Any failure wraps
// ErrInvalidRequest.
func ValidateBody(schema *Schema, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: malformed JSON: %v", ErrInvalidRequest, err)
	}
	s, err := compiled(schema)
	if err != nil {
		return fmt.Errorf("compile schema %q: %w", schema.Name, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
