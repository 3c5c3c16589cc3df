package fallback

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/itchyny/gojq"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/faultline/faultline/pkg/schema"
)

// guideSchemaJSON is the JSON Schema the backend response must satisfy
// before any of it is shown to a user. Embedded as a constant to avoid
// filesystem dependencies.
const guideSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://faultline.dev/schemas/guide.json",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "steps": {
      "type": "array",
      "minItems": 1,
      "maxItems": 20,
      "items": {
        "type": "object",
        "required": ["text"],
        "properties": {
          "text": {
            "type": "string",
            "minLength": 1,
            "maxLength": 2000
          },
          "safety": {
            "type": "boolean"
          }
        },
        "additionalProperties": false
      }
    },
    "summary": {
      "type": "string"
    }
  },
  "additionalProperties": false
}`

// stepsExpr extracts the ordered step list from a validated response.
const stepsExpr = `.steps[] | {text: .text, safety: (.safety // false)}`

// Parser validates and extracts guide steps from raw backend responses.
// The JSON Schema and the jq program are compiled once at construction and
// reused across goroutines.
type Parser struct {
	guideSchema *jsonschema.Schema
	steps       *gojq.Code

	mu sync.Mutex // gojq iterators are not concurrent; serialize runs
}

// NewParser compiles the guide schema and extraction program. Compilation
// failure is a startup error.
func NewParser() (*Parser, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(guideSchemaJSON))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "unmarshal guide schema").WithCause(err)
	}
	if err := c.AddResource("https://faultline.dev/schemas/guide.json", schemaDoc); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "add guide schema resource").WithCause(err)
	}
	compiled, err := c.Compile("https://faultline.dev/schemas/guide.json")
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "compile guide schema").WithCause(err)
	}

	query, err := gojq.Parse(stepsExpr)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "parse steps expression").WithCause(err)
	}
	code, err := gojq.Compile(query,
		// Sandbox: return empty env to block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "compile steps expression").WithCause(err)
	}

	return &Parser{guideSchema: compiled, steps: code}, nil
}

// Parse validates a raw backend response and extracts its ordered steps.
// Anything that does not satisfy the schema is rejected wholesale; partial
// extraction would surface unreviewed content.
func (p *Parser) Parse(raw string) ([]schema.GuideStep, error) {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "backend response is not valid JSON").WithCause(err)
	}

	if err := p.guideSchema.Validate(doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "backend response does not match guide schema").WithCause(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var steps []schema.GuideStep
	iter := p.steps.Run(doc)
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewError(schema.ErrCodeValidation, "step extraction failed").WithCause(err)
		}
		m, ok := val.(map[string]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "unexpected step shape %T", val)
		}
		step := schema.GuideStep{}
		if text, ok := m["text"].(string); ok {
			step.Text = strings.TrimSpace(text)
		}
		if safety, ok := m["safety"].(bool); ok {
			step.Safety = safety
		}
		if step.Text == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "step with empty text")
		}
		steps = append(steps, step)
	}

	if len(steps) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "backend response contained no steps")
	}
	return steps, nil
}
