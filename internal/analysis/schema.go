package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/starford/bookzettel/internal/apperr"
	"github.com/starford/bookzettel/internal/models"
)

const recordsSchemaURL = "concept-records.json"

const recordsSchema = `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["title", "summary", "tags"],
    "properties": {
      "title": {"type": "string", "minLength": 1},
      "summary": {"type": "string", "minLength": 1},
      "examples": {"type": "string"},
      "tags": {"type": "array", "items": {"type": "string"}}
    },
    "additionalProperties": false
  }
}`

var schema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(recordsSchemaURL, strings.NewReader(recordsSchema)); err != nil {
		panic(err)
	}
	return c.MustCompile(recordsSchemaURL)
}

var fenceRe = regexp.MustCompile("(?s)^```[A-Za-z]*\\s*\\n?(.*?)\\n?```$")

// ErrMalformedResponse marks a completion that is not a usable record array.
var ErrMalformedResponse = errors.New("malformed analysis response")

// DecodeRecords validates a raw completion and decodes it into concept
// records. Markdown code fences and surrounding prose are tolerated; anything
// that does not match the record schema is rejected before it reaches the
// compiler.
func DecodeRecords(raw string) ([]models.ConceptRecord, error) {
	payload := extractJSON(raw)

	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if arr, ok := doc.([]any); ok && len(arr) == 0 {
		return nil, fmt.Errorf("%w: no concepts returned", ErrMalformedResponse)
	}
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, schemaError(doc, ve)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var records []models.ConceptRecord
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	for i := range records {
		if err := validateRecord(records[i]); err != nil {
			return nil, &apperr.RecordValidationError{Index: i, Title: records[i].Title, Err: err}
		}
	}
	return records, nil
}

func validateRecord(r models.ConceptRecord) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.By(notBlank)),
		validation.Field(&r.Summary, validation.Required, validation.By(notBlank)),
	)
}

func notBlank(v any) error {
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return errors.New("must not be blank")
	}
	return nil
}

// schemaError names the offending record when the failure is inside one.
func schemaError(doc any, ve *jsonschema.ValidationError) error {
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	loc := strings.TrimPrefix(leaf.InstanceLocation, "/")
	if loc == "" {
		return fmt.Errorf("%w: %s", ErrMalformedResponse, leaf.Message)
	}
	var idx int
	if _, err := fmt.Sscanf(loc, "%d", &idx); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrMalformedResponse, leaf.InstanceLocation, leaf.Message)
	}
	title := ""
	if arr, ok := doc.([]any); ok && idx < len(arr) {
		if obj, ok := arr[idx].(map[string]any); ok {
			title, _ = obj["title"].(string)
		}
	}
	return &apperr.RecordValidationError{
		Index: idx,
		Title: title,
		Err:   fmt.Errorf("%s: %s", leaf.InstanceLocation, leaf.Message),
	}
}

// extractJSON strips code fences and any prose around the outermost array.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		return s
	}
	start, end := strings.Index(s, "["), strings.LastIndex(s, "]")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
