package ai

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

var schemas sync.Map // reflect.Type -> *jsonschema.Schema

// GenerateSchema returns the JSON schema of value's type for structured
// output. Schemas are built once per type.
func GenerateSchema(value any) any {
	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if s, ok := schemas.Load(t); ok {
		return s
	}

	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	s, _ := schemas.LoadOrStore(t, reflector.Reflect(reflect.New(t).Interface()))
	return s
}

// ErrMalformedJSON is returned when model output cannot be read as JSON
// even after repair.
var ErrMalformedJSON = errors.New("malformed model output")

// UnmarshalFlexible decodes model output into out. Besides plain JSON it
// accepts output wrapped in a markdown code fence, a JSON string holding
// the document, a doubled leading brace and anything jsonrepair can fix
// (single quotes, unquoted keys, trailing commas, missing brackets).
func UnmarshalFlexible(input string, out any) error {
	input = stripFence(strings.TrimSpace(input))
	if input == "" {
		return ErrMalformedJSON
	}
	if json.Unmarshal([]byte(input), out) == nil {
		return nil
	}

	var inner string
	if json.Unmarshal([]byte(input), &inner) == nil {
		inner = stripFence(strings.TrimSpace(inner))
		if json.Unmarshal([]byte(inner), out) == nil {
			return nil
		}
		input = inner
	}

	repaired, err := jsonrepair.JSONRepair(collapseLeadingBrace(input))
	if err != nil {
		return errors.Join(ErrMalformedJSON, err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return errors.Join(ErrMalformedJSON, err)
	}
	return nil
}

// stripFence removes a ```json ... ``` wrapper.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func collapseLeadingBrace(s string) string {
	if rest, ok := strings.CutPrefix(s, "{"); ok {
		if rest = strings.TrimSpace(rest); strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}
