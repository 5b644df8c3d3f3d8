// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var (
	openFence  = regexp.MustCompile("^```(?:json)?\\s*")
	closeFence = regexp.MustCompile("\\s*```$")
)

// StripFences removes a surrounding Markdown code fence from a response.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = openFence.ReplaceAllString(s, "")
	s = closeFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Schema validates model JSON output before it is decoded.
type Schema struct {
	schema *gojsonschema.Schema
}

// MustSchema compiles a JSON Schema document and panics on error. It is
// meant for package-level schema variables.
func MustSchema(doc string) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("llm: compiling schema: %v", err))
	}
	return &Schema{schema: s}
}

// Decode strips code fences, validates raw against the schema, and
// unmarshals it into v.
func (s *Schema) Decode(raw string, v any) error {
	doc := StripFences(raw)
	res, err := s.schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return fmt.Errorf("parsing model JSON: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("model JSON does not match schema: %s", strings.Join(msgs, "; "))
	}
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		return fmt.Errorf("decoding model JSON: %w", err)
	}
	return nil
}
