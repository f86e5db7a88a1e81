package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/adobe/aio-tvm/internal/core"
)

const (
	// ReservedPrefixPattern matches parameters injected by the hosting platform.
	ReservedPrefixPattern = `^__ow_.+$`

	// emptyKeyPattern matches the empty key, a known platform artifact.
	emptyKeyPattern = `^$`

	schemaURL = "tvm://request.schema.json"
)

var printer = message.NewPrinter(language.English)

// Schema validates request parameters. It is compiled once and is safe for
// concurrent use.
type Schema struct {
	fields   map[string]core.Field
	compiled *jsonschema.Schema
}

// BaseFields returns the fields every credential request must carry.
func BaseFields(leaseMin, leaseMax int) []core.Field {
	return []core.Field{
		{Name: core.ParamTenant, Type: core.FieldString, Required: true, Min: core.Bound(3), Max: core.Bound(63)},
		{Name: core.ParamAuthorization, Type: core.FieldString, Required: true},
		{Name: core.ParamLeaseDuration, Type: core.FieldInteger, Required: true, Min: core.Bound(leaseMin), Max: core.Bound(leaseMax)},
		{Name: core.ParamAllowList, Type: core.FieldString, Required: true},
		{Name: core.ParamIdentityAPIHost, Type: core.FieldURI, Required: true},
		{Name: core.ParamDenyListURL, Type: core.FieldURI},
	}
}

// NewSchema composes fields into a schema. A later field with the same name
// replaces an earlier one.
func NewSchema(fields ...core.Field) (*Schema, error) {
	byName := make(map[string]core.Field, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field with empty name")
		}
		byName[f.Name] = f
	}

	raw, err := json.Marshal(document(byName))
	if err != nil {
		return nil, fmt.Errorf("marshalling schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}

	return &Schema{
		fields:   byName,
		compiled: compiled,
	}, nil
}

// Fields returns the names of all declared fields, sorted.
func (s *Schema) Fields() []string {
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks params against the schema. Integer fields given as strings
// are converted, strictly. The returned map is a coerced copy of params.
// Failures are structural errors naming the offending fields.
func (s *Schema) Validate(params map[string]any) (map[string]any, error) {
	coerced := s.coerce(params)

	raw, err := json.Marshal(coerced)
	if err != nil {
		return nil, core.StructuralError("request parameters are not serializable: %v", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, core.StructuralError("request parameters are not valid json: %v", err)
	}

	if err := s.compiled.Validate(inst); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return nil, core.ServerError(err, "schema validation failed")
		}
		return nil, core.StructuralError("invalid request parameters: %s", strings.Join(describe(verr), "; "))
	}
	return coerced, nil
}

func (s *Schema) coerce(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
		f, ok := s.fields[k]
		if !ok || f.Type != core.FieldInteger {
			continue
		}
		switch n := v.(type) {
		case string:
			// strconv is strict: "10#" or "1e3" stay strings and fail the type check
			if i, err := strconv.Atoi(n); err == nil {
				out[k] = i
			}
		case float64:
			if n == math.Trunc(n) && !math.IsInf(n, 0) {
				out[k] = int64(n)
			}
		}
	}
	return out
}

func document(fields map[string]core.Field) map[string]any {
	properties := make(map[string]any, len(fields))
	required := make([]string, 0)
	for name, f := range fields {
		properties[name] = property(f)
		if f.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	return map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": properties,
		"required":   required,
		"patternProperties": map[string]any{
			ReservedPrefixPattern: map[string]any{},
			emptyKeyPattern:       map[string]any{},
		},
		"additionalProperties": false,
	}
}

func property(f core.Field) map[string]any {
	p := map[string]any{}
	switch f.Type {
	case core.FieldInteger:
		p["type"] = "integer"
		if f.Min != nil {
			p["minimum"] = *f.Min
		}
		if f.Max != nil {
			p["maximum"] = *f.Max
		}
		return p
	case core.FieldURI:
		p["type"] = "string"
		p["format"] = "uri"
	default:
		p["type"] = "string"
	}

	// empty strings are never accepted
	minLength := 1
	if f.Min != nil && *f.Min > minLength {
		minLength = *f.Min
	}
	p["minLength"] = minLength
	if f.Max != nil {
		p["maxLength"] = *f.Max
	}
	if len(f.Patterns) > 0 {
		all := make([]any, 0, len(f.Patterns))
		for _, pattern := range f.Patterns {
			all = append(all, map[string]any{"pattern": pattern})
		}
		p["allOf"] = all
	}
	return p
}

// describe flattens the error tree into one message per failing field.
func describe(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		return []string{leafMessage(verr)}
	}
	var msgs []string
	for _, cause := range verr.Causes {
		msgs = append(msgs, describe(cause)...)
	}
	sort.Strings(msgs)
	return msgs
}

func leafMessage(verr *jsonschema.ValidationError) string {
	switch k := verr.ErrorKind.(type) {
	case *kind.Required:
		return fmt.Sprintf("missing required field(s) %s", quoteAll(k.Missing))
	case *kind.AdditionalProperties:
		return fmt.Sprintf("unknown field(s) %s", quoteAll(k.Properties))
	}
	field := strings.Join(verr.InstanceLocation, "/")
	return fmt.Sprintf("field %q: %s", field, verr.ErrorKind.LocalizedString(printer))
}

func quoteAll(names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	quoted := make([]string, len(sorted))
	for i, n := range sorted {
		quoted[i] = strconv.Quote(n)
	}
	return strings.Join(quoted, ", ")
}
