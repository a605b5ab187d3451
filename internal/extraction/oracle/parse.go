package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

var fencedJSON = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// ParseResponse pulls the JSON object out of a model reply and keeps only the
// requested fields. Keys are matched exactly first, then case-insensitively.
func ParseResponse(content string, fields []string) (map[string]any, error) {
	raw, ok := locateObject(content)
	if !ok {
		return nil, newError(KindMalformed, "no json object in response", nil)
	}

	var doc map[string]any
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&doc); err != nil {
		return nil, newError(KindMalformed, "decode response", err)
	}

	folded := make(map[string]string, len(doc))
	for k := range doc {
		folded[strings.ToLower(strings.TrimSpace(k))] = k
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
			continue
		}
		if k, ok := folded[strings.ToLower(f)]; ok {
			out[f] = doc[k]
		}
	}

	schema, err := schemaFor(fields)
	if err != nil {
		return nil, newError(KindClient, "compile response schema", err)
	}
	if err := schema.Validate(map[string]any(out)); err != nil {
		return nil, newError(KindMalformed, "response does not match field schema", err)
	}
	return out, nil
}

// locateObject tries the whole body, then a fenced block, then the outermost braces.
func locateObject(content string) (string, bool) {
	content = strings.TrimSpace(content)
	if isObject(content) {
		return content, true
	}
	if m := fencedJSON.FindStringSubmatch(content); m != nil && isObject(m[1]) {
		return m[1], true
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		if span := content[start : end+1]; isObject(span) {
			return span, true
		}
	}
	return "", false
}

func isObject(s string) bool {
	return gjson.Valid(s) && gjson.Parse(s).IsObject()
}

var schemaCache sync.Map // joined field list -> *jsonschema.Schema

// schemaFor requires an object that carries at least one requested field.
func schemaFor(fields []string) (*jsonschema.Schema, error) {
	key := strings.Join(fields, "\x00")
	if s, ok := schemaCache.Load(key); ok {
		return s.(*jsonschema.Schema), nil
	}

	props := make(map[string]any, len(fields))
	anyOf := make([]any, 0, len(fields))
	for _, f := range fields {
		props[f] = map[string]any{
			"type": []string{"string", "number", "integer", "boolean", "array", "object", "null"},
		}
		anyOf = append(anyOf, map[string]any{"required": []string{f}})
	}
	schemaMap := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(anyOf) > 0 {
		schemaMap["anyOf"] = anyOf
	}

	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("fields.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("fields.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	schemaCache.Store(key, schema)
	return schema, nil
}
