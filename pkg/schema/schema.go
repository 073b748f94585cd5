// Package schema implements the structured-output extraction routine
// shared by LLM workflow nodes and the ReAct agent loop: pull a JSON value
// out of free-form model content and validate it against a JSON Schema.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Error is returned, in either mode, when no JSON value can be extracted
// from content or the extracted text does not decode, and in strict mode
// when the value fails schema validation. In non-strict mode a validation
// failure is reported through Result.Warning instead.
type Error struct {
	RawContent  string
	SchemaError error
}

func (e *Error) Error() string {
	if e.SchemaError != nil {
		return fmt.Sprintf("schema: content did not validate: %v", e.SchemaError)
	}
	return "schema: could not extract a JSON value from content"
}

func (e *Error) Unwrap() error { return e.SchemaError }

// Options tunes Parse's strictness.
type Options struct {
	// Strict, when true, turns any extraction or validation failure into
	// an Error. When false, a schema-validation failure still returns the
	// best-effort parsed value plus a non-nil Warning.
	Strict bool
}

// Result is Parse's return value.
type Result struct {
	Value   any
	Warning error
}

// Parse extracts a JSON value from content and validates it against
// schemaJSON (a JSON Schema document, itself as JSON bytes), trying in
// order: a direct parse, a fenced code block, then the first balanced
// JSON literal found in content.
func Parse(content string, schemaJSON []byte, opts Options) (Result, error) {
	raw, ok := extract(content)
	if !ok {
		return Result{}, &Error{RawContent: content}
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return Result{}, &Error{RawContent: content, SchemaError: err}
	}

	if len(schemaJSON) == 0 {
		return Result{Value: value}, nil
	}

	compiled, err := compile(schemaJSON)
	if err != nil {
		return Result{}, fmt.Errorf("schema: compiling schema: %w", err)
	}

	if err := compiled.Validate(value); err != nil {
		if opts.Strict {
			return Result{}, &Error{RawContent: content, SchemaError: err}
		}
		return Result{Value: value, Warning: err}, nil
	}

	return Result{Value: value}, nil
}

func compile(schemaJSON []byte) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	return c.Compile("schema.json")
}

// extract finds the JSON substring to parse, trying direct content, then
// a fenced ```json code block, then the first balanced {...} or [...].
func extract(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", false
	}
	if looksLikeJSON(trimmed) && json.Valid([]byte(trimmed)) {
		return trimmed, true
	}

	if fenced, ok := extractFenced(content); ok {
		return fenced, true
	}

	if balanced, ok := extractBalanced(content); ok {
		return balanced, true
	}

	return "", false
}

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

func extractFenced(content string) (string, bool) {
	const fence = "```"
	start := strings.Index(content, fence)
	if start == -1 {
		return "", false
	}
	rest := content[start+len(fence):]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		lang := strings.TrimSpace(rest[:nl])
		if lang == "" || strings.EqualFold(lang, "json") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, fence)
	if end == -1 {
		return "", false
	}
	body := strings.TrimSpace(rest[:end])
	if body == "" {
		return "", false
	}
	return body, true
}

// extractBalanced scans for the first top-level balanced {...} or [...]
// substring, tolerating braces/brackets inside quoted strings.
func extractBalanced(content string) (string, bool) {
	for i, r := range content {
		if r != '{' && r != '[' {
			continue
		}
		open, close := r, matchingClose(r)
		depth := 0
		inString := false
		escaped := false
		for j := i; j < len(content); j++ {
			c := rune(content[j])
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case open:
				depth++
			case close:
				depth--
				if depth == 0 {
					return content[i : j+1], true
				}
			}
		}
		// Unbalanced from this start; try the next candidate opener.
	}
	return "", false
}

func matchingClose(open rune) rune {
	if open == '{' {
		return '}'
	}
	return ']'
}
