// Package functiontool builds a tool.Tool from a typed Go function,
// generating its JSON Schema by reflecting over the argument struct's
// json/jsonschema tags instead of hand-writing the schema.
package functiontool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/conduit/pkg/tool"
)

// Config names and describes the generated tool.
type Config struct {
	Name          string
	Description   string
	NeedsApproval bool
}

type functionTool[Args any] struct {
	cfg    Config
	fn     func(context.Context, Args) (any, error)
	schema map[string]any
}

// New builds a tool.Tool from fn, whose Args struct drives schema
// generation via struct tags:
//
//	type WeatherArgs struct {
//	    City string `json:"city" jsonschema:"required,description=City name"`
//	}
func New[Args any](cfg Config, fn func(context.Context, Args) (any, error)) (tool.Tool, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("functiontool: name is required")
	}
	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("functiontool: generating schema for %s: %w", cfg.Name, err)
	}
	return &functionTool[Args]{cfg: cfg, fn: fn, schema: schema}, nil
}

func (t *functionTool[Args]) Name() string               { return t.cfg.Name }
func (t *functionTool[Args]) Description() string         { return t.cfg.Description }
func (t *functionTool[Args]) NeedsApproval() bool          { return t.cfg.NeedsApproval }
func (t *functionTool[Args]) InputSchema() map[string]any { return t.schema }

func (t *functionTool[Args]) Execute(ctx context.Context, rawArgs map[string]any) (tool.Result, error) {
	start := time.Now()

	raw, err := json.Marshal(rawArgs)
	if err != nil {
		return tool.Result{Success: false, Error: err.Error(), Duration: time.Since(start)}, err
	}
	var args Args
	if err := json.Unmarshal(raw, &args); err != nil {
		return tool.Result{Success: false, Error: err.Error(), Duration: time.Since(start)}, err
	}

	data, err := t.fn(ctx, args)
	duration := time.Since(start)
	if err != nil {
		return tool.Result{Success: false, Error: err.Error(), Duration: duration}, err
	}
	return tool.Result{Success: true, Data: data, Duration: duration}, nil
}

// generateSchema reflects Args into a JSON Schema object suitable for an
// LLM function declaration: flattened to {type, properties, required},
// never wrapped in $defs/$ref.
func generateSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshaling reflected schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return nil, fmt.Errorf("decoding reflected schema: %w", err)
	}

	if schemaMap["type"] != "object" {
		return schemaMap, nil
	}
	result := map[string]any{
		"type":       "object",
		"properties": schemaMap["properties"],
	}
	if required, ok := schemaMap["required"]; ok {
		result["required"] = required
	}
	if addProps, ok := schemaMap["additionalProperties"]; ok {
		result["additionalProperties"] = addProps
	}
	return result, nil
}
