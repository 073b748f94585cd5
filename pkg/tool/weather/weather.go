// Package weather is a reference tool exercising the ReAct tool-call loop
// end to end: a single-parameter lookup with a pluggable backend.
package weather

import (
	"context"
	"fmt"

	"github.com/kadirpekel/conduit/pkg/tool"
	"github.com/kadirpekel/conduit/pkg/tool/functiontool"
)

// Args is the tool's single required parameter.
type Args struct {
	City string `json:"city" jsonschema:"required,description=City name to look up"`
}

// Report is what Lookup returns for a successful call.
type Report struct {
	TempC     float64 `json:"temp"`
	Condition string  `json:"cond"`
}

// Lookup fetches current conditions for a city. The default
// implementation is a canned stub; callers running against a real
// provider should inject their own via New.
type Lookup func(ctx context.Context, city string) (Report, error)

// New builds the weather tool.Tool, backed by lookup.
func New(lookup Lookup) (tool.Tool, error) {
	return functiontool.New(functiontool.Config{
		Name:        "weather",
		Description: "Get current weather conditions for a city",
	}, func(ctx context.Context, args Args) (any, error) {
		if args.City == "" {
			return nil, fmt.Errorf("city is required")
		}
		return lookup(ctx, args.City)
	})
}

// StubLookup returns a fixed report regardless of city, useful for tests
// and offline demos.
func StubLookup(report Report) Lookup {
	return func(_ context.Context, _ string) (Report, error) {
		return report, nil
	}
}
