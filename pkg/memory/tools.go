package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

// Tools exposes a memory backend to agents as registry tools: remember
// stores a fact, recall searches stored facts. Any core.Memory works;
// vector-backed memories give recall semantic matching, the simpler
// backends match by substring.
func Tools(mem core.Memory) []tools.Tool {
	remember := tools.New(
		tools.NewDefinition(
			"remember",
			"Store a fact in long-term memory so it can be recalled in later tasks.",
			map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "The fact to store, phrased so it is useful on its own.",
				},
			},
			"content",
		),
		func(ctx context.Context, args map[string]any) (any, error) {
			content, _ := args["content"].(string)
			if strings.TrimSpace(content) == "" {
				return nil, fmt.Errorf("content must not be empty")
			}
			if err := mem.Store(ctx, content); err != nil {
				return nil, err
			}
			return fmt.Sprintf("stored memory (%d chars)", len(content)), nil
		},
	)

	recall := tools.New(
		tools.NewDefinition(
			"recall",
			"Search long-term memory for facts related to a query.",
			map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Text describing what to look for.",
				},
			},
			"query",
		),
		func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			if strings.TrimSpace(query) == "" {
				return nil, fmt.Errorf("query must not be empty")
			}

			result, err := mem.Retrieve(ctx, query)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return "no matching memories", nil
				}
				return nil, err
			}

			matches, ok := result.([]string)
			if !ok || len(matches) == 0 {
				return "no matching memories", nil
			}
			return strings.Join(matches, "\n"), nil
		},
	)

	return []tools.Tool{remember, recall}
}
