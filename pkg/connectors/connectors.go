// Package connectors turns external API surfaces into registry tools.
// Each connector inspects one backend (an OpenAPI document, a GraphQL
// endpoint, a SQL database, a gRPC server) and produces one tool per
// operation. The tools implement tools.Tool, so registry schema
// validation applies to connector calls like any other tool.
package connectors

import (
	"encoding/json"
	"strings"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

// Connector produces tools from one external backend.
type Connector interface {
	// Name identifies the connector in logs and errors.
	Name() string

	// Tools returns the generated tools. Each tool is self-contained
	// and remains valid for the connector's lifetime.
	Tools() []tools.Tool
}

// Attach registers every tool of the connector and returns their names.
// Registration stops at the first failure.
func Attach(reg *tools.Registry, conn Connector) ([]string, error) {
	generated := conn.Tools()
	names := make([]string, 0, len(generated))
	for _, t := range generated {
		if err := reg.Register(t); err != nil {
			return names, err
		}
		names = append(names, t.Name())
	}
	return names, nil
}

// snakeCase converts CamelCase names to snake_case, keeping acronym runs
// together: "HTTPServer" becomes "http_server", not "h_t_t_p_server".
func snakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	runes := []rune(s)
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			prevLower := i > 0 && isLowerAlnum(runes[i-1])
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if i > 0 && runes[i-1] != '_' && (prevLower || nextLower) {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isLowerAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// firstNonEmpty returns the first value that is not the empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// asInt64 coerces JSON-decoded numeric argument values.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func asUint64(v any) (uint64, bool) {
	n, ok := asInt64(v)
	if !ok || n < 0 {
		return 0, false
	}
	return uint64(n), true
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
