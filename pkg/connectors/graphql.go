package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

// gqlSchema is the introspected shape of a GraphQL endpoint.
type gqlSchema struct {
	QueryType    *gqlNamedType `json:"queryType"`
	MutationType *gqlNamedType `json:"mutationType"`
	Types        []gqlType     `json:"types"`
}

type gqlNamedType struct {
	Name string `json:"name"`
}

type gqlType struct {
	Kind        string     `json:"kind"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Fields      []gqlField `json:"fields"`
}

type gqlField struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Args        []gqlArg   `json:"args"`
	Type        gqlTypeRef `json:"type"`
}

type gqlArg struct {
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Type         gqlTypeRef `json:"type"`
	DefaultValue any        `json:"defaultValue"`
}

type gqlTypeRef struct {
	Kind   string      `json:"kind"`
	Name   string      `json:"name"`
	OfType *gqlTypeRef `json:"ofType"`
}

// GraphQLConnector generates one tool per query and mutation field of an
// introspected GraphQL schema. Arguments are sent as GraphQL variables,
// never spliced into the query text.
type GraphQLConnector struct {
	endpoint string
	client   *http.Client
	headers  map[string]string
	prefix   string
	schema   *gqlSchema
	types    map[string]*gqlType
	built    []tools.Tool
}

// GraphQLOption configures a GraphQLConnector.
type GraphQLOption func(*GraphQLConnector)

// WithGraphQLHeader adds a header to every request, introspection
// included.
func WithGraphQLHeader(key, value string) GraphQLOption {
	return func(c *GraphQLConnector) { c.headers[key] = value }
}

// WithGraphQLBearer sends a Bearer token on every request.
func WithGraphQLBearer(token string) GraphQLOption {
	return func(c *GraphQLConnector) { c.headers["Authorization"] = "Bearer " + token }
}

// WithGraphQLClient sets the HTTP client.
func WithGraphQLClient(client *http.Client) GraphQLOption {
	return func(c *GraphQLConnector) { c.client = client }
}

// WithGraphQLPrefix prefixes generated tool names, separated with an
// underscore.
func WithGraphQLPrefix(prefix string) GraphQLOption {
	return func(c *GraphQLConnector) { c.prefix = prefix }
}

// NewGraphQL introspects the endpoint and builds the connector.
func NewGraphQL(ctx context.Context, endpoint string, opts ...GraphQLOption) (*GraphQLConnector, error) {
	c := newGraphQLConnector(endpoint, opts)
	if err := c.introspect(ctx); err != nil {
		return nil, errors.New(errors.CodeValidation, "graphql introspection failed", err)
	}
	c.build()
	return c, nil
}

// GraphQLFromIntrospection builds the connector from a stored
// introspection result instead of querying the endpoint. The data may be
// a full GraphQL response, the data object, or the bare __schema value.
func GraphQLFromIntrospection(endpoint string, introspection []byte, opts ...GraphQLOption) (*GraphQLConnector, error) {
	schema, err := parseIntrospection(introspection)
	if err != nil {
		return nil, err
	}
	c := newGraphQLConnector(endpoint, opts)
	c.setSchema(schema)
	c.build()
	return c, nil
}

func newGraphQLConnector(endpoint string, opts []GraphQLOption) *GraphQLConnector {
	c := &GraphQLConnector{
		endpoint: endpoint,
		client:   http.DefaultClient,
		headers:  map[string]string{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func parseIntrospection(data []byte) (*gqlSchema, error) {
	var envelope struct {
		Data *struct {
			Schema *gqlSchema `json:"__schema"`
		} `json:"data"`
		Schema *gqlSchema `json:"__schema"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, errors.New(errors.CodeValidation, "introspection result is not valid JSON", err)
	}
	switch {
	case envelope.Data != nil && envelope.Data.Schema != nil:
		return envelope.Data.Schema, nil
	case envelope.Schema != nil:
		return envelope.Schema, nil
	}

	var bare gqlSchema
	if err := json.Unmarshal(data, &bare); err == nil && len(bare.Types) > 0 {
		return &bare, nil
	}
	return nil, errors.Newf(errors.CodeValidation, "introspection result contains no __schema")
}

func (c *GraphQLConnector) setSchema(schema *gqlSchema) {
	c.schema = schema
	c.types = make(map[string]*gqlType, len(schema.Types))
	for i := range schema.Types {
		t := &schema.Types[i]
		c.types[t.Name] = t
	}
}

// introspectionQuery is the standard introspection document, trimmed to
// the parts the connector reads.
const introspectionQuery = `
query IntrospectionQuery {
  __schema {
    queryType { name }
    mutationType { name }
    types {
      kind
      name
      description
      fields(includeDeprecated: false) {
        name
        description
        args {
          name
          description
          type { kind name ofType { kind name ofType { kind name ofType { kind name } } } }
          defaultValue
        }
        type { kind name ofType { kind name ofType { kind name ofType { kind name } } } }
      }
    }
  }
}
`

func (c *GraphQLConnector) introspect(ctx context.Context) error {
	var result struct {
		Data struct {
			Schema gqlSchema `json:"__schema"`
		} `json:"data"`
		Errors []gqlError `json:"errors"`
	}
	if err := c.post(ctx, introspectionQuery, nil, &result); err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("introspection: %s", result.Errors[0].Message)
	}
	c.setSchema(&result.Data.Schema)
	return nil
}

// Name implements Connector.
func (c *GraphQLConnector) Name() string { return "graphql" }

// Tools implements Connector.
func (c *GraphQLConnector) Tools() []tools.Tool { return c.built }

func (c *GraphQLConnector) build() {
	c.buildOperationType(c.schema.QueryType, "query")
	c.buildOperationType(c.schema.MutationType, "mutation")
}

func (c *GraphQLConnector) buildOperationType(root *gqlNamedType, opType string) {
	if root == nil {
		return
	}
	rootType, ok := c.types[root.Name]
	if !ok {
		return
	}
	for _, field := range rootType.Fields {
		if strings.HasPrefix(field.Name, "__") {
			continue
		}
		c.built = append(c.built, c.fieldTool(field, opType))
	}
}

func (c *GraphQLConnector) fieldTool(field gqlField, opType string) tools.Tool {
	name := field.Name
	if c.prefix != "" {
		name = c.prefix + "_" + name
	}
	desc := field.Description
	if desc == "" {
		desc = fmt.Sprintf("GraphQL %s %s", opType, field.Name)
	}

	properties := map[string]any{}
	var required []string
	for _, arg := range field.Args {
		schema := typeRefJSONSchema(arg.Type)
		if arg.Description != "" {
			schema["description"] = arg.Description
		}
		properties[arg.Name] = schema
		if arg.Type.Kind == "NON_NULL" && arg.DefaultValue == nil {
			required = append(required, arg.Name)
		}
	}

	handler := func(ctx context.Context, args map[string]any) (any, error) {
		return c.execute(ctx, field, opType, args)
	}
	return tools.New(tools.NewDefinition(name, desc, properties, required...), handler)
}

// execute builds and runs one operation. Only declared arguments are
// forwarded, in declaration order, as typed variables.
func (c *GraphQLConnector) execute(ctx context.Context, field gqlField, opType string, args map[string]any) (any, error) {
	var decls, passes []string
	variables := map[string]any{}
	for _, arg := range field.Args {
		value, ok := args[arg.Name]
		if !ok {
			continue
		}
		decls = append(decls, fmt.Sprintf("$%s: %s", arg.Name, typeRefString(arg.Type)))
		passes = append(passes, fmt.Sprintf("%s: $%s", arg.Name, arg.Name))
		variables[arg.Name] = value
	}

	var q strings.Builder
	q.WriteString(opType)
	if len(decls) > 0 {
		q.WriteString("(" + strings.Join(decls, ", ") + ")")
	}
	q.WriteString(" { " + field.Name)
	if len(passes) > 0 {
		q.WriteString("(" + strings.Join(passes, ", ") + ")")
	}
	if sel := c.selection(field.Type); sel != "" {
		q.WriteString(" " + sel)
	}
	q.WriteString(" }")

	var result struct {
		Data   map[string]any `json:"data"`
		Errors []gqlError     `json:"errors"`
	}
	if err := c.post(ctx, q.String(), variables, &result); err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", result.Errors[0].Message)
	}
	if value, ok := result.Data[field.Name]; ok {
		return value, nil
	}
	return result.Data, nil
}

// selection derives the selection set for a field's return type. Scalar
// and enum results need none; object results select their scalar fields
// one level deep.
func (c *GraphQLConnector) selection(ref gqlTypeRef) string {
	named := unwrapTypeRef(ref)
	if named.Kind == "SCALAR" || named.Kind == "ENUM" {
		return ""
	}
	t, ok := c.types[named.Name]
	if !ok {
		return "{ __typename }"
	}
	var fields []string
	for _, f := range t.Fields {
		inner := unwrapTypeRef(f.Type)
		if (inner.Kind == "SCALAR" || inner.Kind == "ENUM") && len(f.Args) == 0 {
			fields = append(fields, f.Name)
		}
	}
	if len(fields) == 0 {
		return "{ __typename }"
	}
	return "{ " + strings.Join(fields, " ") + " }"
}

type gqlError struct {
	Message string `json:"message"`
}

// post sends one GraphQL request and decodes the response into out.
func (c *GraphQLConnector) post(ctx context.Context, query string, variables map[string]any, out any) error {
	payload := map[string]any{"query": query}
	if len(variables) > 0 {
		payload["variables"] = variables
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("graphql endpoint returned status %d: %s", resp.StatusCode, truncateBody(raw))
	}
	return json.Unmarshal(raw, out)
}

// typeRefString renders a type reference in GraphQL syntax, e.g.
// "[Int!]!".
func typeRefString(ref gqlTypeRef) string {
	switch ref.Kind {
	case "NON_NULL":
		if ref.OfType != nil {
			return typeRefString(*ref.OfType) + "!"
		}
		return "String!"
	case "LIST":
		if ref.OfType != nil {
			return "[" + typeRefString(*ref.OfType) + "]"
		}
		return "[String]"
	default:
		if ref.Name != "" {
			return ref.Name
		}
		return "String"
	}
}

// unwrapTypeRef strips NON_NULL and LIST wrappers down to the named type.
func unwrapTypeRef(ref gqlTypeRef) gqlTypeRef {
	for ref.OfType != nil && (ref.Kind == "NON_NULL" || ref.Kind == "LIST") {
		ref = *ref.OfType
	}
	return ref
}

func typeRefJSONSchema(ref gqlTypeRef) map[string]any {
	switch ref.Kind {
	case "NON_NULL":
		if ref.OfType != nil {
			return typeRefJSONSchema(*ref.OfType)
		}
		return map[string]any{"type": "string"}
	case "LIST":
		items := map[string]any{"type": "string"}
		if ref.OfType != nil {
			items = typeRefJSONSchema(*ref.OfType)
		}
		return map[string]any{"type": "array", "items": items}
	case "SCALAR":
		switch ref.Name {
		case "Int":
			return map[string]any{"type": "integer"}
		case "Float":
			return map[string]any{"type": "number"}
		case "Boolean":
			return map[string]any{"type": "boolean"}
		default:
			return map[string]any{"type": "string"}
		}
	case "ENUM":
		return map[string]any{"type": "string"}
	case "INPUT_OBJECT":
		return map[string]any{"type": "object"}
	default:
		return map[string]any{"type": "string"}
	}
}
