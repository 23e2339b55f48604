package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

// openapiDocument is the subset of OpenAPI 3.x this connector reads.
type openapiDocument struct {
	OpenAPI string                     `json:"openapi" yaml:"openapi"`
	Info    openapiInfo                `json:"info" yaml:"info"`
	Servers []openapiServer            `json:"servers" yaml:"servers"`
	Paths   map[string]openapiPathItem `json:"paths" yaml:"paths"`
}

type openapiInfo struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Version     string `json:"version" yaml:"version"`
}

type openapiServer struct {
	URL string `json:"url" yaml:"url"`
}

type openapiPathItem struct {
	Get    *openapiOperation `json:"get" yaml:"get"`
	Post   *openapiOperation `json:"post" yaml:"post"`
	Put    *openapiOperation `json:"put" yaml:"put"`
	Delete *openapiOperation `json:"delete" yaml:"delete"`
	Patch  *openapiOperation `json:"patch" yaml:"patch"`
}

type openapiOperation struct {
	OperationID string              `json:"operationId" yaml:"operationId"`
	Summary     string              `json:"summary" yaml:"summary"`
	Description string              `json:"description" yaml:"description"`
	Parameters  []openapiParameter  `json:"parameters" yaml:"parameters"`
	RequestBody *openapiRequestBody `json:"requestBody" yaml:"requestBody"`
}

type openapiParameter struct {
	Name        string         `json:"name" yaml:"name"`
	In          string         `json:"in" yaml:"in"`
	Description string         `json:"description" yaml:"description"`
	Required    bool           `json:"required" yaml:"required"`
	Schema      *openapiSchema `json:"schema" yaml:"schema"`
}

type openapiRequestBody struct {
	Required bool                        `json:"required" yaml:"required"`
	Content  map[string]openapiMediaType `json:"content" yaml:"content"`
}

type openapiMediaType struct {
	Schema *openapiSchema `json:"schema" yaml:"schema"`
}

type openapiSchema struct {
	Type        string                    `json:"type" yaml:"type"`
	Description string                    `json:"description" yaml:"description"`
	Properties  map[string]*openapiSchema `json:"properties" yaml:"properties"`
	Items       *openapiSchema            `json:"items" yaml:"items"`
	Required    []string                  `json:"required" yaml:"required"`
	Enum        []any                     `json:"enum" yaml:"enum"`
	Default     any                       `json:"default" yaml:"default"`
}

type authKind int

const (
	authNone authKind = iota
	authAPIKey
	authBearer
	authBasic
)

type authConfig struct {
	kind   authKind
	key    string
	header string
	token  string
	user   string
	pass   string
}

// OpenAPIConnector generates one tool per operation of an OpenAPI 3.x
// document. All tools are built at construction.
type OpenAPIConnector struct {
	title   string
	baseURL string
	client  *http.Client
	auth    authConfig
	built   []tools.Tool
}

// OpenAPIOption configures an OpenAPIConnector.
type OpenAPIOption func(*OpenAPIConnector)

// WithOpenAPIBaseURL overrides the server URL from the document.
func WithOpenAPIBaseURL(baseURL string) OpenAPIOption {
	return func(c *OpenAPIConnector) { c.baseURL = baseURL }
}

// WithOpenAPIAPIKey sends the key in the named header on every call.
// An empty header defaults to X-API-Key.
func WithOpenAPIAPIKey(key, header string) OpenAPIOption {
	return func(c *OpenAPIConnector) {
		c.auth = authConfig{kind: authAPIKey, key: key, header: header}
	}
}

// WithOpenAPIBearer sends a Bearer token on every call.
func WithOpenAPIBearer(token string) OpenAPIOption {
	return func(c *OpenAPIConnector) {
		c.auth = authConfig{kind: authBearer, token: token}
	}
}

// WithOpenAPIBasicAuth sends HTTP basic credentials on every call.
func WithOpenAPIBasicAuth(user, pass string) OpenAPIOption {
	return func(c *OpenAPIConnector) {
		c.auth = authConfig{kind: authBasic, user: user, pass: pass}
	}
}

// WithOpenAPIClient sets the HTTP client used for API calls.
func WithOpenAPIClient(client *http.Client) OpenAPIOption {
	return func(c *OpenAPIConnector) { c.client = client }
}

// NewOpenAPI parses an OpenAPI 3.x document (JSON or YAML) and builds the
// connector.
func NewOpenAPI(data []byte, opts ...OpenAPIOption) (*OpenAPIConnector, error) {
	var doc openapiDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errors.New(errors.CodeValidation, "openapi document is neither valid JSON nor YAML", err)
		}
	}
	if len(doc.Paths) == 0 {
		return nil, errors.Newf(errors.CodeValidation, "openapi document declares no paths")
	}

	c := &OpenAPIConnector{
		title:  doc.Info.Title,
		client: http.DefaultClient,
	}
	if len(doc.Servers) > 0 {
		c.baseURL = doc.Servers[0].URL
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		return nil, errors.Newf(errors.CodeValidation, "openapi document has no server URL and none was supplied")
	}

	c.build(&doc)
	return c, nil
}

// OpenAPIFromFile reads the document from a file.
func OpenAPIFromFile(path string, opts ...OpenAPIOption) (*OpenAPIConnector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.CodeValidation, "read openapi document", err)
	}
	return NewOpenAPI(data, opts...)
}

// OpenAPIFromURL fetches the document over HTTP.
func OpenAPIFromURL(ctx context.Context, specURL string, opts ...OpenAPIOption) (*OpenAPIConnector, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, specURL, nil)
	if err != nil {
		return nil, errors.New(errors.CodeValidation, "fetch openapi document", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.New(errors.CodeValidation, "fetch openapi document", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.CodeValidation, "fetch openapi document: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(errors.CodeValidation, "read openapi document", err)
	}
	return NewOpenAPI(data, opts...)
}

// Name implements Connector.
func (c *OpenAPIConnector) Name() string {
	if c.title == "" {
		return "openapi"
	}
	return "openapi:" + c.title
}

// Tools implements Connector.
func (c *OpenAPIConnector) Tools() []tools.Tool { return c.built }

func (c *OpenAPIConnector) build(doc *openapiDocument) {
	for path, item := range doc.Paths {
		for method, op := range map[string]*openapiOperation{
			http.MethodGet:    item.Get,
			http.MethodPost:   item.Post,
			http.MethodPut:    item.Put,
			http.MethodDelete: item.Delete,
			http.MethodPatch:  item.Patch,
		} {
			if op != nil {
				c.built = append(c.built, c.operationTool(path, method, op))
			}
		}
	}
}

// operationTool builds one tool. Path, query, and header parameters plus
// JSON body properties all land in a flat argument object; the handler
// routes each argument back to its location.
func (c *OpenAPIConnector) operationTool(path, method string, op *openapiOperation) tools.Tool {
	name := op.OperationID
	if name == "" {
		name = strings.Trim(strings.ToLower(method)+"_"+strings.NewReplacer("/", "_", "{", "", "}", "").Replace(path), "_")
	}

	desc := firstNonEmpty(op.Summary, op.Description, method+" "+path)

	properties := map[string]any{}
	var required []string
	for _, param := range op.Parameters {
		properties[param.Name] = parameterSchema(param)
		if param.Required {
			required = append(required, param.Name)
		}
	}

	bodyProps := map[string]bool{}
	if op.RequestBody != nil {
		if content, ok := op.RequestBody.Content["application/json"]; ok && content.Schema != nil {
			if len(content.Schema.Properties) > 0 {
				for propName, propSchema := range content.Schema.Properties {
					properties[propName] = schemaMap(propSchema)
					bodyProps[propName] = true
				}
				required = append(required, content.Schema.Required...)
			} else {
				properties["body"] = schemaMap(content.Schema)
				bodyProps["body"] = true
				if op.RequestBody.Required {
					required = append(required, "body")
				}
			}
		}
	}

	params := append([]openapiParameter(nil), op.Parameters...)
	hasBody := op.RequestBody != nil
	handler := func(ctx context.Context, args map[string]any) (any, error) {
		return c.call(ctx, path, method, params, bodyProps, hasBody, args)
	}
	return tools.New(tools.NewDefinition(name, desc, properties, required...), handler)
}

// call performs one HTTP request against the API.
func (c *OpenAPIConnector) call(ctx context.Context, path, method string, params []openapiParameter, bodyProps map[string]bool, hasBody bool, args map[string]any) (any, error) {
	finalPath := path
	query := url.Values{}
	headers := http.Header{}
	claimed := map[string]bool{}

	for _, param := range params {
		value, ok := args[param.Name]
		if !ok {
			continue
		}
		claimed[param.Name] = true
		text := fmt.Sprint(value)
		switch param.In {
		case "path":
			finalPath = strings.ReplaceAll(finalPath, "{"+param.Name+"}", url.PathEscape(text))
		case "query":
			query.Set(param.Name, text)
		case "header":
			headers.Set(param.Name, text)
		}
	}

	var bodyData []byte
	if hasBody {
		if body, ok := args["body"]; ok && bodyProps["body"] {
			bodyData, _ = json.Marshal(body)
		} else {
			bodyArgs := map[string]any{}
			for key, value := range args {
				if !claimed[key] {
					bodyArgs[key] = value
				}
			}
			if len(bodyArgs) > 0 {
				bodyData, _ = json.Marshal(bodyArgs)
			}
		}
	}

	finalURL := strings.TrimRight(c.baseURL, "/") + finalPath
	if len(query) > 0 {
		finalURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if bodyData != nil {
		bodyReader = bytes.NewReader(bodyData)
	}
	req, err := http.NewRequestWithContext(ctx, method, finalURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	maps.Copy(req.Header, headers)
	if bodyData != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncateBody(respBody))
	}

	// Structured responses come back decoded so the model sees JSON, not
	// an escaped string.
	var decoded any
	if json.Unmarshal(respBody, &decoded) == nil {
		return decoded, nil
	}
	return string(respBody), nil
}

func (c *OpenAPIConnector) applyAuth(req *http.Request) {
	switch c.auth.kind {
	case authAPIKey:
		header := c.auth.header
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, c.auth.key)
	case authBearer:
		req.Header.Set("Authorization", "Bearer "+c.auth.token)
	case authBasic:
		req.SetBasicAuth(c.auth.user, c.auth.pass)
	}
}

func parameterSchema(param openapiParameter) map[string]any {
	schema := map[string]any{"type": "string"}
	put := func(key string, value any, ok bool) {
		if ok {
			schema[key] = value
		}
	}
	put("description", param.Description, param.Description != "")
	if s := param.Schema; s != nil {
		put("type", s.Type, s.Type != "")
		put("enum", s.Enum, len(s.Enum) > 0)
		put("default", s.Default, s.Default != nil)
	}
	return schema
}

func schemaMap(schema *openapiSchema) map[string]any {
	if schema == nil {
		return map[string]any{"type": "string"}
	}
	result := map[string]any{}
	put := func(key string, value any, ok bool) {
		if ok {
			result[key] = value
		}
	}
	put("type", schema.Type, schema.Type != "")
	put("description", schema.Description, schema.Description != "")
	put("enum", schema.Enum, len(schema.Enum) > 0)
	put("default", schema.Default, schema.Default != nil)
	put("required", schema.Required, len(schema.Required) > 0)
	if len(schema.Properties) > 0 {
		props := make(map[string]any, len(schema.Properties))
		for name, prop := range schema.Properties {
			props[name] = schemaMap(prop)
		}
		result["properties"] = props
	}
	if schema.Items != nil {
		result["items"] = schemaMap(schema.Items)
	}
	return result
}

func truncateBody(body []byte) string {
	const limit = 2048
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
