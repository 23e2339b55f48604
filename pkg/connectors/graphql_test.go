package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

// userSchemaIntrospection is a stored introspection response for a small
// user service: three queries, one mutation, one object type.
const userSchemaIntrospection = `{
  "data": {
    "__schema": {
      "queryType": {"name": "Query"},
      "mutationType": {"name": "Mutation"},
      "types": [
        {
          "kind": "OBJECT",
          "name": "Query",
          "fields": [
            {
              "name": "user",
              "description": "Look up a user by ID",
              "args": [
                {"name": "id", "type": {"kind": "NON_NULL", "ofType": {"kind": "SCALAR", "name": "ID"}}}
              ],
              "type": {"kind": "OBJECT", "name": "User"}
            },
            {
              "name": "users",
              "args": [
                {"name": "limit", "type": {"kind": "SCALAR", "name": "Int"}}
              ],
              "type": {"kind": "LIST", "ofType": {"kind": "OBJECT", "name": "User"}}
            },
            {
              "name": "version",
              "args": [],
              "type": {"kind": "NON_NULL", "ofType": {"kind": "SCALAR", "name": "String"}}
            }
          ]
        },
        {
          "kind": "OBJECT",
          "name": "Mutation",
          "fields": [
            {
              "name": "createUser",
              "args": [
                {"name": "name", "type": {"kind": "NON_NULL", "ofType": {"kind": "SCALAR", "name": "String"}}},
                {"name": "email", "type": {"kind": "NON_NULL", "ofType": {"kind": "SCALAR", "name": "String"}}},
                {"name": "role", "type": {"kind": "ENUM", "name": "Role"}, "defaultValue": "MEMBER"}
              ],
              "type": {"kind": "OBJECT", "name": "User"}
            }
          ]
        },
        {
          "kind": "OBJECT",
          "name": "User",
          "fields": [
            {"name": "id", "args": [], "type": {"kind": "NON_NULL", "ofType": {"kind": "SCALAR", "name": "ID"}}},
            {"name": "name", "args": [], "type": {"kind": "SCALAR", "name": "String"}},
            {"name": "email", "args": [], "type": {"kind": "SCALAR", "name": "String"}},
            {"name": "friends", "args": [], "type": {"kind": "LIST", "ofType": {"kind": "OBJECT", "name": "User"}}},
            {"name": "avatar", "args": [{"name": "size", "type": {"kind": "SCALAR", "name": "Int"}}], "type": {"kind": "SCALAR", "name": "String"}}
          ]
        }
      ]
    }
  }
}`

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// gqlServer records requests and replies with canned responses keyed by
// the root field name.
func gqlServer(t *testing.T, responses map[string]string) (*httptest.Server, *[]gqlRequest) {
	t.Helper()
	var requests []gqlRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		requests = append(requests, req)
		for field, response := range responses {
			if strings.Contains(req.Query, field) {
				w.Write([]byte(response))
				return
			}
		}
		w.Write([]byte(`{"data": {}}`))
	}))
	return server, &requests
}

func TestGraphQLFromIntrospection(t *testing.T) {
	conn, err := GraphQLFromIntrospection("https://gql.example.com", []byte(userSchemaIntrospection))
	if err != nil {
		t.Fatalf("GraphQLFromIntrospection: %v", err)
	}
	if conn.Name() != "graphql" {
		t.Fatalf("Name() = %q", conn.Name())
	}
	if len(conn.Tools()) != 4 {
		t.Fatalf("expected 4 tools, got %v", toolNames(conn))
	}
	for _, name := range []string{"user", "users", "version", "createUser"} {
		findTool(t, conn, name)
	}
}

func TestGraphQLToolSchemas(t *testing.T) {
	conn, err := GraphQLFromIntrospection("https://gql.example.com", []byte(userSchemaIntrospection))
	if err != nil {
		t.Fatalf("GraphQLFromIntrospection: %v", err)
	}

	user := findTool(t, conn, "user").Definition()
	if len(user.InputSchema.Required) != 1 || user.InputSchema.Required[0] != "id" {
		t.Fatalf("user required = %v", user.InputSchema.Required)
	}

	users := findTool(t, conn, "users").Definition()
	if len(users.InputSchema.Required) != 0 {
		t.Fatalf("users required = %v", users.InputSchema.Required)
	}
	limit, _ := users.InputSchema.Properties["limit"].(map[string]any)
	if limit["type"] != "integer" {
		t.Fatalf("limit schema = %v", limit)
	}

	// role has a default value, so NON_NULL does not apply and it stays
	// optional.
	create := findTool(t, conn, "createUser").Definition()
	required := map[string]bool{}
	for _, name := range create.InputSchema.Required {
		required[name] = true
	}
	if !required["name"] || !required["email"] || required["role"] {
		t.Fatalf("createUser required = %v", create.InputSchema.Required)
	}
}

func TestGraphQLQueryUsesVariables(t *testing.T) {
	server, requests := gqlServer(t, map[string]string{
		"user": `{"data": {"user": {"id": "42", "name": "Alice", "email": "alice@example.com"}}}`,
	})
	defer server.Close()

	conn, err := GraphQLFromIntrospection(server.URL, []byte(userSchemaIntrospection))
	if err != nil {
		t.Fatalf("GraphQLFromIntrospection: %v", err)
	}

	result, err := findTool(t, conn, "user").Execute(context.Background(), map[string]any{"id": "42"})
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if len(*requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*requests))
	}

	req := (*requests)[0]
	want := "query($id: ID!) { user(id: $id) { id name email } }"
	if req.Query != want {
		t.Fatalf("query = %q, want %q", req.Query, want)
	}
	if req.Variables["id"] != "42" {
		t.Fatalf("variables = %v", req.Variables)
	}

	user, ok := result.(map[string]any)
	if !ok || user["name"] != "Alice" {
		t.Fatalf("result = %#v", result)
	}
}

func TestGraphQLScalarResultNoSelection(t *testing.T) {
	server, requests := gqlServer(t, map[string]string{
		"version": `{"data": {"version": "1.0.0"}}`,
	})
	defer server.Close()

	conn, err := GraphQLFromIntrospection(server.URL, []byte(userSchemaIntrospection))
	if err != nil {
		t.Fatalf("GraphQLFromIntrospection: %v", err)
	}

	result, err := findTool(t, conn, "version").Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if got := (*requests)[0].Query; got != "query { version }" {
		t.Fatalf("query = %q", got)
	}
	if result != "1.0.0" {
		t.Fatalf("result = %#v", result)
	}
}

func TestGraphQLMutation(t *testing.T) {
	server, requests := gqlServer(t, map[string]string{
		"createUser": `{"data": {"createUser": {"id": "7", "name": "Bob"}}}`,
	})
	defer server.Close()

	conn, err := GraphQLFromIntrospection(server.URL, []byte(userSchemaIntrospection))
	if err != nil {
		t.Fatalf("GraphQLFromIntrospection: %v", err)
	}

	result, err := findTool(t, conn, "createUser").Execute(context.Background(), map[string]any{
		"name":  "Bob",
		"email": "bob@example.com",
	})
	if err != nil {
		t.Fatalf("createUser: %v", err)
	}

	req := (*requests)[0]
	if !strings.HasPrefix(req.Query, "mutation($name: String!, $email: String!)") {
		t.Fatalf("query = %q", req.Query)
	}
	if req.Variables["name"] != "Bob" || req.Variables["email"] != "bob@example.com" {
		t.Fatalf("variables = %v", req.Variables)
	}
	created, ok := result.(map[string]any)
	if !ok || created["id"] != "7" {
		t.Fatalf("result = %#v", result)
	}
}

func TestGraphQLErrorResponse(t *testing.T) {
	server, _ := gqlServer(t, map[string]string{
		"user": `{"errors": [{"message": "user not found"}]}`,
	})
	defer server.Close()

	conn, err := GraphQLFromIntrospection(server.URL, []byte(userSchemaIntrospection))
	if err != nil {
		t.Fatalf("GraphQLFromIntrospection: %v", err)
	}
	_, err = findTool(t, conn, "user").Execute(context.Background(), map[string]any{"id": "42"})
	if err == nil || !strings.Contains(err.Error(), "user not found") {
		t.Fatalf("error = %v", err)
	}
}

func TestGraphQLLiveIntrospection(t *testing.T) {
	var sawIntrospection bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		json.NewDecoder(r.Body).Decode(&req)
		if strings.Contains(req.Query, "__schema") {
			sawIntrospection = true
			w.Write([]byte(userSchemaIntrospection))
			return
		}
		w.Write([]byte(`{"data": {}}`))
	}))
	defer server.Close()

	conn, err := NewGraphQL(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("NewGraphQL: %v", err)
	}
	if !sawIntrospection {
		t.Fatal("endpoint was not introspected")
	}
	if len(conn.Tools()) != 4 {
		t.Fatalf("expected 4 tools, got %v", toolNames(conn))
	}
}

func TestGraphQLIntrospectionShapes(t *testing.T) {
	full := []byte(userSchemaIntrospection)

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(full, &envelope); err != nil {
		t.Fatal(err)
	}
	dataOnly := envelope.Data

	var inner struct {
		Schema json.RawMessage `json:"__schema"`
	}
	if err := json.Unmarshal(dataOnly, &inner); err != nil {
		t.Fatal(err)
	}
	bare := inner.Schema

	for name, data := range map[string][]byte{
		"full response": full,
		"data object":   dataOnly,
		"bare schema":   bare,
	} {
		conn, err := GraphQLFromIntrospection("https://gql.example.com", data)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if len(conn.Tools()) != 4 {
			t.Errorf("%s: expected 4 tools, got %v", name, toolNames(conn))
		}
	}

	if _, err := GraphQLFromIntrospection("https://gql.example.com", []byte(`{"data": {}}`)); !errors.HasCode(err, errors.CodeValidation) {
		t.Errorf("expected validation error for empty data, got %v", err)
	}
}

func TestGraphQLPrefix(t *testing.T) {
	conn, err := GraphQLFromIntrospection("https://gql.example.com", []byte(userSchemaIntrospection),
		WithGraphQLPrefix("crm"))
	if err != nil {
		t.Fatalf("GraphQLFromIntrospection: %v", err)
	}
	findTool(t, conn, "crm_user")
	findTool(t, conn, "crm_createUser")
}
