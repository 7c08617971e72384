package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"go.brokerconsole.dev/internal/broker"
)

// SchemaClient is the part of the broker client used for schemas
type SchemaClient interface {
	CreateSchema(ctx context.Context, req broker.CreateSchemaRequest) (json.RawMessage, error)
	ValidateSchema(ctx context.Context, req broker.ValidateSchemaRequest) (*broker.ValidateSchemaResult, error)
}

// SchemaTemplate describes a schema type the broker understands and a
// starting body for it
type SchemaTemplate struct {
	Type     string `json:"type"`
	Label    string `json:"label"`
	Language string `json:"language"`
	Enabled  bool   `json:"enabled"`
	Example  string `json:"example"`
}

// Only protobuf is enabled in the broker today.
var schemaTemplates = []SchemaTemplate{
	{
		Type:     "protobuf",
		Label:    "Protobuf",
		Language: "proto",
		Enabled:  true,
		Example: `syntax = "proto3";
message Test {
    string field1 = 1;
    string field2 = 2;
    int32 field3 = 3;
}`,
	},
	{
		Type:     "avro",
		Label:    "Avro",
		Language: "json",
		Example: `{
    "type": "record",
    "namespace": "com.example",
    "name": "test-schema",
    "fields": [
        { "name": "username", "type": "string", "default": "-2" },
        { "name": "age", "type": "int", "default": "none" },
        { "name": "phone", "type": "int", "default": "NONE" },
        { "name": "country", "type": "string", "default": "NONE" }
    ]
}`,
	},
	{
		Type:     "json",
		Label:    "Json",
		Language: "json",
		Example: `{
    "$schema": "https://json-schema.org/draft/2020-12/schema",
    "type": "object",
    "properties": {
        "field1": { "type": "string" },
        "field2": { "type": "integer" }
    },
    "required": ["field1"]
}`,
	},
}

func schemaTemplate(schemaType string) (SchemaTemplate, bool) {
	for _, t := range schemaTemplates {
		if t.Type == schemaType {
			return t, true
		}
	}
	return SchemaTemplate{}, false
}

// SchemasHandler creates and validates schemas through the broker
type SchemasHandler struct {
	client SchemaClient
}

// NewSchemasHandler creates a schemas handler
func NewSchemasHandler(client SchemaClient) *SchemasHandler {
	return &SchemasHandler{client: client}
}

// RegisterRoutes registers schema routes
func (h *SchemasHandler) RegisterRoutes(r chi.Router) {
	r.Route("/schemas", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/templates", h.Templates)
		r.Post("/validate", h.Validate)
	})
}

type createSchemaRequest struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	SchemaContent string   `json:"schema_content"`
	Tags          []string `json:"tags"`
}

type validateSchemaRequest struct {
	SchemaType    string `json:"schema_type"`
	SchemaContent string `json:"schema_content"`
}

// Templates lists the schema types and their example bodies
func (h *SchemasHandler) Templates(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, schemaTemplates)
}

// Create registers a schema with the broker
func (h *SchemasHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSchemaRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, "Invalid request body: "+err.Error())
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		WriteBadRequest(w, "name is required")
		return
	}
	schemaType, ok := normalizeSchemaType(req.Type)
	if !ok {
		WriteBadRequest(w, "type must be protobuf, avro or json")
		return
	}
	if strings.TrimSpace(req.SchemaContent) == "" {
		WriteBadRequest(w, "schema_content is required")
		return
	}

	created, err := h.client.CreateSchema(r.Context(), broker.CreateSchemaRequest{
		Name:          req.Name,
		Type:          schemaType,
		SchemaContent: req.SchemaContent,
		Tags:          req.Tags,
	})
	if err != nil {
		WriteBrokerError(w, "create schema", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if len(created) == 0 {
		created = json.RawMessage("{}")
	}
	w.Write(created)
}

// Validate asks the broker to compile a schema. An empty body validates
// the type's example.
func (h *SchemasHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateSchemaRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, "Invalid request body: "+err.Error())
		return
	}

	schemaType, ok := normalizeSchemaType(req.SchemaType)
	if !ok {
		WriteBadRequest(w, "schema_type must be protobuf, avro or json")
		return
	}
	content := req.SchemaContent
	if strings.TrimSpace(content) == "" {
		tmpl, _ := schemaTemplate(schemaType)
		content = tmpl.Example
	}

	result, err := h.client.ValidateSchema(r.Context(), broker.ValidateSchemaRequest{
		SchemaType:    schemaType,
		SchemaContent: content,
	})
	if err != nil {
		WriteBrokerError(w, "validate schema", err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func normalizeSchemaType(t string) (string, bool) {
	t = strings.ToLower(strings.TrimSpace(t))
	_, ok := schemaTemplate(t)
	return t, ok
}
