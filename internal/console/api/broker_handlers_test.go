package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"go.brokerconsole.dev/internal/broker"
	"go.brokerconsole.dev/internal/common/metrics"
	"go.brokerconsole.dev/internal/console/warning"
)

func testUsers() []broker.User {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []broker.User{
		{ID: 3, Username: "ingest-app", UserType: "application", CreatedAt: base.Add(3 * time.Hour)},
		{ID: 1, Username: "root", UserType: "management", CreatedAt: base},
		{ID: 2, Username: "Alice", UserType: "management", CreatedAt: base.Add(time.Hour)},
	}
}

func TestUsers_ListSortedByCreation(t *testing.T) {
	env := newTestEnv(t)
	env.broker.users = testUsers()

	rec := env.do(http.MethodGet, "/api/users/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var users []broker.User
	decode(t, rec, &users)

	want := []string{"root", "Alice", "ingest-app"}
	if len(users) != len(want) {
		t.Fatalf("Expected %d users, got %d", len(want), len(users))
	}
	for i, name := range want {
		if users[i].Username != name {
			t.Errorf("Position %d: expected %s, got %s", i, name, users[i].Username)
		}
	}
}

func TestUsers_Search(t *testing.T) {
	tests := []struct {
		search string
		want   int
	}{
		{"", 3},
		{"a", 3}, // single characters do not filter
		{"al", 1},
		{"ALICE", 1},
		{"management", 2},
		{"app", 1},
		{"nobody", 0},
	}

	for _, tt := range tests {
		t.Run("search="+tt.search, func(t *testing.T) {
			env := newTestEnv(t)
			env.broker.users = testUsers()

			rec := env.do(http.MethodGet, "/api/users?search="+tt.search, "")
			var users []broker.User
			decode(t, rec, &users)
			if len(users) != tt.want {
				t.Errorf("Expected %d users, got %d", tt.want, len(users))
			}
		})
	}
}

func TestUsers_Create(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"management", `{"username":"bob","password":"s3cret","user_type":"management"}`, http.StatusCreated},
		{"application upper case", `{"username":"svc","user_type":"Application"}`, http.StatusCreated},
		{"missing username", `{"user_type":"management"}`, http.StatusBadRequest},
		{"bad type", `{"username":"bob","user_type":"root"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(http.MethodPost, "/api/users/", tt.body)
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUsers_CreateNormalizesType(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodPost, "/api/users/", `{"username":" svc ","user_type":"Application"}`)

	if len(env.broker.created) != 1 {
		t.Fatalf("Expected 1 create call, got %d", len(env.broker.created))
	}
	got := env.broker.created[0]
	if got.Username != "svc" || got.UserType != UserTypeApplication {
		t.Errorf("Expected svc/application, got %s/%s", got.Username, got.UserType)
	}
}

func TestUsers_Remove(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodDelete, "/api/users/alice", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	if len(env.broker.removed) != 1 || env.broker.removed[0] != "alice" {
		t.Errorf("Expected alice removed, got %v", env.broker.removed)
	}
}

func TestBrokerErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &broker.APIError{StatusCode: 555, Message: "syntax error"}, http.StatusUnprocessableEntity},
		{"conflict", &broker.APIError{StatusCode: http.StatusConflict, Message: "exists"}, http.StatusUnprocessableEntity},
		{"not found", &broker.APIError{StatusCode: http.StatusNotFound}, http.StatusNotFound},
		{"unauthorized", &broker.APIError{StatusCode: http.StatusUnauthorized}, http.StatusBadGateway},
		{"unavailable", fmt.Errorf("%w: circuit breaker open", broker.ErrUnavailable), http.StatusServiceUnavailable},
		{"other", fmt.Errorf("decode: unexpected EOF"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.broker.err = tt.err
			rec := env.do(http.MethodGet, "/api/users/", "")
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestBrokerErrorMapping_PassesValidationMessage(t *testing.T) {
	env := newTestEnv(t)
	env.broker.err = &broker.APIError{StatusCode: 555, Message: "line 2: expected ';'"}

	rec := env.do(http.MethodPost, "/api/schemas/validate", `{"schema_type":"protobuf","schema_content":"message {"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d", rec.Code)
	}
	var resp ErrorResponse
	decode(t, rec, &resp)
	if resp.Message != "line 2: expected ';'" {
		t.Errorf("Expected broker message, got %q", resp.Message)
	}
}

func TestSchemas_Templates(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/schemas/templates", "")
	var templates []SchemaTemplate
	decode(t, rec, &templates)

	if len(templates) != 3 {
		t.Fatalf("Expected 3 templates, got %d", len(templates))
	}
	if templates[0].Type != "protobuf" || !templates[0].Enabled {
		t.Errorf("Expected protobuf enabled first, got %+v", templates[0])
	}
	for _, tmpl := range templates {
		if tmpl.Example == "" {
			t.Errorf("Expected example for %s", tmpl.Type)
		}
	}
}

func TestSchemas_Create(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"protobuf", `{"name":"orders","type":"Protobuf","schema_content":"syntax = \"proto3\";"}`, http.StatusCreated},
		{"with tags", `{"name":"orders","type":"avro","schema_content":"{}","tags":["prod"]}`, http.StatusCreated},
		{"missing name", `{"type":"json","schema_content":"{}"}`, http.StatusBadRequest},
		{"bad type", `{"name":"orders","type":"xml","schema_content":"<a/>"}`, http.StatusBadRequest},
		{"missing content", `{"name":"orders","type":"json","schema_content":"  "}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(http.MethodPost, "/api/schemas/", tt.body)
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSchemas_CreateForwardsLowercaseType(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/schemas/", `{"name":"orders","type":"Protobuf","schema_content":"x"}`)

	var body map[string]string
	decode(t, rec, &body)
	if body["name"] != "orders" {
		t.Errorf("Expected broker response passed through, got %v", body)
	}
	if env.broker.schemas[0].Type != "protobuf" {
		t.Errorf("Expected type protobuf, got %s", env.broker.schemas[0].Type)
	}
}

func TestSchemas_ValidateEmptyUsesExample(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/schemas/validate", `{"schema_type":"Protobuf"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var result broker.ValidateSchemaResult
	decode(t, rec, &result)
	if !result.IsValid {
		t.Error("Expected valid result")
	}

	tmpl, _ := schemaTemplate("protobuf")
	if env.broker.validated[0].SchemaContent != tmpl.Example {
		t.Error("Expected the protobuf example to be validated")
	}
}

func TestParseSupportSeverity(t *testing.T) {
	tests := []struct {
		label string
		want  string
		ok    bool
	}{
		{"Critical (Cannot produce or consume data)", "critical", true},
		{"High (Critical capabilities are not functioning)", "high", true},
		{"Medium (I can't get something to work)", "medium", true},
		{"Low / Question", "low", true},
		{"", "critical", true},
		{"urgent", "urgent", false},
	}

	for _, tt := range tests {
		got, ok := ParseSupportSeverity(tt.label)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseSupportSeverity(%q) = %s, %v; expected %s, %v", tt.label, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSupport_Send(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/support", `{"severity":"High (Critical capabilities are not functioning)","details":"consumers stuck"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp supportResponse
	decode(t, rec, &resp)
	if resp.RequestID == "" || resp.Severity != "high" {
		t.Errorf("Expected request id and severity high, got %+v", resp)
	}
	if len(env.broker.support) != 1 || env.broker.support[0].Details != "consumers stuck" {
		t.Errorf("Expected forwarded request, got %v", env.broker.support)
	}
}

func TestSupport_Validation(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{
		`{"severity":"urgent","details":"x"}`,
		`{"severity":"Low / Question","details":"   "}`,
	} {
		rec := env.do(http.MethodPost, "/api/support", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %s, got %d", body, rec.Code)
		}
	}
	if len(env.broker.support) != 0 {
		t.Errorf("Expected nothing forwarded, got %d", len(env.broker.support))
	}
}

func TestSupport_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	before := testutil.ToFloat64(metrics.SupportRateLimited)

	body := `{"details":"help"}`
	for i := 0; i < 2; i++ {
		if rec := env.do(http.MethodPost, "/api/support", body); rec.Code != http.StatusAccepted {
			t.Fatalf("Request %d: expected 202, got %d", i, rec.Code)
		}
	}

	rec := env.do(http.MethodPost, "/api/support", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rec.Code)
	}
	if secs, err := strconv.Atoi(rec.Header().Get("Retry-After")); err != nil || secs < 1 {
		t.Errorf("Expected positive Retry-After, got %q", rec.Header().Get("Retry-After"))
	}
	if got := testutil.ToFloat64(metrics.SupportRateLimited) - before; got != 1 {
		t.Errorf("Expected rate limited counter +1, got %v", got)
	}
}

func TestSupport_FailureRaisesWarning(t *testing.T) {
	env := newTestEnv(t)
	env.broker.err = fmt.Errorf("%w: connection refused", broker.ErrUnavailable)

	rec := env.do(http.MethodPost, "/api/support", `{"details":"help"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", rec.Code)
	}
	warnings := env.warnings.List(warning.Filter{Category: warning.CategorySupport})
	if len(warnings) != 1 {
		t.Errorf("Expected 1 SUPPORT warning, got %d", len(warnings))
	}
}

func TestOverview(t *testing.T) {
	env := newTestEnv(t)
	env.broker.overview = &broker.Overview{
		TotalStations: 4,
		TotalMessages: 1200,
		K8sEnv:        true,
		SystemComponents: []broker.SystemComponent{
			{Name: "broker", DesiredPods: 2, ActualPods: 2, Components: []broker.Container{
				{Name: "broker-0", Healthy: true},
				{Name: "broker-1", Healthy: false},
			}},
			{Name: "metadata", DesiredPods: 1, ActualPods: 1, Components: []broker.Container{
				{Name: "mongo-0", Healthy: true},
			}},
		},
	}

	rec := env.do(http.MethodGet, "/api/overview/", "")
	var summary overviewSummary
	decode(t, rec, &summary)
	if summary.Components != 2 || summary.HealthyPods != 2 || summary.DesiredPods != 3 {
		t.Errorf("Unexpected summary %+v", summary)
	}

	rec = env.do(http.MethodGet, "/api/overview/components", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var raw map[string]json.RawMessage
	decode(t, rec, &raw)
	var components []broker.SystemComponent
	json.Unmarshal(raw["system_components"], &components)
	if len(components) != 2 || len(components[0].Components) != 2 {
		t.Errorf("Expected component tree, got %v", components)
	}
	if string(raw["k8s_env"]) != "true" {
		t.Errorf("Expected k8s_env true, got %s", raw["k8s_env"])
	}
}

func TestOverview_EmptyComponents(t *testing.T) {
	env := newTestEnv(t)
	env.broker.overview = &broker.Overview{}

	rec := env.do(http.MethodGet, "/api/overview/components", "")
	var raw map[string]json.RawMessage
	decode(t, rec, &raw)
	if string(raw["system_components"]) != "[]" {
		t.Errorf("Expected empty array, got %s", raw["system_components"])
	}
}
