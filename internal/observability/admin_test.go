package observability

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/cdrbridge/internal/auth"
	"github.com/danmuck/cdrbridge/internal/protocol/schema"
	"github.com/danmuck/cdrbridge/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

func newTestAdmin(t *testing.T) *AdminServer {
	t.Helper()
	return NewAdminServer("node-test", schema.Default(), zerolog.Nop())
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAdminHealth(t *testing.T) {
	testlog.Start(t)
	a := newTestAdmin(t)
	rec := get(t, a.Handler(), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status got=%d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["node"] != "node-test" {
		t.Fatalf("body got=%v", body)
	}
}

func TestAdminMetricsExposesNamespace(t *testing.T) {
	testlog.Start(t)
	a := newTestAdmin(t)
	_ = get(t, a.Handler(), "/health")
	rec := get(t, a.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status got=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cdrbridge_http_requests_total") {
		t.Fatalf("metrics output missing http counter")
	}
}

func TestAdminSchemasListsBuiltins(t *testing.T) {
	testlog.Start(t)
	a := newTestAdmin(t)
	rec := get(t, a.Handler(), "/schemas")
	if rec.Code != http.StatusOK {
		t.Fatalf("status got=%d", rec.Code)
	}
	var body struct {
		Schemas  []SchemaInfo  `json:"schemas"`
		Services []ServiceInfo `json:"services"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var twist *SchemaInfo
	for i := range body.Schemas {
		if body.Schemas[i].Name == schema.NameTwist {
			twist = &body.Schemas[i]
		}
	}
	if twist == nil || len(twist.Fields) != 2 || twist.Fields[0].Name != "linear" {
		t.Fatalf("twist schema got=%+v", twist)
	}
	if len(body.Services) != 1 || body.Services[0].Request != schema.NameAddTwoIntsRequest {
		t.Fatalf("services got=%+v", body.Services)
	}
}

func TestAdminStatusEndpoints(t *testing.T) {
	testlog.Start(t)
	a := newTestAdmin(t)
	if rec := get(t, a.Handler(), "/status/routes"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown status got=%d", rec.Code)
	}
	a.Expose("routes", func() any { return map[string]int{"in_flight": 2} })
	rec := get(t, a.Handler(), "/status/routes")
	if rec.Code != http.StatusOK {
		t.Fatalf("status got=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"in_flight":2`) {
		t.Fatalf("body got=%s", rec.Body.String())
	}
}

func TestAdminServeStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	a := newTestAdmin(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.ServeListener(ctx, ln) }()

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get("http://" + ln.Addr().String() + "/health")
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("admin never answered: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status got=%d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

func TestAdminServeEmptyAddrDisabled(t *testing.T) {
	testlog.Start(t)
	if err := newTestAdmin(t).Serve(context.Background(), ""); err != nil {
		t.Fatalf("empty addr got=%v", err)
	}
}

func TestAdminRequireToken(t *testing.T) {
	testlog.Start(t)
	a := newTestAdmin(t)
	a.RequireToken(auth.StaticToken{Token: "s3cret"})

	if rec := get(t, a.Handler(), "/health"); rec.Code != http.StatusOK {
		t.Fatalf("health must stay open, got=%d", rec.Code)
	}
	if rec := get(t, a.Handler(), "/schemas"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("schemas without token got=%d", rec.Code)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/schemas", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("schemas with token got=%d", rec.Code)
	}
}
