package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/serandules/throttle/pkg/middleware"
	"github.com/serandules/throttle/pkg/throttle"
	"github.com/serandules/throttle/pkg/throttle/store"
	"github.com/serandules/throttle/pkg/throttle/tierstore"
)

func newCheckHandler(t *testing.T) *checkHandler {
	t.Helper()

	now := time.Date(2030, time.June, 15, 12, 30, 30, 0, time.UTC)
	engine := throttle.NewEngine(throttle.Config{
		Store: store.NewMemory(),
		IPLimits: throttle.IPLimits{
			throttle.ActionFind: throttle.Limits{throttle.Second: 1},
		},
		Now: func() time.Time { return now },
	})

	free := &throttle.Tier{
		Name: "free",
		Limits: throttle.ResourceLimits{
			"apis": throttle.ActionLimits{
				throttle.ActionCreate: throttle.Limits{throttle.Second: 2},
			},
		},
	}
	source := tierstore.NewStatic(map[string]*throttle.Tier{"free": free})

	return &checkHandler{
		engine:   engine,
		resolver: throttle.NewResolver(source, "free"),
		source:   source,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func doCheck(t *testing.T, h *checkHandler, req checkRequest) (*httptest.ResponseRecorder, checkResponse) {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/check", bytes.NewReader(body)))

	var resp checkResponse
	if rec.Code == http.StatusOK || rec.Code == http.StatusTooManyRequests {
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
	}
	return rec, resp
}

func TestCheckHandler_TokenScope(t *testing.T) {
	h := newCheckHandler(t)
	req := checkRequest{
		Scope:    "token",
		TokenID:  "u1",
		Tier:     "free",
		Resource: "apis",
		Action:   "create",
	}

	for i := 1; i <= 2; i++ {
		rec, resp := doCheck(t, h, req)
		if rec.Code != http.StatusOK || !resp.Allowed {
			t.Fatalf("call %d: status %d allowed %v", i, rec.Code, resp.Allowed)
		}
	}

	rec, resp := doCheck(t, h, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("call 3: status %d, want 429", rec.Code)
	}
	if resp.Window != "second" || resp.Limit != 2 || resp.Count != 3 {
		t.Errorf("response = %+v", resp)
	}
	if got := rec.Header().Get(middleware.HeaderWindow); got != "second" {
		t.Errorf("window header = %q", got)
	}
}

func TestCheckHandler_AnonymousDefaultsToFreeTier(t *testing.T) {
	h := newCheckHandler(t)
	req := checkRequest{Scope: "token", Resource: "apis", Action: "create"}

	for i := 1; i <= 2; i++ {
		if rec, _ := doCheck(t, h, req); rec.Code != http.StatusOK {
			t.Fatalf("call %d: status %d", i, rec.Code)
		}
	}
	if rec, _ := doCheck(t, h, req); rec.Code != http.StatusTooManyRequests {
		t.Errorf("anonymous callers must share the default tier quota, got %d", rec.Code)
	}
}

func TestCheckHandler_IPScope(t *testing.T) {
	h := newCheckHandler(t)
	req := checkRequest{Scope: "ip", IP: "203.0.113.5", Action: "find"}

	if rec, _ := doCheck(t, h, req); rec.Code != http.StatusOK {
		t.Fatalf("first call: status %d", rec.Code)
	}
	rec, resp := doCheck(t, h, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second call: status %d, want 429", rec.Code)
	}
	if resp.Window != "second" {
		t.Errorf("window = %q", resp.Window)
	}
}

func TestCheckHandler_BadRequests(t *testing.T) {
	h := newCheckHandler(t)

	tests := []struct {
		name string
		req  checkRequest
	}{
		{"missing action", checkRequest{Scope: "ip", IP: "203.0.113.5"}},
		{"unknown scope", checkRequest{Scope: "global", Action: "find"}},
		{"ip scope without ip", checkRequest{Scope: "ip", Action: "find"}},
		{"token scope without resource", checkRequest{Scope: "token", Action: "create"}},
		{"unknown tier", checkRequest{Scope: "token", Tier: "platinum", Resource: "apis", Action: "create"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := doCheck(t, h, tc.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status %d, want 400", rec.Code)
			}
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/check", bytes.NewReader([]byte("{"))))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status %d, want 400", rec.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/check", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status %d, want 405", rec.Code)
		}
	})
}
