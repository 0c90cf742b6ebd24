package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/serandules/throttle/pkg/middleware"
	"github.com/serandules/throttle/pkg/throttle"
)

// checkRequest is the admission API request body.
type checkRequest struct {
	// Scope selects the enforcement scope: "token" or "ip".
	Scope string `json:"scope"`

	// TokenID is the authenticated token id (token scope). Empty means an
	// unauthenticated caller: the default tier applies under the shared
	// anonymous scope.
	TokenID string `json:"token_id,omitempty"`

	// Tier names the caller's quota tier (token scope). Empty falls back to
	// the default tier.
	Tier string `json:"tier,omitempty"`

	// Resource is the resource name being accessed (token scope).
	Resource string `json:"resource,omitempty"`

	// IP is the client address (ip scope).
	IP string `json:"ip,omitempty"`

	// Action is the classified action: find, create, update, or remove.
	Action string `json:"action"`
}

// checkResponse is the admission API response body.
type checkResponse struct {
	Allowed bool   `json:"allowed"`
	Window  string `json:"window,omitempty"`
	Limit   int64  `json:"limit,omitempty"`
	Count   int64  `json:"count,omitempty"`
}

// checkHandler serves POST /v1/check: one enforcement pass per call.
type checkHandler struct {
	engine   *throttle.Engine
	resolver *throttle.Resolver
	source   throttle.TierSource
	logger   *slog.Logger
}

func (h *checkHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.clientError(w, "invalid request body")
		return
	}

	action := throttle.Action(req.Action)
	if action == "" {
		h.clientError(w, "action is required")
		return
	}

	var dec throttle.Decision
	var err error
	switch req.Scope {
	case "ip":
		if req.IP == "" {
			h.clientError(w, "ip is required for ip scope")
			return
		}
		dec, err = h.engine.CheckIP(r.Context(), req.IP, action)

	case "token":
		if req.Resource == "" {
			h.clientError(w, "resource is required for token scope")
			return
		}
		var tier *throttle.Tier
		var id string
		if req.Tier != "" {
			tier, err = h.source.Lookup(r.Context(), req.Tier)
			id = req.TokenID
			if id == "" {
				id = throttle.AnonymousID
			}
		} else {
			tier, id, err = h.resolver.Resolve(r.Context(), nil)
		}
		if errors.Is(err, throttle.ErrTierNotFound) {
			h.clientError(w, "unknown tier")
			return
		}
		if err == nil {
			dec, err = h.engine.CheckToken(r.Context(), tier, id, req.Resource, action)
		}

	default:
		h.clientError(w, `scope must be "token" or "ip"`)
		return
	}

	if err != nil {
		h.logger.Error("admission check failed",
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"scope", req.Scope,
			"error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := checkResponse{Allowed: dec.Allowed}
	status := http.StatusOK
	if !dec.Allowed {
		resp.Window = string(dec.Duration)
		resp.Limit = dec.Limit
		resp.Count = dec.Count
		status = http.StatusTooManyRequests
		w.Header().Set(middleware.HeaderWindow, resp.Window)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func (h *checkHandler) clientError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
