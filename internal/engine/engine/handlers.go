package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Vodeneev/ticketedge/internal/pkg/access"
	"github.com/Vodeneev/ticketedge/internal/pkg/models"
	"github.com/Vodeneev/ticketedge/internal/pkg/rules"
	"github.com/Vodeneev/ticketedge/internal/pkg/source"
)

const (
	defaultTopEdges = 20
	maxTopEdges     = 200
	requestTimeout  = 30 * time.Second
)

type principalKey struct{}

// Router builds the HTTP API.
func (e *Engine) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: e.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/ping", handlePing)
	r.Get("/health", e.handleHealth)
	r.Method(http.MethodGet, "/metrics", e.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(e.authenticate)
		r.Get("/rulesets", e.handleRulesets)
		r.Get("/rulesets/{version}/pick", e.handlePick)

		r.Group(func(r chi.Router) {
			r.Use(e.requireEntitlement)
			r.Get("/fixtures/{id}/analysis", e.handleAnalysis)
			r.Get("/fixtures/{id}/picks", e.handlePicks)
			r.Get("/edges/top", e.handleTopEdges)
			r.Post("/tickets", e.handleTicket)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/scan/status", e.handleScanStatus)
			r.Post("/scan/start", e.handleStartAsync)
			r.Post("/scan/stop", e.handleStopAsync)
		})
	})

	return r
}

func handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("pong"))
}

func (e *Engine) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"default_ruleset": e.rules.Default().Version,
		"scan_running":    e.IsAsyncRunning(),
		"timestamp":       e.now().UTC(),
	})
}

// authenticate resolves the bearer token. Without an authorizer every caller
// is treated as an admin.
func (e *Engine) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if e.authorizer == nil {
			ctx := context.WithValue(r.Context(), principalKey{}, access.Principal{UserID: "anonymous", Admin: true})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		p, ok := e.authorizer.Authorize(r.Context(), bearerToken(r))
		if !ok {
			respondError(w, http.StatusUnauthorized, "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

// requireEntitlement rejects callers without a trial or subscription.
func (e *Engine) requireEntitlement(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if e.entitlements == nil {
			next.ServeHTTP(w, r)
			return
		}
		p, _ := principalFrom(r.Context())
		level, err := e.entitlements.Access(r.Context(), p)
		if err != nil {
			respondError(w, http.StatusServiceUnavailable, "entitlement check failed", err)
			return
		}
		if !level.Active() {
			respondError(w, http.StatusPaymentRequired, "an active trial or subscription is required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := principalFrom(r.Context()); !ok || !p.Admin {
			respondError(w, http.StatusForbidden, "admin access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principalFrom(ctx context.Context) (access.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(access.Principal)
	return p, ok
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func (e *Engine) handleRulesets(w http.ResponseWriter, _ *http.Request) {
	type rulesetInfo struct {
		Version     string   `json:"version"`
		Description string   `json:"description,omitempty"`
		Fingerprint string   `json:"fingerprint"`
		Categories  []string `json:"categories"`
		Default     bool     `json:"default"`
	}

	def := e.rules.Default().Version
	var out []rulesetInfo
	for _, v := range e.rules.Versions() {
		rs, _ := e.rules.Get(v)
		info := rulesetInfo{Version: v, Description: rs.Description, Fingerprint: rs.Fingerprint(), Default: v == def}
		for _, c := range models.Categories {
			if _, ok := rs.Categories[c]; ok {
				info.Categories = append(info.Categories, string(c))
			}
		}
		out = append(out, info)
	}
	respondJSON(w, http.StatusOK, out)
}

// handlePick answers a rule lookup from a combined value or from both teams' rates.
// Query params: category, value | home & away
func (e *Engine) handlePick(w http.ResponseWriter, r *http.Request) {
	rs, ok := e.resolveRuleset(w, chi.URLParam(r, "version"))
	if !ok {
		return
	}

	q := r.URL.Query()
	category := models.Category(strings.ToLower(q.Get("category")))
	if category == "" {
		respondError(w, http.StatusBadRequest, "category is required", nil)
		return
	}

	var (
		pick     *rules.Pick
		combined float64
		err      error
	)
	if raw := q.Get("value"); raw != "" {
		combined, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "value must be a number", err)
			return
		}
		pick, err = rules.PickLine(rs, category, combined)
	} else {
		home, herr := strconv.ParseFloat(q.Get("home"), 64)
		away, aerr := strconv.ParseFloat(q.Get("away"), 64)
		if herr != nil || aerr != nil {
			respondError(w, http.StatusBadRequest, "either value or numeric home and away are required", nil)
			return
		}
		pick, combined, err = rules.PickFromCombined(rs, category, home, away)
	}
	if errors.Is(err, rules.ErrUnknownCategory) {
		respondError(w, http.StatusNotFound, err.Error(), nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "rule lookup failed", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ruleset":  rs.Version,
		"category": category,
		"combined": combined,
		"pick":     pick,
	})
}

// handleAnalysis returns a fixture analysis.
// Query params: ruleset, fresh
func (e *Engine) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	rs, ok := e.resolveRuleset(w, r.URL.Query().Get("ruleset"))
	if !ok {
		return
	}
	useCache := r.URL.Query().Get("fresh") != "true"

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	a, err := e.FixtureAnalysis(ctx, chi.URLParam(r, "id"), rs, useCache)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, a)
	case errors.Is(err, source.ErrNotFound):
		respondError(w, http.StatusNotFound, "fixture not found", nil)
	case errors.Is(err, ErrNoSource):
		respondError(w, http.StatusServiceUnavailable, err.Error(), nil)
	default:
		respondError(w, http.StatusBadGateway, "analysis failed", err)
	}
}

// handlePicks returns the rule picks for a fixture.
// Query params: ruleset
func (e *Engine) handlePicks(w http.ResponseWriter, r *http.Request) {
	rs, ok := e.resolveRuleset(w, r.URL.Query().Get("ruleset"))
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	picks, err := e.Picks(ctx, chi.URLParam(r, "id"), rs)
	switch {
	case err == nil:
		if picks == nil {
			picks = []models.RulePick{}
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"ruleset":     rs.Version,
			"fingerprint": rs.Fingerprint(),
			"picks":       picks,
		})
	case errors.Is(err, source.ErrNotFound):
		respondError(w, http.StatusNotFound, "fixture not found", nil)
	case errors.Is(err, ErrNoSource):
		respondError(w, http.StatusServiceUnavailable, err.Error(), nil)
	default:
		respondError(w, http.StatusBadGateway, "pick lookup failed", err)
	}
}

// handleTopEdges lists the best stored edges.
// Query params: limit, hours
func (e *Engine) handleTopEdges(w http.ResponseWriter, r *http.Request) {
	if e.store == nil {
		respondError(w, http.StatusServiceUnavailable, "edge storage is not configured", nil)
		return
	}

	limit := parseIntParam(r, "limit", defaultTopEdges)
	if limit <= 0 || limit > maxTopEdges {
		limit = maxTopEdges
	}
	hours := parseIntParam(r, "hours", 24)
	if hours <= 0 {
		hours = 24
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	edges, err := e.store.TopEdges(ctx, e.now().Add(-time.Duration(hours)*time.Hour), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load edges", err)
		return
	}
	if edges == nil {
		edges = []models.EdgeResult{}
	}
	respondJSON(w, http.StatusOK, edges)
}

func (e *Engine) handleTicket(w http.ResponseWriter, r *http.Request) {
	var req TicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := e.BuildTicket(ctx, req)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, res)
	case errors.Is(err, ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, ErrNoSource):
		respondError(w, http.StatusServiceUnavailable, err.Error(), nil)
	default:
		respondError(w, http.StatusBadGateway, "ticket search failed", err)
	}
}

func (e *Engine) handleScanStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"running":   e.IsAsyncRunning(),
		"last_scan": e.LastScan(),
	})
}

// handleStartAsync starts the periodic scan
func (e *Engine) handleStartAsync(w http.ResponseWriter, _ *http.Request) {
	if e.IsAsyncRunning() {
		respondJSON(w, http.StatusOK, map[string]string{
			"status":  "already_running",
			"message": "Async scan is already running",
		})
		return
	}

	if err := e.StartAsync(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "started",
		"message": "Async scan started successfully",
	})
}

// handleStopAsync stops the periodic scan
func (e *Engine) handleStopAsync(w http.ResponseWriter, _ *http.Request) {
	if !e.IsAsyncRunning() {
		respondJSON(w, http.StatusOK, map[string]string{
			"status":  "already_stopped",
			"message": "Async scan is not running",
		})
		return
	}

	e.StopAsync()

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "stopped",
		"message": "Async scan stopped successfully",
	})
}

func (e *Engine) resolveRuleset(w http.ResponseWriter, version string) (*rules.Ruleset, bool) {
	if version == "default" {
		version = ""
	}
	rs, err := e.rules.Resolve(version)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error(), nil)
		return nil, false
	}
	return rs, true
}

func parseIntParam(r *http.Request, param string, defaultValue int) int {
	valueStr := r.URL.Query().Get(param)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		slog.Warn("request failed", "status", status, "message", message, "error", err)
	}
	respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
		"code":    status,
	})
}
