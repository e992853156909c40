package api

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/watchvane/sentinel/internal/common/httputil"
	"github.com/watchvane/sentinel/internal/monitor/model"
	"github.com/watchvane/sentinel/internal/monitor/registry"
	"github.com/watchvane/sentinel/internal/monitor/store"
	"github.com/watchvane/sentinel/pkg/types"
)

const defaultHistoryLimit = 100

// checkAllConcurrency bounds POST /urls/check-all's fan-out, independent of
// the scheduler's own semaphore since this is a synchronous, caller-driven
// sweep rather than the periodic one.
const checkAllConcurrency = 8

// Handlers wires registry.Service and store.Store into fasthttp handlers.
type Handlers struct {
	registry *registry.Service
	store    store.Store
	logger   *zap.Logger
	started  time.Time
}

func NewHandlers(reg *registry.Service, st store.Store, logger *zap.Logger) *Handlers {
	return &Handlers{registry: reg, store: st, logger: logger, started: time.Now()}
}

// Register wires every spec.md §6.1 endpoint onto r.
func (h *Handlers) Register(r *Router) {
	r.Handle("GET", "/urls", h.ListURLs)
	r.Handle("POST", "/urls", h.AddURL)
	r.Handle("PUT", "/urls/:id", h.UpdateURL)
	r.Handle("DELETE", "/urls/:id", h.RemoveURL)
	r.Handle("POST", "/urls/:id/check", h.CheckNow)
	r.Handle("POST", "/urls/check-all", h.CheckAll)
	r.Handle("GET", "/history/:id", h.History)
	r.Handle("GET", "/health", h.Health)
}

func (h *Handlers) ListURLs(ctx *fasthttp.RequestCtx) {
	entries, err := h.store.FindAll(ctx)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	out := make([]*types.MonitoredURL, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ToPublic())
	}
	httputil.JSONList(ctx, out, len(out), fasthttp.StatusOK)
}

type addURLRequest struct {
	URL             string       `json:"url"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	CheckIntervalMs int64        `json:"checkInterval"`
	Group           types.Group  `json:"group"`
	RequiresAuth    bool         `json:"requiresAuth"`
	AuthCredentials *authRequest `json:"authCredentials"`
	Dependencies    []string     `json:"dependencies"`
}

// authRequest's fields are all pointers so a PUT's partial JSON body can
// distinguish "field omitted" (nil, preserve existing secret) from "field
// explicitly set to empty" (non-nil pointer to "", clear it) per spec.md
// §4.7's secrets patch semantics -- a plain string field can't make that
// distinction under encoding/json.
type authRequest struct {
	Type                 *model.AuthType  `json:"type"`
	Username             *string          `json:"username"`
	Password             *string          `json:"password"`
	BearerToken          *string          `json:"bearerToken"`
	APIKeyHeader         *string          `json:"apiKeyHeader"`
	APIKeyValue          *string          `json:"apiKeyValue"`
	LoginURL             *string          `json:"loginUrl"`
	LoginType            *model.LoginType `json:"loginType"`
	UsernameSelector     *string          `json:"usernameSelector"`
	PasswordSelector     *string          `json:"passwordSelector"`
	SubmitSelector       *string          `json:"submitSelector"`
	ModalTriggerSelector *string          `json:"modalTriggerSelector"`
	LoginSuccessSelector *string          `json:"loginSuccessSelector"`
}

// toModel builds a full AuthConfig for POST /urls, where there is no
// existing record to preserve -- an omitted field is simply the zero value.
func (a *authRequest) toModel() *model.AuthConfig {
	if a == nil {
		return nil
	}
	var authType model.AuthType
	if a.Type != nil {
		authType = *a.Type
	}
	var loginType model.LoginType
	if a.LoginType != nil {
		loginType = *a.LoginType
	}
	return &model.AuthConfig{
		Type: authType, Username: derefStr(a.Username), Password: derefStr(a.Password),
		BearerToken: derefStr(a.BearerToken), APIKeyHeader: derefStr(a.APIKeyHeader), APIKeyValue: derefStr(a.APIKeyValue),
		LoginURL: derefStr(a.LoginURL), LoginType: loginType, UsernameSelector: derefStr(a.UsernameSelector),
		PasswordSelector: derefStr(a.PasswordSelector), SubmitSelector: derefStr(a.SubmitSelector),
		ModalTriggerSelector: derefStr(a.ModalTriggerSelector), LoginSuccessSelector: derefStr(a.LoginSuccessSelector),
	}
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (h *Handlers) AddURL(ctx *fasthttp.RequestCtx) {
	var req addURLRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		httputil.JSONError(ctx, "malformed request body", fasthttp.StatusBadRequest)
		return
	}

	entry, err := h.registry.AddURL(ctx, registry.AddInput{
		URL: req.URL, Name: req.Name, Description: req.Description,
		Group:         req.Group,
		CheckInterval: time.Duration(req.CheckIntervalMs) * time.Millisecond,
		Dependencies:  req.Dependencies,
		Auth:          req.AuthCredentials.toModel(),
	})
	if err != nil {
		writeErr(ctx, err)
		return
	}
	httputil.JSONData(ctx, entry.ToPublic(), fasthttp.StatusCreated)
}

type updateURLRequest struct {
	URL             *string      `json:"url"`
	Name            *string      `json:"name"`
	Description     *string      `json:"description"`
	CheckIntervalMs *int64       `json:"checkInterval"`
	Group           *types.Group `json:"group"`
	Enabled         *bool        `json:"enabled"`
	Dependencies    *[]string    `json:"dependencies"`
	AuthCredentials *authRequest `json:"authCredentials"`
}

func (h *Handlers) UpdateURL(ctx *fasthttp.RequestCtx) {
	id := pathParam(ctx, "id")
	var req updateURLRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		httputil.JSONError(ctx, "malformed request body", fasthttp.StatusBadRequest)
		return
	}

	patch := model.Patch{
		URL: req.URL, Name: req.Name, Description: req.Description,
		Group: req.Group, Enabled: req.Enabled, Dependencies: req.Dependencies,
	}
	if req.CheckIntervalMs != nil {
		d := time.Duration(*req.CheckIntervalMs) * time.Millisecond
		patch.CheckInterval = &d
	}
	if req.AuthCredentials != nil {
		patch.Auth = toAuthPatch(req.AuthCredentials)
	}

	entry, err := h.registry.UpdateURL(ctx, id, patch)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	httputil.JSONData(ctx, entry.ToPublic(), fasthttp.StatusOK)
}

// toAuthPatch passes each field's presence straight through: a is only
// non-nil here when the request body included an "authCredentials" object,
// and within it, a nil field means omitted (preserve), a non-nil field
// means explicitly set (apply, even to "").
func toAuthPatch(a *authRequest) *model.AuthPatch {
	return &model.AuthPatch{
		Type: a.Type, Username: a.Username, Password: a.Password,
		BearerToken: a.BearerToken, APIKeyHeader: a.APIKeyHeader, APIKeyValue: a.APIKeyValue,
		LoginURL: a.LoginURL, LoginType: a.LoginType, UsernameSelector: a.UsernameSelector,
		PasswordSelector: a.PasswordSelector, SubmitSelector: a.SubmitSelector,
		ModalTriggerSelector: a.ModalTriggerSelector, LoginSuccessSelector: a.LoginSuccessSelector,
	}
}

func (h *Handlers) RemoveURL(ctx *fasthttp.RequestCtx) {
	id := pathParam(ctx, "id")
	if err := h.registry.RemoveURL(ctx, id); err != nil {
		writeErr(ctx, err)
		return
	}
	httputil.JSONSuccess(ctx, fasthttp.StatusOK)
}

func (h *Handlers) CheckNow(ctx *fasthttp.RequestCtx) {
	id := pathParam(ctx, "id")
	result, err := h.registry.CheckNow(ctx, id)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	httputil.JSONData(ctx, result, fasthttp.StatusOK)
}

// CheckAll dispatches every enabled entry and collects results, bounded by
// checkAllConcurrency — the same "errors of individual entries must not
// stop the sweep" isolation the scheduler's sweep uses.
func (h *Handlers) CheckAll(ctx *fasthttp.RequestCtx) {
	entries, err := h.store.FindAll(ctx)
	if err != nil {
		writeErr(ctx, err)
		return
	}

	type outcome struct {
		result *types.ProbeResult
		err    error
	}
	jobs := make(chan string)
	results := make(chan outcome)

	base := context.Background()
	for w := 0; w < checkAllConcurrency; w++ {
		go func() {
			for id := range jobs {
				r, err := h.registry.CheckNow(base, id)
				results <- outcome{result: r, err: err}
			}
		}()
	}

	go func() {
		for _, e := range entries {
			if e.Enabled {
				jobs <- e.ID
			}
		}
		close(jobs)
	}()

	wanted := 0
	for _, e := range entries {
		if e.Enabled {
			wanted++
		}
	}

	out := make([]*types.ProbeResult, 0, wanted)
	for i := 0; i < wanted; i++ {
		o := <-results
		if o.err != nil {
			h.logger.Warn("check-all entry failed", zap.Error(o.err))
			continue
		}
		out = append(out, o.result)
	}
	httputil.JSONList(ctx, out, len(out), fasthttp.StatusOK)
}

func (h *Handlers) History(ctx *fasthttp.RequestCtx) {
	id := pathParam(ctx, "id")
	entry, err := h.store.FindByID(ctx, id)
	if err != nil {
		writeErr(ctx, err)
		return
	}

	limit := defaultHistoryLimit
	if raw := string(ctx.QueryArgs().Peek("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	history := entry.History
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	httputil.JSONList(ctx, history, len(history), fasthttp.StatusOK)
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	UptimeMs  int64     `json:"uptime"`
	Database  string    `json:"database"`
}

func (h *Handlers) Health(ctx *fasthttp.RequestCtx) {
	database := "connected"
	status := "ok"
	if _, err := h.store.FindAll(ctx); err != nil {
		database = "disconnected"
		status = "degraded"
	}
	httputil.JSONData(ctx, healthResponse{
		Status: status, Timestamp: time.Now(), UptimeMs: time.Since(h.started).Milliseconds(),
		Database: database,
	}, fasthttp.StatusOK)
}

func pathParam(ctx *fasthttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

func writeErr(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		httputil.JSONError(ctx, err.Error(), fasthttp.StatusNotFound)
	case errors.Is(err, model.ErrConflict):
		httputil.JSONError(ctx, err.Error(), fasthttp.StatusConflict)
	case errors.Is(err, model.ErrValidation):
		httputil.JSONError(ctx, err.Error(), fasthttp.StatusBadRequest)
	case errors.Is(err, model.ErrUnauthorized):
		httputil.JSONError(ctx, err.Error(), fasthttp.StatusUnauthorized)
	case errors.Is(err, model.ErrDatabaseUnavailable):
		httputil.JSONError(ctx, err.Error(), fasthttp.StatusServiceUnavailable)
	default:
		httputil.JSONError(ctx, "internal error", fasthttp.StatusInternalServerError)
	}
}
