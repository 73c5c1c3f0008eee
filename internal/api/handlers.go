// Package api exposes the HTTP surface of the sync service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"example.com/activitysync/internal/actuals"
	"example.com/activitysync/internal/auth"
	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/ingest"
	"example.com/activitysync/internal/persistence"
	"example.com/activitysync/internal/provider"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// SyncDispatcher queues provider syncs.
type SyncDispatcher interface {
	Dispatch(ctx context.Context, athleteID, providerName string, opts ingest.DispatchOptions) (domain.SyncRun, error)
}

// GrantStore exchanges authorization codes and stores the resulting credentials.
type GrantStore interface {
	StoreGrant(ctx context.Context, athleteID, providerName, code string) (domain.Connection, error)
}

// RecentLinker auto-links an athlete's unlinked activities.
type RecentLinker interface {
	AutoLinkRecentActivities(ctx context.Context, athleteID, provider string, after *time.Time) (int, error)
}

// Dependencies are the collaborators the handlers delegate to.
type Dependencies struct {
	Dispatcher  SyncDispatcher
	Grants      GrantStore
	Connections domain.ConnectionStore
	Runs        domain.SyncRunStore
	Linker      RecentLinker
	Sessions    domain.SessionStore
	Profiles    domain.ProfileStore
	Resolver    actuals.Resolver
}

// Handler coordinates HTTP requests with the sync services.
type Handler struct {
	deps   Dependencies
	logger *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(deps Dependencies, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{deps: deps, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/connections/{provider}/sync", h.triggerSync)
	mux.HandleFunc("POST /v1/connections/{provider}/token", h.exchangeToken)
	mux.HandleFunc("DELETE /v1/connections/{provider}", h.disconnect)
	mux.HandleFunc("GET /v1/sync-runs", h.listSyncRuns)
	mux.HandleFunc("POST /v1/activities/autolink", h.autoLink)
	mux.HandleFunc("GET /v1/sessions/{id}/actuals", h.sessionActuals)
	mux.HandleFunc("GET /healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// SyncRequest is the optional body of POST /v1/connections/{provider}/sync.
type SyncRequest struct {
	After              *time.Time `json:"after,omitempty"`
	ExternalActivityID string     `json:"external_activity_id,omitempty"`
}

// SyncRunView describes a sync run.
type SyncRunView struct {
	SyncRunID     string     `json:"sync_run_id"`
	Provider      string     `json:"provider"`
	Status        string     `json:"status"`
	QueuedAt      time.Time  `json:"queued_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	ActivityCount int        `json:"activity_count"`
	Reason        string     `json:"reason,omitempty"`
}

func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeSyncWrite)
	if !ok {
		return
	}

	var req SyncRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	run, err := h.deps.Dispatcher.Dispatch(r.Context(), claims.AthleteID, r.PathValue("provider"), ingest.DispatchOptions{
		After:              req.After,
		ExternalActivityID: strings.TrimSpace(req.ExternalActivityID),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"sync_run_id": run.ID,
		"status":      string(run.Status),
		"queued_at":   run.QueuedAt,
	})
}

// TokenRequest carries an OAuth authorization code.
type TokenRequest struct {
	Code string `json:"code"`
}

// ConnectionView describes a provider connection without its secrets.
type ConnectionView struct {
	Provider       string     `json:"provider"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	LastSyncStatus string     `json:"last_sync_status,omitempty"`
}

func (h *Handler) exchangeToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeSyncWrite)
	if !ok {
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "code is required")
		return
	}

	conn, err := h.deps.Grants.StoreGrant(r.Context(), claims.AthleteID, provider.Normalize(r.PathValue("provider")), strings.TrimSpace(req.Code))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ConnectionView{
		Provider:       conn.Provider,
		TokenExpiresAt: conn.TokenExpiresAt,
		LastSyncedAt:   conn.LastSyncedAt,
		LastSyncStatus: string(conn.LastSyncStatus),
	})
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeSyncWrite)
	if !ok {
		return
	}

	err := h.deps.Connections.Disconnect(r.Context(), claims.AthleteID, provider.Normalize(r.PathValue("provider")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSyncRunsResponse packages a page of sync runs.
type ListSyncRunsResponse struct {
	Items      []SyncRunView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

func (h *Handler) listSyncRuns(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeSyncRead)
	if !ok {
		return
	}

	query := r.URL.Query()
	limit := defaultPageSize
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxPageSize)
		}
	}

	cursor, err := persistence.DecodeCursor(query.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	providerName := ""
	if raw := query.Get("provider"); raw != "" {
		providerName = provider.Normalize(raw)
	}

	runs, next, err := h.deps.Runs.ListSyncRuns(r.Context(), claims.AthleteID, providerName, cursor, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]SyncRunView, 0, len(runs))
	for _, run := range runs {
		items = append(items, toSyncRunView(run))
	}
	writeJSON(w, http.StatusOK, ListSyncRunsResponse{Items: items, NextCursor: persistence.EncodeCursor(next)})
}

// AutoLinkRequest narrows a batch auto-link.
type AutoLinkRequest struct {
	Provider string     `json:"provider,omitempty"`
	After    *time.Time `json:"after,omitempty"`
}

func (h *Handler) autoLink(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeSyncWrite)
	if !ok {
		return
	}

	var req AutoLinkRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	providerName := ""
	if req.Provider != "" {
		providerName = provider.Normalize(req.Provider)
	}

	linked, err := h.deps.Linker.AutoLinkRecentActivities(r.Context(), claims.AthleteID, providerName, req.After)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"linked": linked})
}

// ActualsView reports the resolved actual metrics of a planned session. Absent values are null.
type ActualsView struct {
	SessionID       int64   `json:"session_id"`
	DurationMinutes *int    `json:"duration_minutes"`
	DurationSource  string  `json:"duration_source,omitempty"`
	TSS             *int    `json:"tss"`
	TSSSource       string  `json:"tss_source,omitempty"`
	TSSDetail       string  `json:"tss_detail,omitempty"`
	LinkedActivity  *string `json:"linked_activity_external_id,omitempty"`
}

func (h *Handler) sessionActuals(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeSyncRead)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid session id")
		return
	}

	session, err := h.deps.Sessions.GetSession(r.Context(), claims.AthleteID, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if session == nil {
		writeError(w, http.StatusNotFound, "not_found", "planned session not found")
		return
	}

	profile, err := h.deps.Profiles.GetProfile(r.Context(), claims.AthleteID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	view := ActualsView{SessionID: session.ID}
	if res, ok := h.deps.Resolver.ResolveDuration(*session); ok {
		view.DurationMinutes = &res.Value
		view.DurationSource = string(res.Source)
	}
	if res, ok := h.deps.Resolver.ResolveTSS(*session, profile); ok {
		view.TSS = &res.Value
		view.TSSSource = string(res.Source)
		view.TSSDetail = res.Detail
	}
	if session.LinkedActivity != nil {
		view.LinkedActivity = &session.LinkedActivity.ExternalID
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnsupportedProvider):
		writeError(w, http.StatusBadRequest, "unsupported_provider", err.Error())
	case domain.IsReconnectRequired(err):
		writeError(w, http.StatusConflict, "reconnect_required", err.Error())
	case errors.Is(err, domain.ErrConnectionNotFound):
		writeError(w, http.StatusNotFound, "not_found", "connection not found")
	case errors.Is(err, domain.ErrProviderRequest):
		writeError(w, http.StatusBadGateway, "provider_error", err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, err := auth.Authorize(r.Context(), scope)
	switch {
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	case err != nil:
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	return claims, true
}

// decodeOptional decodes a JSON body, accepting an empty one.
func decodeOptional(r *http.Request, into any) error {
	err := json.NewDecoder(r.Body).Decode(into)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func toSyncRunView(run domain.SyncRun) SyncRunView {
	return SyncRunView{
		SyncRunID:     run.ID,
		Provider:      run.Provider,
		Status:        string(run.Status),
		QueuedAt:      run.QueuedAt,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
		ActivityCount: run.ActivityCount,
		Reason:        run.Reason,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
