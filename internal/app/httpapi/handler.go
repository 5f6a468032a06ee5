package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	app "github.com/PlayPark-Labs/engagement_engine/internal/app"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/domain/activity"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/domain/identity"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/metrics"
	activitysvc "github.com/PlayPark-Labs/engagement_engine/internal/app/services/activity"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/services/leaderboard"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/storage"
	"github.com/PlayPark-Labs/engagement_engine/pkg/logger"
)

const (
	// defaultPageLimit applies when a board request names no limit.
	defaultPageLimit = 10

	// liveSnapshotSize is how many entries the initial websocket push carries,
	// matching the feed's broadcast slice.
	liveSnapshotSize = 10

	// recentEventLimit bounds the analytics summary's recent event list.
	recentEventLimit = 20

	wsWriteTimeout = 10 * time.Second
	pingTimeout    = 2 * time.Second
)

// handler bundles HTTP endpoints for the engine services.
type handler struct {
	app      *app.Application
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler returns a router exposing the engine REST and websocket API.
func NewHandler(application *app.Application, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{
		app: application,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The demo apps are served from other origins; cross-origin
			// policy is enforced by the CORS middleware, not the upgrader.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	router := mux.NewRouter()
	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/leaderboards/{kind}", h.getBoard).Methods("GET")
	v1.HandleFunc("/leaderboards/{kind}/live", h.liveBoard).Methods("GET")
	v1.HandleFunc("/activities", h.postActivity).Methods("POST")
	v1.HandleFunc("/quota/{identityHash}", h.getQuota).Methods("GET")
	v1.HandleFunc("/quota/{identityHash}/increment", h.postQuotaIncrement).Methods("POST")
	v1.HandleFunc("/sessions", h.postSession).Methods("POST")
	v1.HandleFunc("/sessions/{id}", h.getSession).Methods("GET")
	v1.HandleFunc("/analytics/summary", h.getAnalyticsSummary).Methods("GET")
	v1.HandleFunc("/diagnostics", h.getDiagnostics).Methods("GET")
	router.HandleFunc("/healthz", h.healthz).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	return router
}

func (h *handler) getBoard(w http.ResponseWriter, r *http.Request) {
	kind, err := activity.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	limit, offset, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	page, err := h.app.Boards.GetBoard(r.Context(), kind, limit, offset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handler) liveBoard(w http.ResponseWriter, r *http.Request) {
	kind, err := activity.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the failure response.
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, cancel := h.app.Feed.Subscribe(kind)
	defer cancel()

	if snapshot, err := h.boardSnapshot(r.Context(), kind); err == nil {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, snapshot); err != nil {
			return
		}
	}

	// The reader's only job is noticing the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case payload, ok := <-updates:
			if !ok {
				// Dropped by the hub for falling behind.
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *handler) boardSnapshot(ctx context.Context, kind activity.Kind) ([]byte, error) {
	page, err := h.app.Boards.GetBoard(ctx, kind, liveSnapshotSize, 0)
	if err != nil {
		return nil, err
	}
	return json.Marshal(leaderboard.BoardUpdate{
		Kind:    string(kind),
		Entries: page.Entries,
		At:      time.Now().UTC(),
	})
}

func (h *handler) postActivity(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Kind            string    `json:"kind"`
		SessionID       string    `json:"sessionId"`
		Value           int64     `json:"value"`
		Label           string    `json:"label"`
		OccurredAt      time.Time `json:"occurredAt"`
		DurationSeconds float64   `json:"durationSeconds"`
		Level           int64     `json:"level"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	kind, err := activity.ParseKind(payload.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.SessionID) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("sessionId is required"))
		return
	}

	ident, err := h.app.Identities.Resolve(r.Context(), payload.SessionID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}

	if kind == activity.KindGame {
		duration := time.Duration(payload.DurationSeconds * float64(time.Second))
		if err := h.app.Games.ValidateScore(payload.Value, duration, payload.Level); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
	}

	if kind == activity.KindQuiz {
		if budget := h.app.Quota.Status(r.Context(), ident.Hash); !budget.CanProceed {
			writeError(w, http.StatusTooManyRequests, fmt.Errorf("daily attempt limit reached"))
			return
		}
	}

	rec, err := h.app.Activities.Record(r.Context(), activity.Record{
		Kind:        kind,
		IdentityRef: payload.SessionID,
		Value:       payload.Value,
		Label:       payload.Label,
		OccurredAt:  payload.OccurredAt,
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, activitysvc.ErrStoreFailed) {
			status = http.StatusInternalServerError
		}
		writeError(w, status, err)
		return
	}

	// The attempt counter is advisory; a failed bump never unwinds the
	// stored record.
	if kind == activity.KindQuiz {
		if _, err := h.app.Quota.Increment(r.Context(), ident.Hash); err != nil {
			h.log.WithError(err).Warn("quota increment after quiz record failed")
		}
	}

	writeJSON(w, http.StatusCreated, rec)
}

func (h *handler) getQuota(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Quota.Status(r.Context(), mux.Vars(r)["identityHash"]))
}

func (h *handler) postQuotaIncrement(w http.ResponseWriter, r *http.Request) {
	count, err := h.app.Quota.Increment(r.Context(), mux.Vars(r)["identityHash"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

type sessionResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Token       string `json:"token"`
}

func (h *handler) postSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		DisplayName string `json:"displayName"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := h.app.Identities.Register(r.Context(), payload.DisplayName, clientOrigin(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		ID:          sess.ID,
		DisplayName: sess.DisplayName,
		Token:       identity.MaskToken(h.app.Identities.HashOrigin(sess.Origin)),
	})
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ident, err := h.app.Identities.Resolve(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		ID:          id,
		DisplayName: ident.DisplayName,
		Token:       ident.DisplayToken,
	})
}

type eventView struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	IdentityToken string    `json:"identityToken"`
	Value         int64     `json:"value"`
	Label         string    `json:"label"`
	OccurredAt    time.Time `json:"occurredAt"`
	RecordedAt    time.Time `json:"recordedAt"`
}

type summaryResponse struct {
	Counts map[string]int64 `json:"counts"`
	Recent []eventView      `json:"recent"`
}

func (h *handler) getAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.app.Analytics.CountEventsByKind(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if counts == nil {
		counts = map[string]int64{}
	}

	events, err := h.app.Analytics.RecentEvents(ctx, recentEventLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	recent := make([]eventView, 0, len(events))
	for _, ev := range events {
		recent = append(recent, eventView{
			ID:            ev.ID,
			Kind:          ev.Kind,
			IdentityToken: ev.IdentityToken,
			Value:         ev.Value,
			Label:         ev.Label,
			OccurredAt:    ev.OccurredAt,
			RecordedAt:    ev.RecordedAt,
		})
	}

	writeJSON(w, http.StatusOK, summaryResponse{Counts: counts, Recent: recent})
}

type diagnosticsResponse struct {
	GoVersion         string  `json:"goVersion"`
	NumCPU            int     `json:"numCpu"`
	Goroutines        int     `json:"goroutines"`
	HeapAllocBytes    uint64  `json:"heapAllocBytes"`
	MemoryTotalBytes  uint64  `json:"memoryTotalBytes"`
	MemoryUsedPercent float64 `json:"memoryUsedPercent"`
	Load1             float64 `json:"load1"`
	Load5             float64 `json:"load5"`
	Load15            float64 `json:"load15"`
	UptimeSeconds     uint64  `json:"uptimeSeconds"`
}

func (h *handler) getDiagnostics(w http.ResponseWriter, r *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	diag := diagnosticsResponse{
		GoVersion:      runtime.Version(),
		NumCPU:         runtime.NumCPU(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: ms.HeapAlloc,
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		diag.MemoryTotalBytes = vm.Total
		diag.MemoryUsedPercent = vm.UsedPercent
	}
	if avg, err := load.Avg(); err == nil {
		diag.Load1 = avg.Load1
		diag.Load5 = avg.Load5
		diag.Load15 = avg.Load15
	}
	if up, err := host.Uptime(); err == nil {
		diag.UptimeSeconds = up
	}

	writeJSON(w, http.StatusOK, diag)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	if err := h.app.KV.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pageParams reads limit and offset query parameters, leaving range checks to
// the board service.
func pageParams(r *http.Request) (limit, offset int, err error) {
	limit = defaultPageLimit
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, fmt.Errorf("limit must be an integer")
		}
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, fmt.Errorf("offset must be an integer")
		}
	}
	return limit, offset, nil
}

// clientOrigin derives the rate-limit origin for a request: the first
// forwarded hop when present, else the remote address host.
func clientOrigin(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	addr, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return addr
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
