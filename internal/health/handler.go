package health

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"instafund/internal/httputil"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

const checkTimeout = time.Second

type Handler struct {
	startedAt time.Time
	mode      string
	checks    map[string]Check
}

func NewHandler(startedAt time.Time, mode string) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{startedAt: start, mode: mode, checks: make(map[string]Check)}
}

// AddCheck registers a dependency probe. Call before serving.
func (h *Handler) AddCheck(name string, c Check) {
	h.checks[name] = c
}

type dependencyStat struct {
	Name      string `json:"name"`
	Reachable bool   `json:"reachable"`
	PingMs    int64  `json:"ping_ms"`
	Error     string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status       string           `json:"status"`
	Mode         string           `json:"mode"`
	Timestamp    string           `json:"timestamp"`
	UptimeSec    int64            `json:"uptime_sec"`
	Uptime       string           `json:"uptime"`
	Goroutines   int              `json:"goroutines"`
	Dependencies []dependencyStat `json:"dependencies"`
}

func (h *Handler) uptime(now time.Time) time.Duration {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		return 0
	}
	return uptime
}

func (h *Handler) run(ctx context.Context) []dependencyStat {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]dependencyStat, 0, len(names))
	for _, name := range names {
		start := time.Now()
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := h.checks[name](cctx)
		cancel()
		stat := dependencyStat{Name: name, Reachable: err == nil, PingMs: time.Since(start).Milliseconds()}
		if err != nil {
			stat.Error = err.Error()
		}
		out = append(out, stat)
	}
	return out
}

// ServeHTTP reports readiness and returns 503 when any dependency is down.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)
	deps := h.run(r.Context())

	status := "ok"
	httpStatus := http.StatusOK
	for _, d := range deps {
		if !d.Reachable {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}
	httputil.WriteJSON(w, httpStatus, readinessResponse{
		Status:       status,
		Mode:         h.mode,
		Timestamp:    now.Format(time.RFC3339),
		UptimeSec:    int64(uptime.Seconds()),
		Uptime:       uptime.String(),
		Goroutines:   runtime.NumGoroutine(),
		Dependencies: deps,
	})
}
