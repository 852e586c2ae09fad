package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/config"
	"github.com/prepscuola/simulazioni-backend/internal/response"
)

const (
	metricsInterval = 7 * time.Second
	probeTimeout    = 2 * time.Second
)

// Probe checks one dependency the server cannot work without.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// RedisProbe pings a Redis client.
func RedisProbe(rdb *redis.Client) Probe {
	return Probe{Name: "redis", Check: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}}
}

// SystemHandler serves readiness and operational metrics.
type SystemHandler struct {
	rdb       *redis.Client
	probes    []Probe
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(rdb *redis.Client, probes []Probe, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		rdb:       rdb,
		probes:    probes,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type systemMetrics struct {
	Timestamp int64             `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`

	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
	NumCPU     int    `json:"num_cpu"`

	QueuePush     int64 `json:"queue_push"`
	QueueAutosave int64 `json:"queue_autosave"`
}

// Ready godoc
// GET /ready
func (h *SystemHandler) Ready(c *gin.Context) {
	checks, ok := h.check(c.Request.Context())
	if !ok {
		response.FailWithFields(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable, checks)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ready", "checks": checks})
}

// Metrics godoc
// GET /api/v1/admin/system
func (h *SystemHandler) Metrics(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"metrics": h.collect(c.Request.Context())})
}

// MetricsStream godoc
// GET /api/v1/admin/system/metrics
// Pushes a metrics snapshot as a server-sent event every few seconds.
func (h *SystemHandler) MetricsStream(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	h.log.Info().Msg("Staff connected to system metrics stream")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	h.writeMetrics(c)
	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Staff disconnected from system metrics stream")
			return
		case <-ticker.C:
			h.writeMetrics(c)
		}
	}
}

func (h *SystemHandler) writeMetrics(c *gin.Context) {
	data, err := json.Marshal(h.collect(c.Request.Context()))
	if err != nil {
		return
	}
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

// check runs every probe. A context that is already done still reports,
// so callers get a reason per dependency.
func (h *SystemHandler) check(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.probes))
	ok := true
	for _, p := range h.probes {
		if err := p.Check(ctx); err != nil {
			h.log.Warn().Err(err).Str("probe", p.Name).Msg("Readiness probe failed")
			checks[p.Name] = err.Error()
			ok = false
			continue
		}
		checks[p.Name] = "ok"
	}
	return checks, ok
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	checks, _ := h.check(ctx)
	m := systemMetrics{
		Timestamp: time.Now().Unix(),
		Uptime:    formatDuration(time.Since(h.startTime)),
		Checks:    checks,
		GoVersion: runtime.Version(),
		NumCPU:    runtime.NumCPU(),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.Goroutines = runtime.NumGoroutine()
	m.HeapAlloc = ms.HeapAlloc
	m.HeapSys = ms.Sys
	m.NumGC = ms.NumGC

	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
	defer cancel()
	pipe := h.rdb.Pipeline()
	pushCmd := pipe.LLen(qctx, config.WorkerKey.PushQueue)
	autosaveCmd := pipe.LLen(qctx, config.WorkerKey.AutosaveQueue)
	if _, err := pipe.Exec(qctx); err == nil {
		m.QueuePush, _ = pushCmd.Result()
		m.QueueAutosave, _ = autosaveCmd.Result()
	}
	return m
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
