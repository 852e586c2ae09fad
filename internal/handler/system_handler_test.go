package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/prepscuola/simulazioni-backend/internal/config"
)

func newSystemHandler(t *testing.T, probes ...Probe) (*SystemHandler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewSystemHandler(rdb, append([]Probe{RedisProbe(rdb)}, probes...), testLog), mr
}

func TestReady(t *testing.T) {
	down := Probe{Name: "postgres", Check: func(context.Context) error { return errors.New("connection refused") }}
	up := Probe{Name: "postgres", Check: func(context.Context) error { return nil }}

	tests := []struct {
		name   string
		probe  Probe
		status int
	}{
		{"all up", up, http.StatusOK},
		{"postgres down", down, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newSystemHandler(t, tt.probe)
			r := gin.New()
			r.GET("/ready", h.Ready)

			w := do(r, http.MethodGet, "/ready", "")
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body)
			}
			env := decode(t, w)
			if tt.status == http.StatusOK {
				if !strings.Contains(string(env.Data), `"postgres":"ok"`) {
					t.Errorf("data = %s", env.Data)
				}
				return
			}
			if env.Error == nil || env.Error.Fields["postgres"] != "connection refused" || env.Error.Fields["redis"] != "ok" {
				t.Errorf("error = %+v", env.Error)
			}
		})
	}
}

func TestMetricsReportsQueueDepth(t *testing.T) {
	h, mr := newSystemHandler(t)
	mr.RPush(config.WorkerKey.PushQueue, "a", "b")
	mr.RPush(config.WorkerKey.AutosaveQueue, "c")

	r := gin.New()
	r.GET("/system", h.Metrics)
	w := do(r, http.MethodGet, "/system", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var data struct {
		Metrics systemMetrics `json:"metrics"`
	}
	if err := json.Unmarshal(decode(t, w).Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Metrics.QueuePush != 2 || data.Metrics.QueueAutosave != 1 {
		t.Errorf("queues = %d/%d, want 2/1", data.Metrics.QueuePush, data.Metrics.QueueAutosave)
	}
	if data.Metrics.Checks["redis"] != "ok" || data.Metrics.Goroutines == 0 {
		t.Errorf("unexpected metrics: %+v", data.Metrics)
	}
}

func TestMetricsStreamWritesEvent(t *testing.T) {
	h, _ := newSystemHandler(t)
	r := gin.New()
	r.GET("/stream", h.MetricsStream)

	// A cancelled request gets the initial snapshot and then returns.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "data: {") || !strings.HasSuffix(body, "\n\n") {
		t.Errorf("body = %q", body)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[string]string{
		"45s":    "0m 45s",
		"1h2m3s": "1h 2m 3s",
		"50h":    "2d 2h 0m 0s",
	}
	for in, want := range tests {
		d, _ := time.ParseDuration(in)
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%s) = %q, want %q", in, got, want)
		}
	}
}
