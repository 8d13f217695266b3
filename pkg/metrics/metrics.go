package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"key-service/internal/domain/transaction"

	"github.com/labstack/echo/v4"
)

// Metrics holds in-process request and transition counters.
// Thread-safe via atomics and mutex.
type Metrics struct {
	totalRequests     int64
	activeRequests    int64
	totalErrors       int64
	totalLatencyMs    int64
	maxLatencyMs      int64
	startTime         time.Time
	endpointCounts    map[string]int64
	endpointLatencies map[string]int64 // total ms per endpoint
	statusCodes       map[int]int64
	transitions       map[string]int64
	now               func() time.Time
	mu                sync.Mutex
}

func New() *Metrics {
	m := &Metrics{now: time.Now}
	m.resetLocked()
	return m
}

func (m *Metrics) resetLocked() {
	m.startTime = m.now()
	m.endpointCounts = make(map[string]int64)
	m.endpointLatencies = make(map[string]int64)
	m.statusCodes = make(map[int]int64)
	m.transitions = make(map[string]int64)
}

// Middleware tracks request count, latency, active connections, and error rates.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&m.activeRequests, 1)
			start := time.Now()

			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status is final.
				c.Error(err)
			}

			latencyMs := time.Since(start).Milliseconds()
			atomic.AddInt64(&m.activeRequests, -1)
			atomic.AddInt64(&m.totalRequests, 1)
			atomic.AddInt64(&m.totalLatencyMs, latencyMs)

			for {
				current := atomic.LoadInt64(&m.maxLatencyMs)
				if latencyMs <= current {
					break
				}
				if atomic.CompareAndSwapInt64(&m.maxLatencyMs, current, latencyMs) {
					break
				}
			}

			statusCode := c.Response().Status
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			endpoint := fmt.Sprintf("%s %s", c.Request().Method, path)

			m.mu.Lock()
			m.endpointCounts[endpoint]++
			m.endpointLatencies[endpoint] += latencyMs
			m.statusCodes[statusCode]++
			if statusCode >= http.StatusBadRequest {
				atomic.AddInt64(&m.totalErrors, 1)
			}
			m.mu.Unlock()

			return nil
		}
	}
}

// Publish counts committed transactions by type and status. It implements
// txlog.Publisher.
func (m *Metrics) Publish(t *transaction.Transaction) {
	m.mu.Lock()
	m.transitions[string(t.Type)+"/"+string(t.Status)]++
	m.mu.Unlock()
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	TotalRequests  int64            `json:"total_requests"`
	ActiveRequests int64            `json:"active_requests"`
	TotalErrors    int64            `json:"total_errors"`
	ErrorRate      float64          `json:"error_rate_pct"`
	AvgLatencyMs   float64          `json:"avg_latency_ms"`
	MaxLatencyMs   int64            `json:"max_latency_ms"`
	RequestsPerSec float64          `json:"requests_per_sec"`
	UptimeSeconds  float64          `json:"uptime_seconds"`
	EndpointCounts map[string]int64 `json:"endpoint_counts"`
	EndpointAvgMs  map[string]int64 `json:"endpoint_avg_latency_ms"`
	StatusCodes    map[int]int64    `json:"status_codes"`
	Transitions    map[string]int64 `json:"transitions"`
}

func (m *Metrics) Snapshot() Snapshot {
	total := atomic.LoadInt64(&m.totalRequests)
	errs := atomic.LoadInt64(&m.totalErrors)
	totalLatency := atomic.LoadInt64(&m.totalLatencyMs)

	var avgLatency, errorRate float64
	if total > 0 {
		avgLatency = float64(totalLatency) / float64(total)
		errorRate = float64(errs) / float64(total) * 100
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	uptime := m.now().Sub(m.startTime).Seconds()
	var perSec float64
	if uptime > 0 {
		perSec = float64(total) / uptime
	}

	endpointCounts := make(map[string]int64, len(m.endpointCounts))
	endpointAvg := make(map[string]int64, len(m.endpointLatencies))
	for k, v := range m.endpointCounts {
		endpointCounts[k] = v
		if v > 0 {
			endpointAvg[k] = m.endpointLatencies[k] / v
		}
	}
	statusCodes := make(map[int]int64, len(m.statusCodes))
	for k, v := range m.statusCodes {
		statusCodes[k] = v
	}
	transitions := make(map[string]int64, len(m.transitions))
	for k, v := range m.transitions {
		transitions[k] = v
	}

	return Snapshot{
		TotalRequests:  total,
		ActiveRequests: atomic.LoadInt64(&m.activeRequests),
		TotalErrors:    errs,
		ErrorRate:      errorRate,
		AvgLatencyMs:   avgLatency,
		MaxLatencyMs:   atomic.LoadInt64(&m.maxLatencyMs),
		RequestsPerSec: perSec,
		UptimeSeconds:  uptime,
		EndpointCounts: endpointCounts,
		EndpointAvgMs:  endpointAvg,
		StatusCodes:    statusCodes,
		Transitions:    transitions,
	}
}

func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.totalRequests, 0)
	atomic.StoreInt64(&m.activeRequests, 0)
	atomic.StoreInt64(&m.totalErrors, 0)
	atomic.StoreInt64(&m.totalLatencyMs, 0)
	atomic.StoreInt64(&m.maxLatencyMs, 0)
	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()
}

// RegisterRoutes adds the /metrics/requests endpoints to g. resetGuards
// protect the reset endpoint.
func (m *Metrics) RegisterRoutes(g *echo.Group, resetGuards ...echo.MiddlewareFunc) {
	g.GET("/requests", func(c echo.Context) error {
		return c.JSON(http.StatusOK, m.Snapshot())
	})
	g.POST("/requests/reset", func(c echo.Context) error {
		m.Reset()
		return c.JSON(http.StatusOK, map[string]string{"status": "metrics_reset"})
	}, resetGuards...)
}
