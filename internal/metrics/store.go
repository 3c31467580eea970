// Package metrics tracks per-tool and per-session execution counters.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ToolMetrics accumulates counters for one tool.
type ToolMetrics struct {
	Count           int64 `json:"count"`
	Successes       int64 `json:"successes"`
	Errors          int64 `json:"errors"`
	TotalDurationMS int64 `json:"total_duration_ms"`
}

// SessionActivity is one entry in the bounded recent-session list.
type SessionActivity struct {
	SessionID string    `json:"session_id"`
	ToolCalls int       `json:"tool_calls"`
	LastSeen  time.Time `json:"last_seen"`
}

// SystemMetrics is a point-in-time snapshot of all counters.
type SystemMetrics struct {
	TotalRequests   int64                  `json:"total_requests"`
	TotalToolCalls  int64                  `json:"total_tool_calls"`
	TotalDurationMS int64                  `json:"total_duration_ms"`
	Tools           map[string]ToolMetrics `json:"tools"`
	RecentSessions  []SessionActivity      `json:"recent_sessions"`
}

// recentSessionCap bounds the recent-session list.
const recentSessionCap = 50

// Store accumulates counters under a single lock and mirrors tool
// executions into prometheus collectors.
type Store struct {
	mu sync.Mutex

	totalRequests   int64
	totalToolCalls  int64
	totalDurationMS int64
	tools           map[string]*ToolMetrics
	recent          []SessionActivity

	promToolCalls *prometheus.CounterVec
	promDuration  *prometheus.HistogramVec
	promRequests  prometheus.Counter
}

// NewStore creates a store and registers its prometheus collectors on the
// given registerer (nil uses the default).
func NewStore(reg prometheus.Registerer) *Store {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Store{
		tools: make(map[string]*ToolMetrics),
		promToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stagehand_tool_calls_total",
			Help: "Tool executions by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		promDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stagehand_tool_duration_seconds",
			Help:    "Tool execution duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		promRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "stagehand_chat_requests_total",
			Help: "Chat requests handled.",
		}),
	}
}

// RecordRequest counts one chat request.
func (s *Store) RecordRequest() {
	s.mu.Lock()
	s.totalRequests++
	s.mu.Unlock()
	s.promRequests.Inc()
}

// RecordToolCall counts one tool execution.
func (s *Store) RecordToolCall(sessionID, tool string, success bool, duration time.Duration) {
	ms := duration.Milliseconds()

	s.mu.Lock()
	s.totalToolCalls++
	s.totalDurationMS += ms

	tm := s.tools[tool]
	if tm == nil {
		tm = &ToolMetrics{}
		s.tools[tool] = tm
	}
	tm.Count++
	tm.TotalDurationMS += ms
	if success {
		tm.Successes++
	} else {
		tm.Errors++
	}

	s.touchSession(sessionID)
	s.mu.Unlock()

	outcome := "success"
	if !success {
		outcome = "error"
	}
	s.promToolCalls.WithLabelValues(tool, outcome).Inc()
	s.promDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// touchSession moves the session to the front of the recent list,
// evicting the oldest entry past the cap. Caller holds s.mu.
func (s *Store) touchSession(sessionID string) {
	if sessionID == "" {
		return
	}
	for i := range s.recent {
		if s.recent[i].SessionID == sessionID {
			entry := s.recent[i]
			entry.ToolCalls++
			entry.LastSeen = time.Now()
			copy(s.recent[1:i+1], s.recent[:i])
			s.recent[0] = entry
			return
		}
	}
	entry := SessionActivity{SessionID: sessionID, ToolCalls: 1, LastSeen: time.Now()}
	s.recent = append([]SessionActivity{entry}, s.recent...)
	if len(s.recent) > recentSessionCap {
		s.recent = s.recent[:recentSessionCap]
	}
}

// Snapshot returns a copy of all counters.
func (s *Store) Snapshot() SystemMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	tools := make(map[string]ToolMetrics, len(s.tools))
	for name, tm := range s.tools {
		tools[name] = *tm
	}
	recent := make([]SessionActivity, len(s.recent))
	copy(recent, s.recent)

	return SystemMetrics{
		TotalRequests:   s.totalRequests,
		TotalToolCalls:  s.totalToolCalls,
		TotalDurationMS: s.totalDurationMS,
		Tools:           tools,
		RecentSessions:  recent,
	}
}

// Reset clears every counter atomically. Prometheus counters are
// monotonic by contract and are left untouched.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalRequests = 0
	s.totalToolCalls = 0
	s.totalDurationMS = 0
	s.tools = make(map[string]*ToolMetrics)
	s.recent = nil
}
