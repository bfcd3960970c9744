// Gateway module - HTTP server

package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gamedex/gamedex/agent"
	"github.com/gamedex/gamedex/cron"
	"github.com/gamedex/gamedex/pkg/config"
)

// writeJSON writes a JSON response with proper Content-Type header
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WARN] Failed to encode JSON response: %v", err)
	}
}

// Lookup mirrors a stored game lookup record
type Lookup struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	View      string `json:"view"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"createdAt"`
}

// RateLimiter checks whether a request is within its hourly budget
type RateLimiter interface {
	CheckRateLimit(endpoint, key string) (bool, error)
}

// Gateway serves the HTTP and WebSocket API in front of the agent
type Gateway struct {
	cfg         config.GatewayConfig
	agent       *agent.Agent
	cronHandler *cron.CronHandler
	server      *http.Server
	limiter     RateLimiter
	mu          sync.RWMutex

	// WebSocket connection limiting
	wsConnCount int32
	maxWSConns  int32
	wsIPConns   map[string]int32
}

// New creates a Gateway wired to an in-process agent
func New(cfg config.GatewayConfig, a *agent.Agent, cronHandler *cron.CronHandler) *Gateway {
	g := &Gateway{
		cfg:         cfg,
		agent:       a,
		cronHandler: cronHandler,
		maxWSConns:  50,
		wsIPConns:   make(map[string]int32),
	}

	if g.cfg.Port == 0 {
		g.cfg.Port = config.DefaultGatewayPort
	}
	if g.cfg.Host == "" {
		g.cfg.Host = "0.0.0.0"
	}
	if g.cfg.MaxBodyChat == 0 {
		g.cfg.MaxBodyChat = 2 * 1024 * 1024
	}
	if g.cfg.MaxBodyCron == 0 {
		g.cfg.MaxBodyCron = 256 * 1024
	}
	if g.cfg.ReadTimeout == 0 {
		g.cfg.ReadTimeout = 120 * time.Second
	}
	if g.cfg.WriteTimeout == 0 {
		g.cfg.WriteTimeout = 180 * time.Second
	}
	if g.cfg.IdleTimeout == 0 {
		g.cfg.IdleTimeout = 300 * time.Second
	}
	return g
}

// SetRateLimiter sets the store used for per-endpoint rate limiting
func (g *Gateway) SetRateLimiter(l RateLimiter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limiter = l
}

// Config returns the gateway configuration
func (g *Gateway) Config() config.GatewayConfig {
	return g.cfg
}

func (g *Gateway) validateToken(r *http.Request) bool {
	token := strings.TrimSpace(g.cfg.AuthToken)
	if token == "" {
		// No token configured means an open gateway
		return true
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) >= 7 && strings.EqualFold(header[:7], "Bearer ") {
		candidate := strings.TrimSpace(header[7:])
		if len(candidate) == len(token) && subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			return true
		}
	}

	queryToken := strings.TrimSpace(r.URL.Query().Get("token"))
	if len(queryToken) == len(token) && subtle.ConstantTimeCompare([]byte(queryToken), []byte(token)) == 1 {
		return true
	}

	return false
}

func (g *Gateway) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.validateToken(r) {
			http.Error(w, "unauthorized: invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (g *Gateway) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.mu.RLock()
		limiter := g.limiter
		g.mu.RUnlock()
		if limiter == nil {
			next(w, r)
			return
		}

		key := r.Header.Get("Authorization")
		if key == "" {
			key = r.RemoteAddr
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				key = host
			}
		}

		allowed, err := limiter.CheckRateLimit(r.URL.Path, key)
		if err != nil {
			log.Printf("[WARN] rate limit check failed: %v", err)
			http.Error(w, "rate limit unavailable", http.StatusServiceUnavailable)
			return
		}
		if !allowed {
			w.Header().Set("X-RateLimit-RetryAfter", "3600")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next(w, r)
	}
}

// addCORS wraps an HTTP handler with CORS headers
func (g *Gateway) addCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler builds the full route table
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	requireAuth := g.requireAuth
	rateLimit := g.rateLimit

	// Health check - no auth required
	mux.HandleFunc("/healthz", g.handleHealth)

	mux.HandleFunc("/api/chat", rateLimit(requireAuth(g.handleChat)))
	mux.HandleFunc("/api/lookups", requireAuth(g.handleLookups))
	mux.HandleFunc("/api/sessions", requireAuth(g.handleSessions))
	mux.HandleFunc("/api/stats", requireAuth(g.handleStats))
	mux.HandleFunc("/api/config", requireAuth(g.handleConfig))

	// Cron admin
	mux.HandleFunc("/api/cron/jobs", requireAuth(g.handleCronJobs))
	mux.HandleFunc("/api/cron/run", requireAuth(g.handleCronRun))
	mux.HandleFunc("/api/cron/runs", requireAuth(g.handleCronRuns))
	mux.HandleFunc("/api/cron/status", requireAuth(g.handleCronStatus))

	// WebSocket endpoint for real-time chat
	mux.HandleFunc("/ws/chat", g.HandleWebSocket)

	return g.addCORS(mux)
}

// Start runs the HTTP server until Stop or a listen error
func (g *Gateway) Start() error {
	addr := fmt.Sprintf("%s:%d", g.cfg.Host, g.cfg.Port)
	g.server = &http.Server{
		Addr:         addr,
		Handler:      g.Handler(),
		ReadTimeout:  g.cfg.ReadTimeout,
		WriteTimeout: g.cfg.WriteTimeout,
		IdleTimeout:  g.cfg.IdleTimeout,
	}
	log.Printf("Gateway listening on %s", addr)
	return g.server.ListenAndServe()
}

// Stop shuts the server down gracefully
func (g *Gateway) Stop() {
	if g.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := g.server.Shutdown(ctx); err != nil {
		log.Printf("Gateway graceful shutdown failed: %v", err)
		g.server.Close()
	}
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ChatRequest is the one-shot chat request body
type ChatRequest struct {
	SessionKey string `json:"sessionKey,omitempty"`
	Message    string `json:"message"`
}

// ChatResponse is the one-shot chat reply
type ChatResponse struct {
	Reply string `json:"reply"`
}

func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if g.agent == nil {
		http.Error(w, "agent not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, g.cfg.MaxBodyChat))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	var reply string
	if req.SessionKey != "" {
		reply, err = g.agent.ChatWithSession(r.Context(), req.SessionKey, req.Message)
	} else {
		reply, err = g.agent.Chat(r.Context(), req.Message)
	}
	if err != nil {
		log.Printf("[ERROR] chat failed: %v", err)
		http.Error(w, "chat failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, ChatResponse{Reply: reply})
}

func (g *Gateway) handleLookups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if g.agent == nil || g.agent.Store() == nil {
		http.Error(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}

	lookups, err := g.agent.Store().GetRecentLookups(limit)
	if err != nil {
		http.Error(w, "lookups: "+err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]Lookup, 0, len(lookups))
	for _, l := range lookups {
		out = append(out, Lookup{
			ID:        l.ID,
			Name:      l.Name,
			Title:     l.Title,
			View:      l.View,
			Kind:      l.Kind,
			CreatedAt: l.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, map[string]interface{}{"lookups": out})
}

func (g *Gateway) handleSessions(w http.ResponseWriter, r *http.Request) {
	if g.agent == nil || g.agent.Store() == nil {
		http.Error(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		// With a key, return a transcript preview of that session
		if key := r.URL.Query().Get("key"); key != "" {
			limit := 20
			if v := r.URL.Query().Get("limit"); v != "" {
				fmt.Sscanf(v, "%d", &limit)
			}
			summary, err := g.agent.SessionSummary(key, limit)
			if err != nil {
				http.Error(w, "session: "+err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, map[string]interface{}{"sessionKey": key, "summary": summary})
			return
		}
		sessions, err := g.agent.Store().GetAllSessions()
		if err != nil {
			http.Error(w, "sessions: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"sessions": sessions})
	case http.MethodDelete:
		key := r.URL.Query().Get("key")
		if key == "" {
			http.Error(w, "key is required", http.StatusBadRequest)
			return
		}
		if err := g.agent.Store().ResetSession(key); err != nil {
			http.Error(w, "reset: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if g.agent == nil || g.agent.Store() == nil {
		http.Error(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}
	stats, err := g.agent.Store().Stats()
	if err != nil {
		http.Error(w, "stats: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

// ConfigEntry is the body for config writes
type ConfigEntry struct {
	Section string `json:"section"`
	Key     string `json:"key"`
	Value   string `json:"value"`
}

// handleConfig serves persisted runtime settings (e.g. provider tweaks an
// admin sets without restarting), backed by the storage config table
func (g *Gateway) handleConfig(w http.ResponseWriter, r *http.Request) {
	if g.agent == nil || g.agent.Store() == nil {
		http.Error(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}
	store := g.agent.Store()

	switch r.Method {
	case http.MethodGet:
		section := r.URL.Query().Get("section")
		if section == "" {
			http.Error(w, "section is required", http.StatusBadRequest)
			return
		}
		if key := r.URL.Query().Get("key"); key != "" {
			value, err := store.GetConfig(section, key)
			if err != nil {
				http.Error(w, "config: "+err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, ConfigEntry{Section: section, Key: key, Value: value})
			return
		}
		values, err := store.GetConfigSection(section)
		if err != nil {
			http.Error(w, "config: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"section": section, "values": values})

	case http.MethodPost, http.MethodPut:
		body, err := io.ReadAll(io.LimitReader(r.Body, g.cfg.MaxBodyCron))
		if err != nil {
			http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
			return
		}
		var entry ConfigEntry
		if err := json.Unmarshal(body, &entry); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if entry.Section == "" || entry.Key == "" {
			http.Error(w, "section and key are required", http.StatusBadRequest)
			return
		}
		if err := store.SetConfig(entry.Section, entry.Key, entry.Value); err != nil {
			http.Error(w, "config: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"ok": true})

	case http.MethodDelete:
		section := r.URL.Query().Get("section")
		key := r.URL.Query().Get("key")
		if section == "" || key == "" {
			http.Error(w, "section and key are required", http.StatusBadRequest)
			return
		}
		if err := store.DeleteConfig(section, key); err != nil {
			http.Error(w, "config: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"ok": true})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCronJobs serves job CRUD on one path, switched by method
func (g *Gateway) handleCronJobs(w http.ResponseWriter, r *http.Request) {
	if g.cronHandler == nil {
		http.Error(w, "cron not configured", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if id := r.URL.Query().Get("id"); id != "" {
			job, ok := g.cronHandler.GetJob(id)
			if !ok {
				http.Error(w, "job not found", http.StatusNotFound)
				return
			}
			writeJSON(w, job)
			return
		}
		writeJSON(w, map[string]interface{}{"jobs": g.cronHandler.ListJobs()})

	case http.MethodPost:
		spec, ok := g.readCronBody(w, r)
		if !ok {
			return
		}
		job, err := cron.CreateJobFromMap(spec)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := g.cronHandler.AddJob(job); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, job)

	case http.MethodPut:
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "id is required", http.StatusBadRequest)
			return
		}
		patch, ok := g.readCronBody(w, r)
		if !ok {
			return
		}
		job, err := g.cronHandler.UpdateJob(id, patch)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, job)

	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "id is required", http.StatusBadRequest)
			return
		}
		if err := g.cronHandler.RemoveJob(id); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]interface{}{"ok": true})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) readCronBody(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, g.cfg.MaxBodyCron))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return m, true
}

func (g *Gateway) handleCronRun(w http.ResponseWriter, r *http.Request) {
	if g.cronHandler == nil {
		http.Error(w, "cron not configured", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	if err := g.cronHandler.RunJob(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]interface{}{"ok": true})
}

func (g *Gateway) handleCronRuns(w http.ResponseWriter, r *http.Request) {
	if g.cronHandler == nil {
		http.Error(w, "cron not configured", http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	writeJSON(w, map[string]interface{}{"runs": g.cronHandler.GetRuns(r.URL.Query().Get("id"), limit)})
}

func (g *Gateway) handleCronStatus(w http.ResponseWriter, r *http.Request) {
	if g.cronHandler == nil {
		http.Error(w, "cron not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, g.cronHandler.GetStatus())
}
