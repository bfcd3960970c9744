// WebSocket handler for real-time chat

package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// WebSocket message types
const (
	MsgTypeChat  = "chat"
	MsgTypeDone  = "done"
	MsgTypeError = "error"
	MsgTypePing  = "ping"
	MsgTypePong  = "pong"
)

// WSMessage represents a WebSocket message envelope
type WSMessage struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// WSChatRequest represents a chat request via WebSocket
type WSChatRequest struct {
	SessionKey string `json:"sessionKey,omitempty"`
	Message    string `json:"message"`
}

// WSChatResponse represents a chat response via WebSocket
type WSChatResponse struct {
	Content string `json:"content"`
	Finish  bool   `json:"finish"`
	Error   string `json:"error,omitempty"`
}

// HandleWebSocket handles WebSocket upgrade requests
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !g.validateToken(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Global connection cap
	if atomic.AddInt32(&g.wsConnCount, 1) > g.maxWSConns {
		atomic.AddInt32(&g.wsConnCount, -1)
		http.Error(w, "too many WebSocket connections", http.StatusServiceUnavailable)
		return
	}

	// Per-IP cap
	ip := getClientIP(r)
	g.mu.Lock()
	if g.wsIPConns == nil {
		g.wsIPConns = make(map[string]int32)
	}
	g.wsIPConns[ip]++
	ipLimit := int32(10)
	if g.wsIPConns[ip] > ipLimit {
		g.wsIPConns[ip]--
		g.mu.Unlock()
		atomic.AddInt32(&g.wsConnCount, -1)
		http.Error(w, "too many connections from this IP", http.StatusServiceUnavailable)
		return
	}
	g.mu.Unlock()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		log.Printf("[WS] Accept error: %v", err)
		atomic.AddInt32(&g.wsConnCount, -1)
		g.mu.Lock()
		g.wsIPConns[ip]--
		if g.wsIPConns[ip] <= 0 {
			delete(g.wsIPConns, ip)
		}
		g.mu.Unlock()
		return
	}
	conn.SetReadLimit(2 * 1024 * 1024)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g.handleWSConnection(ctx, conn, ip)
}

func (g *Gateway) handleWSConnection(ctx context.Context, conn *websocket.Conn, clientIP string) {
	defer func() {
		conn.Close(websocket.StatusNormalClosure, "")
		atomic.AddInt32(&g.wsConnCount, -1)
		if clientIP != "" {
			g.mu.Lock()
			if g.wsIPConns != nil {
				g.wsIPConns[clientIP]--
				if g.wsIPConns[clientIP] <= 0 {
					delete(g.wsIPConns, clientIP)
				}
			}
			g.mu.Unlock()
		}
	}()

	// Serializes writes; coder/websocket is not safe for concurrent writers
	writeMu := sync.Mutex{}

	pingCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ping goroutine to detect dead connections
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := writeWS(conn, &writeMu, WSMessage{Type: MsgTypePing}); err != nil {
					log.Printf("[WS] Ping failed, closing connection: %v", err)
					conn.Close(websocket.StatusNormalClosure, "")
					return
				}
			}
		}
	}()

	for {
		_, msgBytes, err := conn.Read(ctx)
		if err != nil {
			log.Printf("[WS] Read error: %v", err)
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			g.sendWSError(conn, &writeMu, "invalid message format")
			continue
		}

		switch msg.Type {
		case MsgTypeChat:
			// Run in a goroutine so the read loop keeps servicing ping/pong
			// while the agent turn is in flight
			go g.handleWSChat(ctx, conn, &writeMu, msg.Content)
		case MsgTypePing:
			if err := writeWS(conn, &writeMu, WSMessage{Type: MsgTypePong}); err != nil {
				log.Printf("[WS] Pong write failed, closing connection: %v", err)
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		case MsgTypePong:
			// Connection alive, do nothing
		default:
			log.Printf("[WS] Unknown message type: %s", msg.Type)
		}
	}
}

func (g *Gateway) handleWSChat(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex, content json.RawMessage) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Content can be an object or a stringified object
	var req WSChatRequest
	if err := json.Unmarshal(content, &req); err != nil {
		var contentStr string
		if err := json.Unmarshal(content, &contentStr); err != nil {
			g.sendWSError(conn, writeMu, "invalid request: "+err.Error())
			return
		}
		if err := json.Unmarshal([]byte(contentStr), &req); err != nil {
			g.sendWSError(conn, writeMu, "invalid request content: "+err.Error())
			return
		}
	}

	if strings.TrimSpace(req.Message) == "" {
		g.sendWSError(conn, writeMu, "message is required")
		return
	}
	if g.agent == nil {
		g.sendWSError(conn, writeMu, "agent not configured")
		return
	}

	log.Printf("[WS] Received message: session=%s len=%d", req.SessionKey, len(req.Message))

	var reply string
	var err error
	if req.SessionKey != "" {
		reply, err = g.agent.ChatWithSession(ctx, req.SessionKey, req.Message)
	} else {
		reply, err = g.agent.Chat(ctx, req.Message)
	}
	if err != nil {
		g.sendWSError(conn, writeMu, "chat error: "+err.Error())
		return
	}

	if err := g.sendWSResponse(conn, writeMu, MsgTypeDone, WSChatResponse{
		Content: reply,
		Finish:  true,
	}); err != nil {
		log.Printf("[WS] Final write error: %v", err)
	}
}

func (g *Gateway) sendWSResponse(conn *websocket.Conn, writeMu *sync.Mutex, msgType string, resp WSChatResponse) error {
	respBytes, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return writeWS(conn, writeMu, WSMessage{Type: msgType, Content: respBytes})
}

func (g *Gateway) sendWSError(conn *websocket.Conn, writeMu *sync.Mutex, errMsg string) {
	if err := g.sendWSResponse(conn, writeMu, MsgTypeError, WSChatResponse{
		Error:  errMsg,
		Finish: true,
	}); err != nil {
		log.Printf("[WS] Error send: %v", err)
	}
}

// writeWS marshals and writes one envelope under the connection write lock
func writeWS(conn *websocket.Conn, writeMu *sync.Mutex, msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	writeMu.Lock()
	defer writeMu.Unlock()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

// getClientIP extracts the client IP from an HTTP request (handles proxies)
func getClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
