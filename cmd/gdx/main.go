// gdx is a terminal chat client for the gamedex gateway
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/gamedex/gamedex/pkg/config"
)

// Envelope mirrors the gateway WebSocket message format
type Envelope struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

type chatRequest struct {
	SessionKey string `json:"sessionKey,omitempty"`
	Message    string `json:"message"`
}

type chatResponse struct {
	Content string `json:"content"`
	Finish  bool   `json:"finish"`
	Error   string `json:"error,omitempty"`
}

func main() {
	gatewayURL := flag.String("gateway", config.DefaultGatewayURL(), "gateway base URL")
	token := flag.String("token", os.Getenv("GAMEDEX_AUTH_TOKEN"), "gateway auth token")
	session := flag.String("session", "gdx", "session key for conversation history")
	flag.Parse()

	wsURL, err := buildWSURL(*gatewayURL, *token)
	if err != nil {
		log.Fatalf("gateway url: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("connect %s: %v", wsURL, err)
	}
	defer conn.Close()

	fmt.Println("Connected to gamedex. Ask about a game, or type /quit to exit.")

	// replies carries chat output from the read loop to the prompt loop
	replies := make(chan chatResponse)
	go readLoop(conn, replies)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		if err := sendChat(conn, *session, line); err != nil {
			log.Fatalf("send: %v", err)
		}

		resp, ok := <-replies
		if !ok {
			log.Fatal("connection closed")
		}
		if resp.Error != "" {
			fmt.Printf("error: %s\n", resp.Error)
			continue
		}
		fmt.Println(resp.Content)
	}
}

// buildWSURL converts an http(s) base URL into the ws chat endpoint
func buildWSURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	u.Path = "/ws/chat"
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func sendChat(conn *websocket.Conn, session, message string) error {
	content, err := json.Marshal(chatRequest{SessionKey: session, Message: message})
	if err != nil {
		return err
	}
	return conn.WriteJSON(Envelope{Type: "chat", Content: content})
}

// readLoop answers pings and forwards chat frames
func readLoop(conn *websocket.Conn, replies chan<- chatResponse) {
	defer close(replies)
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}

		switch env.Type {
		case "ping":
			if err := conn.WriteJSON(Envelope{Type: "pong"}); err != nil {
				return
			}
		case "done", "error":
			var resp chatResponse
			if err := json.Unmarshal(env.Content, &resp); err != nil {
				resp = chatResponse{Error: "malformed response: " + err.Error()}
			}
			replies <- resp
		}
	}
}
