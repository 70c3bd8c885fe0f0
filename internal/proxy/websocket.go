// Package proxy relays DevTools websocket traffic between a client and the
// browser held by the session.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/gemini-bridge/pkg/models"
)

const dialTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EndpointSource reports the CDP endpoint of the live browser, or "" when there is none
type EndpointSource interface {
	DebugURL() string
}

type Server struct {
	source EndpointSource
	client *http.Client
	logger *zap.Logger
}

func NewServer(source EndpointSource, logger *zap.Logger) *Server {
	return &Server{
		source: source,
		client: &http.Client{Timeout: dialTimeout},
		logger: logger,
	}
}

// HandleDebugConnection upgrades the request and pipes frames to and from the browser
func (s *Server) HandleDebugConnection(w http.ResponseWriter, r *http.Request) {
	endpoint := s.source.DebugURL()
	if endpoint == "" {
		writeError(w, http.StatusConflict, "No debug endpoint",
			"No browser session with a DevTools endpoint is running")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dialTimeout)
	defer cancel()

	chromeURL, err := s.resolve(ctx, endpoint)
	if err != nil {
		s.logger.Warn("Failed to resolve DevTools endpoint", zap.String("endpoint", endpoint), zap.Error(err))
		writeError(w, http.StatusBadGateway, "Debug endpoint unavailable", err.Error())
		return
	}

	chromeConn, _, err := websocket.DefaultDialer.DialContext(ctx, chromeURL, nil)
	if err != nil {
		s.logger.Warn("Failed to connect to browser", zap.String("url", chromeURL), zap.Error(err))
		writeError(w, http.StatusBadGateway, "Debug endpoint unavailable", err.Error())
		return
	}
	defer chromeConn.Close()

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}
	defer clientConn.Close()

	s.logger.Info("Debug client connected", zap.String("browser", chromeURL))

	errChan := make(chan error, 2)

	go func() {
		errChan <- s.proxyMessages(clientConn, chromeConn, "client→browser")
	}()

	go func() {
		errChan <- s.proxyMessages(chromeConn, clientConn, "browser→client")
	}()

	// either direction closing ends the session
	err = <-errChan
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Debug("Debug proxy ended", zap.Error(err))
	}

	s.logger.Info("Debug client disconnected")
}

// resolve turns an http DevTools address into its browser websocket URL.
// Websocket URLs are returned unchanged.
func (s *Server) resolve(ctx context.Context, endpoint string) (string, error) {
	if strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		return endpoint, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(endpoint, "/")+"/json/version", nil)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("query version endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("version endpoint returned %s", resp.Status)
	}

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return "", fmt.Errorf("decode version endpoint: %w", err)
	}
	if version.WebSocketDebuggerURL == "" {
		return "", errors.New("version endpoint reported no webSocketDebuggerUrl")
	}

	return version.WebSocketDebuggerURL, nil
}

func (s *Server) proxyMessages(src, dst *websocket.Conn, direction string) error {
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("WebSocket error", zap.String("direction", direction), zap.Error(err))
			}
			return err
		}

		if err := dst.WriteMessage(messageType, message); err != nil {
			s.logger.Warn("Failed to write message", zap.String("direction", direction), zap.Error(err))
			return err
		}
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: code, Message: message})
}
