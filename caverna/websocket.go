package caverna

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSStream carries the same JSON events as EventStream over a WebSocket
type WSStream struct {
	sessionID string
	conn      *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// ProcessingSocketURL builds the WebSocket URL for a session
func (c *Client) ProcessingSocketURL(sessionID string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/processing-ws?session_id=" + url.QueryEscape(sessionID)
}

// OpenProcessingSocket dials the WebSocket variant of the processing stream
func (c *Client) OpenProcessingSocket(ctx context.Context, sessionID string) (*WSStream, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
	}

	header := http.Header{}
	header.Set(RequestIDHeader, uuid.NewString())

	socketURL := c.ProcessingSocketURL(sessionID)
	c.logger.Debug().Str("session_id", sessionID).Msg("connecting to processing socket")

	conn, resp, err := dialer.DialContext(ctx, socketURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WSStream{sessionID: sessionID, conn: conn}, nil
}

// SessionID returns the session the socket is scoped to
func (s *WSStream) SessionID() string {
	return s.sessionID
}

// Next blocks until the next text frame and returns it
func (s *WSStream) Next() ([]byte, error) {
	for {
		msgType, message, err := s.conn.ReadMessage()
		if err != nil {
			if s.Closed() {
				return nil, ErrStreamClosed
			}
			return nil, fmt.Errorf("WebSocket read error: %w", err)
		}
		if msgType == websocket.TextMessage && len(message) > 0 {
			return message, nil
		}
	}
}

// Close sends a close frame and releases the connection
func (s *WSStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return s.conn.Close()
}

// Closed reports whether Close was called
func (s *WSStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
