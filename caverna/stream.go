package caverna

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// maxEventSize bounds a single SSE line; results with phoneme lists can be large
const maxEventSize = 4 * 1024 * 1024

// ErrStreamClosed is returned by Next after Close
var ErrStreamClosed = errors.New("stream closed")

// EventStream is an open /processing-stream connection
type EventStream struct {
	sessionID string
	resp      *http.Response
	scanner   *bufio.Scanner
	cancel    context.CancelFunc

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// ProcessingStreamURL builds the push stream URL for a session
func (c *Client) ProcessingStreamURL(sessionID string) string {
	return c.baseURL + "/processing-stream?session_id=" + url.QueryEscape(sessionID)
}

// OpenProcessingStream connects to the server-sent event stream of a session.
// It returns once the server has accepted the stream.
func (c *Client) OpenProcessingStream(ctx context.Context, sessionID string) (*EventStream, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	streamURL := c.ProcessingStreamURL(sessionID)
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set(RequestIDHeader, uuid.NewString())

	c.logger.Debug().Str("session_id", sessionID).Msg("connecting to processing stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("connect: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "processing stream refused"}
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/event-stream") {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("unexpected content-type: %s (expected text/event-stream)", contentType)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	return &EventStream{
		sessionID: sessionID,
		resp:      resp,
		scanner:   scanner,
		cancel:    cancel,
	}, nil
}

// SessionID returns the session the stream is scoped to
func (s *EventStream) SessionID() string {
	return s.sessionID
}

// Next blocks until the next event and returns its data payload. Comment
// lines and events without data (heartbeats) are skipped. io.EOF-like
// conditions surface as errors so the caller can reconnect.
func (s *EventStream) Next() ([]byte, error) {
	var dataLines []string

	for s.scanner.Scan() {
		line := s.scanner.Text()

		switch {
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimPrefix(line, "data:")
			dataLines = append(dataLines, strings.TrimPrefix(data, " "))
		case line == "":
			if len(dataLines) > 0 {
				return []byte(strings.Join(dataLines, "\n")), nil
			}
		}
		// event:, id: and retry: fields carry nothing the tracker needs
	}

	if s.Closed() {
		return nil, ErrStreamClosed
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return nil, fmt.Errorf("stream ended by server")
}

// Close releases the connection. It is safe to call more than once.
func (s *EventStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		err = s.resp.Body.Close()
	})
	return err
}

// Closed reports whether Close was called
func (s *EventStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
