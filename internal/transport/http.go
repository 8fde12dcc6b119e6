package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTP is the streamable-HTTP upstream transport: one POST per outbound
// message, JSON-RPC responses correlated by ID by the caller. Adapted
// from internal/downstream/http_instance.go's doRPC/readSSEResponse.
type HTTP struct {
	ServerID string
	URL      string
	Headers  http.Header
	Client   *http.Client

	mu        sync.Mutex
	sessionID string
	closed    bool

	onMsg MessageHandler
	onErr ErrorHandler
}

func NewHTTP(serverID, url string, headers http.Header) *HTTP {
	return &HTTP{
		ServerID: serverID,
		URL:      url,
		Headers:  headers,
		Client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (h *HTTP) OnMessage(handler MessageHandler) { h.mu.Lock(); h.onMsg = handler; h.mu.Unlock() }
func (h *HTTP) OnError(handler ErrorHandler)      { h.mu.Lock(); h.onErr = handler; h.mu.Unlock() }

// Start is a no-op for HTTP: there is no persistent connection to
// establish, only the per-request POST. It exists to satisfy Transport.
func (h *HTTP) Start(ctx context.Context) error { return nil }

func (h *HTTP) Send(ctx context.Context, msg json.RawMessage) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	sid := h.sessionID
	h.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(msg))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, vals := range h.Headers {
		if strings.EqualFold(k, "Content-Type") {
			continue
		}
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if sid != "" {
		req.Header.Set("Mcp-Session-Id", sid)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		te := &TransportError{Err: fmt.Errorf("http post: %w", err)}
		h.fireErr(te)
		return te
	}
	defer resp.Body.Close()

	if v := resp.Header.Get("Mcp-Session-Id"); v != "" {
		h.mu.Lock()
		h.sessionID = v
		h.mu.Unlock()
	}

	isNotification := isNotificationMsg(msg)

	if resp.StatusCode == http.StatusUnauthorized {
		return &TransportError{Err: fmt.Errorf("upstream requires authentication")}
	}
	if isNotification {
		if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
			return nil
		}
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notification failed (%d): %s", resp.StatusCode, body)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http %d: %s", resp.StatusCode, body)
	}

	ct := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "text/event-stream") {
		return h.deliverSSEBody(resp.Body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	h.deliver(body)
	return nil
}

func (h *HTTP) deliverSSEBody(body io.Reader) error {
	dec := &LineDecoder{}
	buf := make([]byte, 64*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, line := range dec.Feed(buf[:n]) {
				s := string(line)
				if !strings.HasPrefix(s, "data:") {
					continue
				}
				data := strings.TrimSpace(strings.TrimPrefix(s, "data:"))
				if data == "" {
					continue
				}
				h.deliver([]byte(data))
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read sse stream: %w", err)
		}
	}
}

func (h *HTTP) deliver(raw []byte) {
	var js json.RawMessage
	if err := json.Unmarshal(raw, &js); err != nil {
		return
	}
	h.mu.Lock()
	handler := h.onMsg
	h.mu.Unlock()
	if handler != nil {
		handler(js)
	}
}

func (h *HTTP) fireErr(err error) {
	h.mu.Lock()
	handler := h.onErr
	h.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

func (h *HTTP) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

func isNotificationMsg(msg json.RawMessage) bool {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(msg, &probe); err != nil {
		return false
	}
	return len(probe.ID) == 0
}
