package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// SSE is the server-sent-events upstream transport: a persistent GET
// stream of `data:` lines, with outbound requests posted to a peer
// endpoint supplied by the server's `endpoint` frame (standard MCP SSE
// convention). Grounded on the data:-line parsing idiom shared by the
// teacher's HTTPInstance.readSSEResponse and the event framing in the
// golang-tools streamable-HTTP reference.
type SSE struct {
	ServerID string
	URL      string
	Headers  http.Header
	Client   *http.Client

	mu         sync.Mutex
	postURL    string
	closed     bool
	cancelFunc context.CancelFunc

	onMsg MessageHandler
	onErr ErrorHandler
}

func NewSSE(serverID, url string, headers http.Header) *SSE {
	return &SSE{ServerID: serverID, URL: url, Headers: headers, Client: http.DefaultClient}
}

func (s *SSE) OnMessage(h MessageHandler) { s.mu.Lock(); s.onMsg = h; s.mu.Unlock() }
func (s *SSE) OnError(h ErrorHandler)      { s.mu.Lock(); s.onErr = h; s.mu.Unlock() }

func (s *SSE) Start(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancelFunc = cancel
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, s.URL, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("create sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, vals := range s.Headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("open sse stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("sse stream returned %d", resp.StatusCode)
	}

	// The first frame the server sends is conventionally an `endpoint`
	// event naming the URL outbound requests must be POSTed to. Until
	// it arrives, Send posts to the stream URL itself.
	go s.readLoop(resp)

	return nil
}

func (s *SSE) readLoop(resp *http.Response) {
	defer resp.Body.Close()

	dec := &LineDecoder{}
	var pendingEvent string
	buf := make([]byte, 64*1024)

	deliverFrame := func(event, data string) {
		switch {
		case event == "endpoint":
			s.mu.Lock()
			s.postURL = strings.TrimSpace(data)
			s.mu.Unlock()
		case event == "ping", data == "":
			// heartbeat: reset idle timer upstream, no message produced
		default:
			var js json.RawMessage
			if err := json.Unmarshal([]byte(data), &js); err != nil {
				return
			}
			s.mu.Lock()
			h := s.onMsg
			s.mu.Unlock()
			if h != nil {
				h(js)
			}
		}
	}

	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, line := range dec.Feed(buf[:n]) {
				text := string(line)
				switch {
				case text == "":
					pendingEvent = ""
				case strings.HasPrefix(text, "event:"):
					pendingEvent = strings.TrimSpace(strings.TrimPrefix(text, "event:"))
				case strings.HasPrefix(text, "data:"):
					data := strings.TrimSpace(strings.TrimPrefix(text, "data:"))
					deliverFrame(pendingEvent, data)
				}
			}
		}
		if err != nil {
			s.mu.Lock()
			closing := s.closed
			handler := s.onErr
			s.closed = true
			s.mu.Unlock()
			if !closing && handler != nil {
				handler(&TransportError{Err: fmt.Errorf("sse stream closed: %w", err)})
			}
			return
		}
	}
}

func (s *SSE) Send(ctx context.Context, msg json.RawMessage) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	postURL := s.postURL
	if postURL == "" {
		postURL = s.URL
	}
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, strings.NewReader(string(msg)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vals := range s.Headers {
		if strings.EqualFold(k, "Content-Type") {
			continue
		}
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post to sse endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sse endpoint post returned %d", resp.StatusCode)
	}
	// Response, if any, arrives asynchronously on the GET stream.
	return nil
}

func (s *SSE) Close() error {
	s.mu.Lock()
	s.closed = true
	cancel := s.cancelFunc
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
