package transports

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxLine bounds one streamed event line.
const maxLine = 4 << 20

// HTTPTransport implements EventsTransport over the HTTP API.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	creds   Credentials
}

// NewHTTPTransport constructs a transport for baseURL (e.g. http://127.0.0.1:5665).
// A nil client uses a client without timeout, as streams are long-lived.
func NewHTTPTransport(baseURL string, client *http.Client, creds Credentials) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{baseURL: strings.TrimRight(baseURL, "/"), client: client, creds: creds}
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if t.creds.Name != "" {
		req.SetBasicAuth(t.creds.Name, t.creds.Password)
	}
	return t.client.Do(req)
}

// apiError decodes {"error":code,"status":"message"} error bodies.
func apiError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e struct {
		Error  int    `json:"error"`
		Status string `json:"status"`
	}
	if json.Unmarshal(b, &e) == nil && e.Status != "" {
		return fmt.Errorf("%s: %s", resp.Status, e.Status)
	}
	return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(b)))
}

// Subscribe posts to /v1/events and reads newline-delimited JSON.
func (t *HTTPTransport) Subscribe(ctx context.Context, req SubscribeRequest, onEvent func([]byte) error) error {
	body, err := json.Marshal(map[string]any{"types": req.Types, "queue": req.Queue, "filter": req.Filter})
	if err != nil {
		return err
	}
	resp, err := t.do(ctx, http.MethodPost, "/v1/events", body)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	cb := counted(req.Limit, onEvent)
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := cb(line); err != nil {
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// Publish posts to /v1/events/publish.
func (t *HTTPTransport) Publish(ctx context.Context, data []byte) (int, error) {
	resp, err := t.do(ctx, http.MethodPost, "/v1/events/publish", data)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		return 0, apiError(resp)
	}
	var out struct {
		Published int `json:"published"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Published, nil
}

// Queues returns the raw JSON of /v1/queues, or /v1/queues/{name} when
// name is set.
func (t *HTTPTransport) Queues(ctx context.Context, name string) ([]byte, error) {
	path := "/v1/queues"
	if name != "" {
		path += "/" + url.PathEscape(name)
	}
	resp, err := t.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	return io.ReadAll(resp.Body)
}
