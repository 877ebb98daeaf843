// Package client talks to a running rnsgate API from the command line.
package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const apiPrefix = "/api/reticulum"

// ServiceStatus mirrors the service status document.
type ServiceStatus struct {
	Status string `json:"status"`
	RNSD   bool   `json:"rnsd"`
	LXMD   bool   `json:"lxmd"`
}

// Health mirrors the /healthz answer.
type Health struct {
	Status       string `json:"status"`
	ControlPlane struct {
		Version string    `json:"version"`
		Started time.Time `json:"started"`
		PID     int       `json:"pid"`
	} `json:"control_plane"`
}

// Envelope is the answer of the utilities and diagnostics endpoints.
type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Message is one frame of the status stream.
type Message struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// APIError is returned for non-2xx answers.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// HTTPClient is an HTTP-based client of the rnsgate API.
type HTTPClient struct {
	baseURL             string
	key, secret         string
	httpClient          *http.Client
	expectedFingerprint string
	SeenFingerprint     string
}

// ClientOption configures the HTTPClient.
type ClientOption func(*HTTPClient)

// WithCredentials sets the API key and secret sent with Basic auth.
func WithCredentials(key, secret string) ClientOption {
	return func(c *HTTPClient) {
		c.key, c.secret = key, secret
	}
}

// WithFingerprint sets the expected server certificate fingerprint (SHA-256 hex).
func WithFingerprint(fp string) ClientOption {
	return func(c *HTTPClient) {
		c.expectedFingerprint = strings.ToLower(strings.ReplaceAll(fp, ":", ""))
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = d
	}
}

// NewHTTPClient creates a new HTTPClient for the given base URL.
// Self-signed certificates are accepted unless a fingerprint is pinned.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.httpClient.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, // verified by fingerprint below
			VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
				if len(rawCerts) == 0 {
					return nil
				}
				hash := sha256.Sum256(rawCerts[0])
				fingerprint := hex.EncodeToString(hash[:])
				c.SeenFingerprint = fingerprint

				if c.expectedFingerprint != "" && c.expectedFingerprint != fingerprint {
					return fmt.Errorf("certificate fingerprint mismatch! Expected %s, got %s", c.expectedFingerprint, fingerprint)
				}
				return nil
			},
		},
	}
	return c
}

func (c *HTTPClient) authorize(h http.Header) {
	if c.key != "" {
		h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.key+":"+c.secret)))
	}
}

// doRequest performs an HTTP request and decodes the JSON response.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var doc struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &doc) == nil && doc.Message != "" {
			apiErr.Message = doc.Message
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Status retrieves the service status.
func (c *HTTPClient) Status(ctx context.Context) (*ServiceStatus, error) {
	var st ServiceStatus
	if err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/service/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Health checks the API and its control plane.
func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.doRequest(ctx, http.MethodGet, "/healthz", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Utility runs a utilities endpoint (rnstatus, rnpath, rnprobe, ...) with
// the given POST parameters.
func (c *HTTPClient) Utility(ctx context.Context, name string, params map[string]string) (*Envelope, error) {
	if params == nil {
		params = map[string]string{}
	}
	var env Envelope
	if err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/utilities/"+name, params, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Diagnostic fetches a diagnostics endpoint.
func (c *HTTPClient) Diagnostic(ctx context.Context, name string) (*Envelope, error) {
	var env Envelope
	if err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/diagnostics/"+name, nil, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Stream connects to the status stream, subscribes to topics and calls
// onMessage for every frame until ctx is done or the connection drops.
func (c *HTTPClient) Stream(ctx context.Context, topics []string, onMessage func(Message)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + apiPrefix + "/service/stream"

	headers := http.Header{}
	c.authorize(headers)

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 45 * time.Second,
	}
	// Use TLS config from HTTP client (includes fingerprint verification)
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		dialer.TLSClientConfig = transport.TLSClientConfig
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return &APIError{StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return fmt.Errorf("failed to dial websocket: %w", err)
	}
	defer conn.Close()

	if len(topics) > 0 {
		sub := map[string]any{"action": "subscribe", "topics": topics}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("failed to subscribe: %w", err)
		}
	}

	// Unblock ReadMessage when ctx ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue // Skip malformed
		}
		onMessage(msg)
	}
}
