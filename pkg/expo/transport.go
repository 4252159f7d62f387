package expo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Request is the outbound POST handed to a Transport.
type Request struct {
	Body   []byte
	Header http.Header
}

// Transport performs the single POST behind every client call. Retries,
// pooling, rate limiting and authentication all live here, not in Client.
type Transport interface {
	Post(ctx context.Context, url string, req *Request) (*RawResponse, error)
}

// HTTPDoer executes HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPTransport is the default Transport, backed by an HTTPDoer.
type HTTPTransport struct {
	client      HTTPDoer
	accessToken string
}

// HTTPTransportOption configures an HTTPTransport.
type HTTPTransportOption func(*HTTPTransport)

// WithAccessToken sends the token as a bearer credential on every request,
// for projects with enhanced push security enabled.
func WithAccessToken(token string) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.accessToken = token
	}
}

// NewHTTPTransport wraps client. A nil client gets a default with a 30s timeout.
func NewHTTPTransport(client HTTPDoer, opts ...HTTPTransportOption) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	t := &HTTPTransport{client: client}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *HTTPTransport) Post(ctx context.Context, url string, r *Request) (*RawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range r.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if t.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.accessToken)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	return &RawResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

// readBody decodes gzip and deflate bodies. net/http leaves them encoded
// when the caller sets Accept-Encoding itself.
func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(raw) == 0 {
		return raw, nil
	}

	var decoder io.ReadCloser
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		decoder, err = gzip.NewReader(bytes.NewReader(raw))
	case "deflate":
		decoder, err = zlib.NewReader(bytes.NewReader(raw))
	default:
		return raw, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open encoded response body: %w", err)
	}
	defer decoder.Close()

	body, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return body, nil
}
