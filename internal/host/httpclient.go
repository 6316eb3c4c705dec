package host

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/R3E-Network/splot/domain/value"
	"github.com/R3E-Network/splot/infrastructure/errors"
)

// HTTPCaller issues the REST calls an automation Action or a native
// ResourceLink describes, against whatever technology actually hosts the
// target URI. It satisfies both automation.RestCaller and thing.RestClient,
// the two seams that need an outbound transport (spec §1, §4.2, §4.7).
type HTTPCaller struct {
	client *http.Client
}

// NewHTTPCaller builds a caller with a bounded per-request timeout, so a
// single unresponsive downstream thing cannot stall the dispatcher or a
// rule's condition re-evaluation indefinitely.
func NewHTTPCaller(timeout time.Duration) *HTTPCaller {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPCaller{client: &http.Client{Timeout: timeout}}
}

// Call implements automation.RestCaller.
func (c *HTTPCaller) Call(ctx context.Context, method, path string, body value.Value, hasBody bool) error {
	if method == "" {
		method = http.MethodPost
	}
	var reader io.Reader
	if hasBody {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Technology("encode action body", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, path, reader)
	if err != nil {
		return errors.Technology("build request", err)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Technology("perform request", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return errors.Technology("request failed", &httpStatusError{status: resp.StatusCode, uri: path})
	}
	return nil
}

// Get implements thing.RestClient.
func (c *HTTPCaller) Get(ctx context.Context, uri string) (value.Value, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return value.Value{}, errors.Technology("build request", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return value.Value{}, errors.Technology("perform request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		return value.Value{}, errors.Technology("request failed", &httpStatusError{status: resp.StatusCode, uri: uri})
	}

	var v value.Value
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return value.Value{}, errors.Technology("decode response body", err)
	}
	return v, nil
}

// Put implements thing.RestClient.
func (c *HTTPCaller) Put(ctx context.Context, uri string, body value.Value) error {
	return c.send(ctx, http.MethodPut, uri, body)
}

// Post implements thing.RestClient.
func (c *HTTPCaller) Post(ctx context.Context, uri string, body value.Value) error {
	return c.send(ctx, http.MethodPost, uri, body)
}

func (c *HTTPCaller) send(ctx context.Context, method, uri string, body value.Value) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return errors.Technology("encode request body", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, uri, bytes.NewReader(encoded))
	if err != nil {
		return errors.Technology("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Technology("perform request", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return errors.Technology("request failed", &httpStatusError{status: resp.StatusCode, uri: uri})
	}
	return nil
}

type httpStatusError struct {
	status int
	uri    string
}

func (e *httpStatusError) Error() string {
	return http.StatusText(e.status) + " from " + e.uri
}
