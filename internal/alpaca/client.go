package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Default bounds for remote calls.
const (
	// defaultCallTimeout bounds a call when the caller's context carries
	// no deadline of its own.
	defaultCallTimeout = 10 * time.Second

	// maxResponseSize caps JSON response bodies (images go through
	// ImageArray, which reads the body in full).
	maxResponseSize = 1 << 20
)

// DeviceRef identifies one device for a remote call: its base endpoint URL,
// Alpaca device type, and server-scoped device number.
type DeviceRef struct {
	Endpoint string
	Type     string
	Number   int
}

// Config contains Alpaca client settings.
type Config struct {
	// ClientID identifies this client in every request, per protocol.
	ClientID uint32

	// Timeout bounds each call when the context has no deadline (seconds).
	Timeout int
}

// Client issues JSON calls against Alpaca device endpoints.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	http     *http.Client
	clientID uint32
	timeout  time.Duration
	txn      atomic.Uint32
}

// NewClient creates a protocol client with the given settings.
func NewClient(cfg Config) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Client{
		// The http.Client carries no global timeout: each call is bounded
		// by its context so callers control the deadline per call.
		http:     &http.Client{},
		clientID: cfg.ClientID,
		timeout:  timeout,
	}
}

// response is the common Alpaca JSON envelope.
type response struct {
	ClientTransactionID uint32          `json:"ClientTransactionID"`
	ServerTransactionID uint32          `json:"ServerTransactionID"`
	ErrorNumber         int32           `json:"ErrorNumber"`
	ErrorMessage        string          `json:"ErrorMessage"`
	Value               json.RawMessage `json:"Value"`
}

// Get performs a GET call against a device action and returns the decoded
// Value of the response envelope.
func (c *Client) Get(ctx context.Context, ref DeviceRef, action string, params url.Values) (json.RawMessage, error) {
	q := c.withIdentity(params)
	reqURL := deviceURL(ref, action) + "?" + q.Encode()

	req, cancel, err := c.newRequest(ctx, http.MethodGet, action, reqURL, nil)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.do(req, action)
}

// Put performs a PUT call against a device action with form-encoded
// parameters and returns the decoded Value (often empty for commands).
func (c *Client) Put(ctx context.Context, ref DeviceRef, action string, params url.Values) (json.RawMessage, error) {
	form := c.withIdentity(params)

	req, cancel, err := c.newRequest(ctx, http.MethodPut, action, deviceURL(ref, action), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	defer cancel()
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, action)
}

// Connected reads the device's connected property.
func (c *Client) Connected(ctx context.Context, ref DeviceRef) (bool, error) {
	raw, err := c.Get(ctx, ref, "connected", nil)
	if err != nil {
		return false, err
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, &CallError{Kind: KindProtocol, Action: "connected", Err: err}
	}
	return v, nil
}

// SetConnected writes the device's connected property. This is the remote
// half of every connect/disconnect transition.
func (c *Client) SetConnected(ctx context.Context, ref DeviceRef, connected bool) error {
	params := url.Values{}
	params.Set("Connected", strconv.FormatBool(connected))
	_, err := c.Put(ctx, ref, "connected", params)
	return err
}

// newRequest builds an HTTP request bounded by the client's default timeout
// when the context carries no deadline. The returned cancel func must be
// called once the response has been consumed.
func (c *Client) newRequest(ctx context.Context, method, action, reqURL string, body io.Reader) (*http.Request, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		cancel()
		return nil, nil, &CallError{Kind: KindTransport, Action: action, Err: err}
	}
	return req, cancel, nil
}

// do executes the request and decodes the Alpaca envelope.
func (c *Client) do(req *http.Request, action string) (json.RawMessage, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(action, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Best-effort close on read path

	if resp.StatusCode != http.StatusOK {
		return nil, &CallError{Kind: KindProtocol, Action: action, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, classifyTransport(action, err)
	}

	var env response
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &CallError{Kind: KindProtocol, Action: action, Status: resp.StatusCode, Err: err}
	}
	if env.ErrorNumber != 0 {
		return nil, &CallError{
			Kind:    KindProtocol,
			Action:  action,
			Status:  resp.StatusCode,
			Number:  env.ErrorNumber,
			Message: env.ErrorMessage,
		}
	}
	return env.Value, nil
}

// withIdentity adds the ClientID and a fresh ClientTransactionID to params.
func (c *Client) withIdentity(params url.Values) url.Values {
	out := url.Values{}
	for k, vs := range params {
		out[k] = vs
	}
	out.Set("ClientID", strconv.FormatUint(uint64(c.clientID), 10))
	out.Set("ClientTransactionID", strconv.FormatUint(uint64(c.txn.Add(1)), 10))
	return out
}

// deviceURL builds {base}/api/v1/{type}/{number}/{action}.
func deviceURL(ref DeviceRef, action string) string {
	base := strings.TrimSuffix(ref.Endpoint, "/")
	return fmt.Sprintf("%s/api/v1/%s/%d/%s", base, ref.Type, ref.Number, action)
}

// classifyTransport maps an HTTP client error to its CallError kind.
// Deadline and timeout failures are surfaced as KindTimeout so callers can
// distinguish a slow device from an unreachable one.
func classifyTransport(action string, err error) *CallError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &CallError{Kind: KindTimeout, Action: action, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &CallError{Kind: KindTimeout, Action: action, Err: err}
	}
	return &CallError{Kind: KindTransport, Action: action, Err: err}
}
