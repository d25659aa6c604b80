package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/homedash/homedash/pkg/common"
	"github.com/homedash/homedash/pkg/log"
	"github.com/homedash/homedash/pkg/metrics"
	"github.com/homedash/homedash/pkg/types"
	"github.com/levenlabs/go-lflag"
)

const (
	// responses larger than this are rejected rather than buffered
	maxResponseBytes = 8 << 20
	// how much of a failed response body is kept on a NetworkError
	maxErrorBodyBytes = 512
)

// operation names, also used in error messages
const (
	opFetchEnergyData = "fetch energy data"
	opFetchDevices    = "fetch devices"
	opFetchAlerts     = "fetch alerts"
	opControlDevice   = "control device"
	opResolveAlert    = "resolve alert"
)

// HTTPClient implements Client against the backend REST API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	metrics *metrics.Metrics
}

var _ Client = (*HTTPClient)(nil)

// New returns a client for the backend at baseURL. A nil client uses
// common.HTTPClient without a timeout.
func New(baseURL string, client *http.Client, m *metrics.Metrics) *HTTPClient {
	if client == nil {
		client = common.HTTPClient(0)
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		metrics: m,
	}
}

// Configured sets up the client from flags.
// It uses lflag to register command-line flags for configuration.
func Configured(m *metrics.Metrics) *HTTPClient {
	c := &HTTPClient{metrics: m}
	baseURL := lflag.String("api-base-url", DefaultBaseURL, "Base URL of the smart home REST API")
	timeout := lflag.Duration("api-timeout", 0, "Timeout for each backend request (0 means no timeout)")

	lflag.Do(func() {
		c.baseURL = strings.TrimSuffix(*baseURL, "/")
		c.client = common.HTTPClient(*timeout)
		if err := c.Validate(); err != nil {
			panic(fmt.Sprintf("api validation failed: %v", err))
		}
	})

	return c
}

// Validate ensures the configuration is valid.
func (c *HTTPClient) Validate() error {
	if c.baseURL == "" {
		return fmt.Errorf("api-base-url is required")
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("failed to parse api url (%s): %w", c.baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api url (%s) must be http or https", c.baseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("api url (%s) is missing a host", c.baseURL)
	}
	return nil
}

// BaseURL returns the configured backend base URL.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// observe records the outcome of an operation once it returns.
func (c *HTTPClient) observe(endpoint string, start time.Time, errp *error) {
	c.metrics.BackendRequest(endpoint, time.Since(start), ErrorKind(*errp))
}

// do performs a single request and returns the body of a 2xx response.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		bodyReader = bytes.NewReader(b)
	}

	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Ctx(ctx).DebugContext(ctx, "sending backend request", slog.String("op", op), slog.String("method", method), slog.String("url", u))

	resp, err := c.client.Do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "backend request failed", slog.String("op", op), slog.Any("error", err))
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		log.Ctx(ctx).WarnContext(
			ctx,
			"backend returned error status",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
		)
		return nil, &NetworkError{Op: op, StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if len(respBody) > maxResponseBytes {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("response exceeds %d bytes", maxResponseBytes)}
	}
	return respBody, nil
}

// FetchEnergyData implements Client.
func (c *HTTPClient) FetchEnergyData(ctx context.Context) (_ []types.EnergyData, err error) {
	defer c.observe("energy", time.Now(), &err)

	body, err := c.do(ctx, opFetchEnergyData, http.MethodGet, "/energy-data/", nil)
	if err != nil {
		return nil, err
	}
	data, err := decodeEnergy(opFetchEnergyData, body)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).DebugContext(ctx, "fetched energy data", slog.Int("count", len(data)))
	return data, nil
}

// FetchDevices implements Client.
func (c *HTTPClient) FetchDevices(ctx context.Context) (_ []types.Device, err error) {
	defer c.observe("devices", time.Now(), &err)

	body, err := c.do(ctx, opFetchDevices, http.MethodGet, "/devices/", nil)
	if err != nil {
		return nil, err
	}
	devices, err := decodeDevices(opFetchDevices, body)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).DebugContext(ctx, "fetched devices", slog.Int("count", len(devices)))
	return devices, nil
}

// FetchAlerts implements Client.
func (c *HTTPClient) FetchAlerts(ctx context.Context) (_ []types.Alert, err error) {
	defer c.observe("alerts", time.Now(), &err)

	body, err := c.do(ctx, opFetchAlerts, http.MethodGet, "/alerts/", nil)
	if err != nil {
		return nil, err
	}
	alerts, err := decodeAlerts(opFetchAlerts, body)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).DebugContext(ctx, "fetched alerts", slog.Int("count", len(alerts)))
	return alerts, nil
}

type controlRequest struct {
	Action types.DeviceState `json:"action"`
}

// ControlDevice implements Client.
func (c *HTTPClient) ControlDevice(ctx context.Context, id types.ID, action types.DeviceState) (err error) {
	defer c.observe("control", time.Now(), &err)

	if id == "" {
		return &ValidationError{Msg: "device id is required"}
	}
	if !action.Valid() {
		return &ValidationError{Msg: fmt.Sprintf("invalid device action %q", action)}
	}

	path := "/devices/" + url.PathEscape(string(id)) + "/control/"
	if _, err := c.do(ctx, opControlDevice, http.MethodPost, path, controlRequest{Action: action}); err != nil {
		return err
	}
	log.Ctx(ctx).DebugContext(ctx, "controlled device", slog.String("deviceID", string(id)), slog.String("action", string(action)))
	return nil
}

// ResolveAlert implements Client.
func (c *HTTPClient) ResolveAlert(ctx context.Context, id types.ID) (err error) {
	defer c.observe("resolve", time.Now(), &err)

	if id == "" {
		return &ValidationError{Msg: "alert id is required"}
	}

	path := "/alerts/" + url.PathEscape(string(id)) + "/resolve/"
	if _, err := c.do(ctx, opResolveAlert, http.MethodPost, path, nil); err != nil {
		return err
	}
	log.Ctx(ctx).DebugContext(ctx, "resolved alert", slog.String("alertID", string(id)))
	return nil
}
