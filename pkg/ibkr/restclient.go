package ibkr

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTClient creates a client for the gateway REST API rooted at baseURL
// (e.g. https://127.0.0.1:5010/v1/api). insecureSkipVerify accepts the
// gateway's self-signed localhost certificate.
func NewRESTClient(baseURL string, timeout time.Duration, insecureSkipVerify bool) *RESTClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // local gateway only
	}
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
	}
}

// SearchSecDef looks up contracts by symbol.
func (c *RESTClient) SearchSecDef(ctx context.Context, symbol string) ([]SecDefSearchResult, error) {
	var results []SecDefSearchResult
	body := map[string]string{"symbol": symbol}
	if err := c.do(ctx, http.MethodPost, "/iserver/secdef/search", nil, body, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// SecDefInfo lists concrete derivative contracts for an underlying.
func (c *RESTClient) SecDefInfo(ctx context.Context, q InfoQuery) ([]SecDefInfo, error) {
	query := url.Values{}
	query.Set("conid", q.ConID.String())
	query.Set("sectype", q.SecType)
	query.Set("month", q.Month)
	query.Set("right", q.Right)
	query.Set("strike", q.Strike)
	query.Set("exchange", q.Exchange)

	var rows []SecDefInfo
	if err := c.do(ctx, http.MethodGet, "/iserver/secdef/info", query, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// UnsubscribeAll cancels every market-data stream of the gateway session.
func (c *RESTClient) UnsubscribeAll(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/iserver/marketdata/unsubscribeall", nil, nil, nil)
}

// Accounts must be called once per gateway session before market-data requests.
func (c *RESTClient) Accounts(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/iserver/accounts", nil, nil, nil)
}

// MarketSnapshot requests a snapshot for the given contracts. The gateway only
// starts streaming a contract after its first snapshot request.
func (c *RESTClient) MarketSnapshot(ctx context.Context, ids []ConID, fields []string) error {
	if len(ids) == 0 {
		return nil
	}
	conids := make([]string, len(ids))
	for i, id := range ids {
		conids[i] = id.String()
	}
	query := url.Values{}
	query.Set("conids", strings.Join(conids, ","))
	query.Set("fields", strings.Join(fields, ","))
	return c.do(ctx, http.MethodGet, "/iserver/marketdata/snapshot", query, nil, nil)
}

// do performs one request. A nil out discards the response body.
func (c *RESTClient) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	// Construct the request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body, resp.Status), Body: body}
	}
	if out == nil {
		return nil
	}

	// Lists come back as {"error": "..."} when the gateway has nothing to say.
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		var e errorResponse
		if json.Unmarshal(trimmed, &e) == nil && e.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: e.Error, Body: body}
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(body []byte, fallback string) string {
	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return fallback
}
