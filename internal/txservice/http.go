package txservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/toshi-app/toshi-client/internal/token"
	"github.com/toshi-app/toshi-client/internal/utils"
)

const defaultTimeout = 10 * time.Second

// HTTPClient talks to the remote ethereum service.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type skelResponse struct {
	Tx string `json:"tx"`
}

type sendRequest struct {
	Tx        string `json:"tx"`
	Signature string `json:"signature"`
}

type balanceResponse struct {
	Confirmed   string `json:"confirmed_balance"`
	Unconfirmed string `json:"unconfirmed_balance"`
}

// CreateUnsignedTransaction wraps POST /v1/tx/skel.
func (c *HTTPClient) CreateUnsignedTransaction(ctx context.Context, params Params) (string, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/v1/tx/skel", params)
	if err != nil {
		return "", err
	}
	if status/100 != 2 {
		return "", &APIError{Status: status, Payload: decodeObject(body)}
	}

	var out skelResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode tx skeleton: %w", err)
	}
	if out.Tx == "" {
		return "", fmt.Errorf("tx skeleton: empty transaction")
	}
	return out.Tx, nil
}

// SendSignedTransaction wraps POST /v1/tx. The decoded payload is returned
// alongside any *APIError.
func (c *HTTPClient) SendSignedTransaction(ctx context.Context, original, signature string) (Response, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/v1/tx", sendRequest{Tx: original, Signature: signature})
	if err != nil {
		return nil, err
	}
	payload := decodeObject(body)
	if status/100 != 2 {
		return payload, &APIError{Status: status, Payload: payload}
	}
	return payload, nil
}

// Tokens wraps GET /v1/tokens/{address}.
func (c *HTTPClient) Tokens(ctx context.Context, address string) ([]*token.Token, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/v1/tokens/"+url.PathEscape(address), nil)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, &APIError{Status: status, Payload: decodeObject(body)}
	}

	var out token.Results
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode tokens: %w", err)
	}
	return out.Tokens, nil
}

// Balance wraps GET /v1/balance/{address} and returns the confirmed wei.
func (c *HTTPClient) Balance(ctx context.Context, address string) (*big.Int, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/v1/balance/"+url.PathEscape(address), nil)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, &APIError{Status: status, Payload: decodeObject(body)}
	}

	var out balanceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}
	return utils.ParseHexBig(out.Confirmed), nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in any) (int, []byte, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s: %w", path, err)
	}
	return resp.StatusCode, b, nil
}

// decodeObject keeps whatever JSON object the service sent, or nothing.
func decodeObject(b []byte) Response {
	var out Response
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
