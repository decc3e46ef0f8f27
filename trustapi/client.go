// Package trustapi is the client for the upstream trust-network API.
// The agent consumes two operations: registering a new identity and
// submitting the response to an authentication request.
package trustapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ndidplatform/idp-agent/o11y"
	"github.com/ndidplatform/idp-agent/proto"
)

type RegisterIdentityParams struct {
	Namespace         string  `json:"namespace"`
	Identifier        string  `json:"identifier"`
	AccessorType      string  `json:"accessor_type"`
	AccessorPublicKey string  `json:"accessor_public_key"`
	AccessorID        string  `json:"accessor_id"`
	AccessorGroupID   string  `json:"accessor_group_id"`
	IAL               float64 `json:"ial"`
}

type ResponseParams struct {
	RequestID  string  `json:"request_id"`
	Namespace  string  `json:"namespace"`
	Identifier string  `json:"identifier"`
	IAL        float64 `json:"ial"`
	AAL        float64 `json:"aal"`
	Secret     string  `json:"secret"`
	Status     string  `json:"status"`
	Signature  string  `json:"signature"`
	AccessorID string  `json:"accessor_id"`
}

// Client is the upstream boundary. Both calls block until the trust
// network acknowledges or fails the operation.
type Client interface {
	RegisterIdentity(ctx context.Context, params RegisterIdentityParams) error
	SubmitResponse(ctx context.Context, params ResponseParams) error
}

type client struct {
	baseURL    string
	httpClient o11y.HTTPClient
}

var _ Client = (*client)(nil)

func NewClient(baseURL string, httpClient o11y.HTTPClient) Client {
	if httpClient == nil {
		httpClient = o11y.WrapClient(http.DefaultClient)
	}
	return &client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *client) RegisterIdentity(ctx context.Context, params RegisterIdentityParams) error {
	return c.post(ctx, "/identity", params)
}

func (c *client) SubmitResponse(ctx context.Context, params ResponseParams) error {
	return c.post(ctx, "/idp/response", params)
}

func (c *client) post(ctx context.Context, path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return proto.ErrUpstreamError.WithCausef("POST %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return proto.ErrUpstreamError.WithCausef("POST %s: status %d: %s", path, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
