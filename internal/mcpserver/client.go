package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the Meraki API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	UserID string // acting user, sent as X-User-ID
}

// MerakiClient is a thin HTTP client for the marketplace API.
type MerakiClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewMerakiClient creates a new client for the marketplace API.
func NewMerakiClient(cfg Config) *MerakiClient {
	return &MerakiClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *MerakiClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("X-User-ID", c.cfg.UserID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// GetBalance returns the user's spendable and escrowed balance.
func (c *MerakiClient) GetBalance(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/balance", nil, nil)
}

// SearchProducts lists active listings, optionally for one seller.
func (c *MerakiClient) SearchProducts(ctx context.Context, sellerID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("status", "active")
	if sellerID != "" {
		q.Set("seller", sellerID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/api/products", q, nil)
}

// ProposeTradeRequest is the body of POST /api/direct-trade-offers.
type ProposeTradeRequest struct {
	ProductID              string   `json:"productId"`
	OfferedItemName        string   `json:"offeredItemName"`
	OfferedItemDescription string   `json:"offeredItemDescription,omitempty"`
	OfferedItemValue       int64    `json:"offeredItemValue"`
	OfferedItemImages      []string `json:"offeredItemImages,omitempty"`
	Notes                  string   `json:"notes,omitempty"`
}

// ProposeTrade offers an item in exchange for a product.
func (c *MerakiClient) ProposeTrade(ctx context.Context, req ProposeTradeRequest) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/api/direct-trade-offers", nil, req)
}

// ConfirmTrade confirms the trade offer carried by messageID in the given role.
func (c *MerakiClient) ConfirmTrade(ctx context.Context, messageID, role string) (json.RawMessage, error) {
	body := map[string]string{"messageId": messageID, "role": role}
	return c.doRequest(ctx, http.MethodPost, "/api/trade/confirm", nil, body)
}

// AcceptTrade confirms an offer as its seller.
func (c *MerakiClient) AcceptTrade(ctx context.Context, offerID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/api/trade-offers/"+url.PathEscape(offerID)+"/accept", nil, nil)
}

// CancelTrade withdraws or declines an open offer.
func (c *MerakiClient) CancelTrade(ctx context.Context, offerID, reason string) (json.RawMessage, error) {
	var body any
	if reason != "" {
		body = map[string]string{"reason": reason}
	}
	return c.doRequest(ctx, http.MethodPost, "/api/trade-offers/"+url.PathEscape(offerID)+"/cancel", nil, body)
}

// ListTradeOffers returns offers the user proposed or received.
func (c *MerakiClient) ListTradeOffers(ctx context.Context, limit int) (json.RawMessage, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	return c.doRequest(ctx, http.MethodGet, "/api/trade-offers", q, nil)
}

// GetTransaction returns one transaction the user took part in.
func (c *MerakiClient) GetTransaction(ctx context.Context, id string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/transactions/"+url.PathEscape(id), nil, nil)
}
