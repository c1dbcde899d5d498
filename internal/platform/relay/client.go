// Package relay implements the client side of the Meridian offer relay:
// a REST client for posting, querying, and cancelling signed offers, and a
// WebSocket client for the real-time offer feed. The relay is a discovery
// and distribution layer only; nothing it reports is trusted for fill
// validation, which always reads the settlement contract directly.
package relay

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

	"github.com/meridianxyz/fillbot/internal/crypto"
	"github.com/meridianxyz/fillbot/internal/domain"
)

// Client is the REST client for the Meridian offer relay.
type Client struct {
	baseURL    string
	httpClient *http.Client
	hmacAuth   *crypto.HMACAuth
}

// NewClient creates a relay REST client. hmac may be nil for read-only use
// against public endpoints; posting and cancelling then fail with 401.
func NewClient(baseURL string, hmac *crypto.HMACAuth) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		hmacAuth: hmac,
	}
}

// PostOffer publishes a signed offer to the relay.
func (c *Client) PostOffer(ctx context.Context, offer domain.Offer) error {
	body := map[string]any{
		"offer": FromDomain(offer),
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/offers", body)
	if err != nil {
		return fmt.Errorf("relay: post offer %s: %w", offer.ID, err)
	}

	var result APIOfferResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("relay: decode post response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("relay: offer %s rejected: %s", offer.ID, result.ErrorMsg)
	}
	return nil
}

// GetOffer retrieves a single offer by its typed-data digest id.
func (c *Client) GetOffer(ctx context.Context, offerID string) (domain.Offer, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/offers/"+offerID, nil)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("relay: get offer %s: %w", offerID, err)
	}

	var apiOffer APIOffer
	if err := json.Unmarshal(respBody, &apiOffer); err != nil {
		return domain.Offer{}, fmt.Errorf("relay: decode offer: %w", err)
	}
	return apiOffer.ToDomain()
}

// ListQuery narrows a ListOffers call. Zero values mean no filter.
type ListQuery struct {
	Status string
	Kind   domain.OfferKind
	Maker  string
	Limit  int
	Cursor string
}

// ListOffers returns one page of offers matching the query plus the cursor
// for the next page; an empty cursor means the listing is exhausted.
// Malformed entries are skipped rather than failing the page.
func (c *Client) ListOffers(ctx context.Context, q ListQuery) ([]domain.Offer, string, error) {
	params := url.Values{}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Kind != "" {
		params.Set("kind", string(q.Kind))
	}
	if q.Maker != "" {
		params.Set("maker", q.Maker)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}

	path := "/offers"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", fmt.Errorf("relay: list offers: %w", err)
	}

	var page APIOfferPage
	if err := json.Unmarshal(respBody, &page); err != nil {
		return nil, "", fmt.Errorf("relay: decode offer page: %w", err)
	}

	offers := make([]domain.Offer, 0, len(page.Offers))
	for i := range page.Offers {
		offer, err := page.Offers[i].ToDomain()
		if err != nil {
			continue
		}
		offers = append(offers, offer)
	}
	return offers, page.NextCursor, nil
}

// CancelOffer asks the relay to delist an offer. Delisting is advisory:
// the offer stays fillable on chain until the maker cancels it there, so
// callers treating this as cancellation must also act on the contract.
func (c *Client) CancelOffer(ctx context.Context, offerID string) error {
	respBody, err := c.doRequest(ctx, http.MethodDelete, "/offers/"+offerID, nil)
	if err != nil {
		return fmt.Errorf("relay: cancel offer %s: %w", offerID, err)
	}

	var result struct {
		Success  bool   `json:"success"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("relay: decode cancel response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("relay: cancel %s failed: %s", offerID, result.ErrorMsg)
	}
	return nil
}

// Ping checks relay reachability.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.doRequest(ctx, http.MethodGet, "/health", nil); err != nil {
		return fmt.Errorf("relay: ping: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest builds, signs (HMAC), sends, and reads an HTTP request against
// the relay. It returns the raw response body.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.hmacAuth != nil {
		for k, v := range c.hmacAuth.Headers(method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrAuthFailed, bodyStr)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
