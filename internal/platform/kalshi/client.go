package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
)

// DefaultBaseURL is the public Kalshi trade API root.
const DefaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

// maxErrorBody bounds how much of a failed response is kept on APIError.
const maxErrorBody = 4 << 10

// Client is the read-only REST client for the Kalshi exchange API. Every
// method issues exactly one request; callers own retries.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new Kalshi REST client.
//
// baseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAPIKey sends the key as a bearer token. Public market data does not
// need one.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// FetchEvents returns one page of events.
func (c *Client) FetchEvents(ctx context.Context, q EventsQuery) (EventsPage, error) {
	params := url.Values{}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.WithNestedMarkets {
		params.Set("with_nested_markets", "true")
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}
	if q.SeriesTicker != "" {
		params.Set("series_ticker", q.SeriesTicker)
	}
	if q.Category != "" {
		params.Set("category", q.Category)
	}

	body, err := c.doRequest(ctx, http.MethodGet, withQuery("/events", params))
	if err != nil {
		return EventsPage{}, fmt.Errorf("kalshi: get events: %w", err)
	}

	var resp struct {
		Events json.RawMessage `json:"events"`
		Cursor string          `json:"cursor"`
	}
	if err := decodeObject(body, &resp); err != nil {
		return EventsPage{}, fmt.Errorf("kalshi: decode events: %w", err)
	}
	if !isArray(resp.Events) {
		return EventsPage{}, fmt.Errorf("kalshi: decode events: %w: missing events array", domain.ErrMalformedResponse)
	}

	var events []RawEvent
	if err := json.Unmarshal(resp.Events, &events); err != nil {
		return EventsPage{}, fmt.Errorf("kalshi: decode events: %w: %v", domain.ErrMalformedResponse, err)
	}

	return EventsPage{Events: events, Cursor: resp.Cursor}, nil
}

// FetchMarkets returns one page of markets, left raw for ParseMarket.
func (c *Client) FetchMarkets(ctx context.Context, q MarketsQuery) (MarketsPage, error) {
	params := url.Values{}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.EventTicker != "" {
		params.Set("event_ticker", q.EventTicker)
	}
	if q.SeriesTicker != "" {
		params.Set("series_ticker", q.SeriesTicker)
	}
	if len(q.Tickers) > 0 {
		params.Set("tickers", strings.Join(q.Tickers, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}

	body, err := c.doRequest(ctx, http.MethodGet, withQuery("/markets", params))
	if err != nil {
		return MarketsPage{}, fmt.Errorf("kalshi: get markets: %w", err)
	}

	var resp struct {
		Markets json.RawMessage `json:"markets"`
		Cursor  string          `json:"cursor"`
	}
	if err := decodeObject(body, &resp); err != nil {
		return MarketsPage{}, fmt.Errorf("kalshi: decode markets: %w", err)
	}
	if !isArray(resp.Markets) {
		return MarketsPage{}, fmt.Errorf("kalshi: decode markets: %w: missing markets array", domain.ErrMalformedResponse)
	}

	var markets []json.RawMessage
	if err := json.Unmarshal(resp.Markets, &markets); err != nil {
		return MarketsPage{}, fmt.Errorf("kalshi: decode markets: %w: %v", domain.ErrMalformedResponse, err)
	}

	return MarketsPage{Markets: markets, Cursor: resp.Cursor}, nil
}

// GetMarket returns a single market by its ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (domain.MarketRecord, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return domain.MarketRecord{}, fmt.Errorf("kalshi: get market: %w: empty ticker", domain.ErrInvalidArgument)
	}
	path := "/markets/" + url.PathEscape(ticker)

	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return domain.MarketRecord{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}

	var resp struct {
		Market json.RawMessage `json:"market"`
	}
	if err := decodeObject(body, &resp); err != nil {
		return domain.MarketRecord{}, fmt.Errorf("kalshi: decode market: %w", err)
	}

	rec, err := ParseMarket(resp.Market, EventContext{})
	if err != nil {
		var pe *domain.ParseError
		if errors.As(err, &pe) && pe.Ticker == "" {
			pe.Ticker = ticker
		}
		return domain.MarketRecord{}, fmt.Errorf("kalshi: decode market: %w", err)
	}
	return rec, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest builds, sends and reads an HTTP request against the Kalshi API.
// Transport failures come back as *domain.NetworkError and non-2xx
// responses as *domain.APIError.
func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	fullURL := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.NetworkError{Op: method, URL: fullURL, Err: unwrapURLError(err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.NetworkError{Op: "read " + method, URL: fullURL, Err: err}
	}

	c.logger.Debug("kalshi request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to *domain.APIError.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr KalshiErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	code, msg := apiErr.Code, apiErr.Message
	if apiErr.Error != nil {
		code = firstNonEmpty(apiErr.Error.Code, code)
		msg = firstNonEmpty(apiErr.Error.Message, msg)
	}
	if msg == "" {
		msg = strings.ToLower(http.StatusText(statusCode))
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}

	return &domain.APIError{
		StatusCode: statusCode,
		Code:       code,
		Message:    msg,
		Body:       body,
	}
}

// unwrapURLError strips the *url.Error wrapper so the cause (context
// deadline, dial error) is what callers inspect.
func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}

func decodeObject(body []byte, v any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: body is not a JSON object", domain.ErrMalformedResponse)
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return nil
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}
