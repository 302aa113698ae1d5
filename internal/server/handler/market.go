package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
)

// QueryService defines the cached query methods the market handler requires.
// It is declared locally so the handler package does not depend on the
// concrete service implementation.
type QueryService interface {
	TopMarkets(ctx context.Context, category string, limit int, ttl time.Duration) (domain.CategoryQueryResult, error)
	TopEvents(ctx context.Context, category string, limit int, ttl time.Duration) (domain.EventQueryResult, error)
	Invalidate(ctx context.Context, category string) error
	Clear(ctx context.Context) error
}

// MarketLookup defines the uncached lookups the market handler requires.
type MarketLookup interface {
	GetMarket(ctx context.Context, ticker string) (domain.MarketRecord, error)
	Categories(ctx context.Context) ([]string, error)
}

// MarketOptions holds the query defaults applied by MarketHandler.
type MarketOptions struct {
	TTL     time.Duration
	TopN    int
	MaxTopN int
}

// MarketHandler serves category, market and refresh endpoints.
type MarketHandler struct {
	queries    QueryService
	lookup     MarketLookup
	categories []domain.Category
	byName     map[string]domain.Category
	opts       MarketOptions
	logger     *slog.Logger
}

// NewMarketHandler creates a MarketHandler. categories are the configured
// dashboard sections, in display order.
func NewMarketHandler(
	queries QueryService,
	lookup MarketLookup,
	categories []domain.Category,
	opts MarketOptions,
	logger *slog.Logger,
) *MarketHandler {
	byName := make(map[string]domain.Category, len(categories))
	for _, c := range categories {
		byName[domain.NormalizeCategory(c.Name)] = c
	}
	return &MarketHandler{
		queries:    queries,
		lookup:     lookup,
		categories: categories,
		byName:     byName,
		opts:       opts,
		logger:     logHandler(logger, "market"),
	}
}

type categoryView struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

func (h *MarketHandler) view(name string) categoryView {
	key := domain.NormalizeCategory(name)
	if c, ok := h.byName[key]; ok {
		return categoryView{Name: key, Label: c.Label, Icon: c.Icon}
	}
	return categoryView{Name: key, Label: name}
}

// ListCategories returns the configured dashboard categories.
// GET /api/categories
func (h *MarketHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	out := make([]categoryView, 0, len(h.categories))
	for _, c := range h.categories {
		out = append(out, h.view(c.Name))
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

// UpstreamCategories returns the distinct categories of open exchange events.
// GET /api/categories/upstream
func (h *MarketHandler) UpstreamCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.lookup.Categories(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: upstream categories failed",
			slog.String("error", err.Error()),
		)
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

type topMarketsResponse struct {
	categoryView
	Markets   []domain.MarketRecord `json:"markets"`
	Limit     int                   `json:"limit"`
	FetchedAt time.Time             `json:"fetched_at"`
}

// TopMarkets returns the highest-volume open markets of a category.
// GET /api/categories/{name}/markets?limit=10
func (h *MarketHandler) TopMarkets(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(pathParam(r, "name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing category")
		return
	}
	limit, ok := parseLimit(r, h.opts.TopN, h.opts.MaxTopN)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	res, err := h.queries.TopMarkets(r.Context(), name, limit, h.opts.TTL)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: top markets failed",
			slog.String("category", name),
			slog.String("error", err.Error()),
		)
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, topMarketsResponse{
		categoryView: h.view(name),
		Markets:      res.Markets,
		Limit:        limit,
		FetchedAt:    res.FetchedAt,
	})
}

type topEventsResponse struct {
	categoryView
	Events    []domain.EventSummary `json:"events"`
	Limit     int                   `json:"limit"`
	FetchedAt time.Time             `json:"fetched_at"`
}

// TopEvents returns the highest-volume events of a category with their
// options.
// GET /api/categories/{name}/events?limit=10
func (h *MarketHandler) TopEvents(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(pathParam(r, "name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing category")
		return
	}
	limit, ok := parseLimit(r, h.opts.TopN, h.opts.MaxTopN)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	res, err := h.queries.TopEvents(r.Context(), name, limit, h.opts.TTL)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: top events failed",
			slog.String("category", name),
			slog.String("error", err.Error()),
		)
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, topEventsResponse{
		categoryView: h.view(name),
		Events:       res.Events,
		Limit:        limit,
		FetchedAt:    res.FetchedAt,
	})
}

// GetMarket returns a single market by its ticker, bypassing the cache.
// GET /api/markets/{ticker}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	ticker := pathParam(r, "ticker")
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "missing market ticker")
		return
	}

	market, err := h.lookup.GetMarket(r.Context(), ticker)
	if err != nil {
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		if errors.Is(err, domain.ErrParse) {
			writeError(w, http.StatusBadGateway, "upstream returned an unreadable market")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// Refresh drops cached data so the next query refetches. With ?category= only
// that category is dropped.
// POST /api/refresh[?category=politics]
func (h *MarketHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))

	var err error
	if category != "" {
		err = h.queries.Invalidate(r.Context(), category)
	} else {
		err = h.queries.Clear(r.Context())
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: refresh failed",
			slog.String("category", category),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to refresh cache")
		return
	}

	scope := "all"
	if category != "" {
		scope = domain.NormalizeCategory(category)
	}
	h.logger.InfoContext(r.Context(), "handler: cache refreshed", slog.String("scope", scope))
	writeJSON(w, http.StatusOK, map[string]any{"refreshed": scope})
}
