package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeUpstreamError maps a service error onto an HTTP status: bad input is
// 400, exchange rate limiting is passed through as 429, exchange timeouts are
// 504 and any other exchange failure is 502.
func writeUpstreamError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrInvalidArgument) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": apiErr.Error(), "upstream_status": apiErr.StatusCode})
		case apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusGatewayTimeout:
			writeJSON(w, http.StatusGatewayTimeout, map[string]any{"error": apiErr.Error(), "upstream_status": apiErr.StatusCode})
		default:
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": apiErr.Error(), "upstream_status": apiErr.StatusCode})
		}
		return
	}

	var netErr *domain.NetworkError
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			writeError(w, http.StatusGatewayTimeout, "upstream_timeout")
			return
		}
		writeError(w, http.StatusBadGateway, "upstream_unreachable")
		return
	}

	if errors.Is(err, domain.ErrMalformedResponse) {
		writeError(w, http.StatusBadGateway, "upstream_malformed_response")
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, "upstream_timeout")
		return
	}
	if errors.Is(err, context.Canceled) {
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// parseLimit reads ?limit=. A missing value selects def and values above
// maxLimit are capped. ok is false when the value is not a non-negative
// integer.
func parseLimit(r *http.Request, def, maxLimit int) (limit int, ok bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return min(n, maxLimit), true
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
