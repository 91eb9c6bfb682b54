package ratelimiter

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lowc1012/tiered-rate-limiter/internal/log"
	"github.com/lowc1012/tiered-rate-limiter/pkg/utils"
)

const (
	rateLimitTier      = "X-Ratelimit-Tier"
	rateLimitLimit     = "X-Ratelimit-Limit"
	rateLimitRemaining = "X-Ratelimit-Remaining"
	rateLimitWindow    = "X-Ratelimit-Window"
	retryAfter         = "Retry-After"
	requestID          = "X-Request-ID"
)

// Observer is notified of every admission decision. err is nil when the call was allowed.
type Observer interface {
	Observe(tier string, err error)
}

// Config defines the configuration for the rate limiter handler.
type Config struct {
	// Zone, Key and Tier extract the CheckLimit arguments from a request.
	Zone    utils.Extractor
	Key     utils.Extractor
	Tier    utils.Extractor
	Limiter Limiter
	// Observer is optional.
	Observer Observer
	// FailOpen lets requests through when the store cannot be reached.
	FailOpen bool
	// Logger defaults to the process-wide logger.
	Logger *zap.Logger
}

type httpRateLimiterHandler struct {
	handler http.Handler
	config  *Config
	logger  *zap.Logger
}

// NewHTTPRateLimiterHandler wraps an existing http.Handler object performing rate limiting before
// sending the request to the wrapped handler. If any errors happen while trying to rate limit a request
// or if the request is denied, the rate limiting handler will send a response to the client and will not
// call the wrapped handler.
func NewHTTPRateLimiterHandler(originalHandler http.Handler, config *Config) http.Handler {
	return &httpRateLimiterHandler{
		handler: originalHandler,
		config:  config,
		logger:  loggerOrDefault(config.Logger),
	}
}

func loggerOrDefault(l *zap.Logger) *zap.Logger {
	if l == nil {
		return log.Logger()
	}
	return l
}

func writeResponse(logger *zap.Logger, writer http.ResponseWriter, status int, msg string, args ...interface{}) {
	writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	writer.WriteHeader(status)
	if _, err := fmt.Fprintf(writer, msg, args...); err != nil {
		logger.Warn("Failed to write body to HTTP response", zap.Error(err))
	}
}

func (h *httpRateLimiterHandler) extract(request *http.Request) (zone, key, tier string, err error) {
	if zone, err = h.config.Zone.Extract(request); err != nil {
		return "", "", "", fmt.Errorf("zone: %w", err)
	}
	if key, err = h.config.Key.Extract(request); err != nil {
		return "", "", "", fmt.Errorf("key: %w", err)
	}
	if tier, err = h.config.Tier.Extract(request); err != nil {
		return "", "", "", fmt.Errorf("tier: %w", err)
	}
	return zone, key, tier, nil
}

// ServeHTTP performs rate limiting with the configuration it was provided and if there were no errors
// and the request was allowed it is sent to the wrapped handler. Rate limiting headers are set on
// both allowed and rejected responses.
func (h *httpRateLimiterHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	id := request.Header.Get(requestID)
	if id == "" {
		id = uuid.NewString()
	}
	writer.Header().Set(requestID, id)
	logger := h.logger.With(zap.String("request_id", id))

	zone, key, tier, err := h.extract(request)
	if err != nil {
		writeResponse(logger, writer, http.StatusBadRequest, "failed to collect rate limiting key from request: %v", err)
		return
	}
	writer.Header().Set(rateLimitTier, tier)

	result, err := h.config.Limiter.CheckLimit(request.Context(), zone, key, tier)
	if h.config.Observer != nil {
		h.config.Observer.Observe(tier, err)
	}

	if qe, ok := IsQuotaExceeded(err); ok {
		setWindowHeaders(writer, qe.Window, qe.Ceiling, 0)
		writer.Header().Set(retryAfter, strconv.FormatInt(int64(math.Ceil(qe.RetryAfter.Seconds())), 10))
		logger.Debug("Request rejected",
			zap.String("zone", zone), zap.String("key", key), zap.Error(err))
		writeResponse(logger, writer, http.StatusTooManyRequests, "%v, retry in %v", err, qe.RetryAfter)
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownTier), errors.Is(err, ErrEmptyKey):
		writeResponse(logger, writer, http.StatusBadRequest, "failed to run rate limiting for request: %v", err)
		return
	case errors.Is(err, ErrStoreUnavailable) && h.config.FailOpen:
		logger.Warn("Rate limit store unavailable, letting request through", zap.Error(err))
		h.handler.ServeHTTP(writer, request)
		return
	case errors.Is(err, ErrStoreUnavailable):
		logger.Error("Rate limit store unavailable", zap.Error(err))
		writeResponse(logger, writer, http.StatusServiceUnavailable, "rate limiting is unavailable")
		return
	default:
		logger.Error("Failed to run rate limiting", zap.Error(err))
		writeResponse(logger, writer, http.StatusInternalServerError, "failed to run rate limiting for request: %v", err)
		return
	}

	if c, ok := result.Tightest(); ok {
		setWindowHeaders(writer, c.Window, c.Ceiling, c.Remaining())
	}

	// the headers are already set, so the wrapped handler doesn't have to know
	// there was rate limiting happening for this request
	h.handler.ServeHTTP(writer, request)
}

func setWindowHeaders(writer http.ResponseWriter, w Window, ceiling, remaining int64) {
	writer.Header().Set(rateLimitWindow, w.String())
	writer.Header().Set(rateLimitLimit, strconv.FormatInt(ceiling, 10))
	writer.Header().Set(rateLimitRemaining, strconv.FormatInt(remaining, 10))
}

// UsageResponse is the body served by the usage handler.
type UsageResponse struct {
	Zone  string       `json:"zone"`
	Key   string       `json:"key"`
	Usage []DailyUsage `json:"usage"`
}

type usageHandler struct {
	limiter Limiter
	logger  *zap.Logger
}

// NewUsageHandler serves GET ?zone=&key=&since=YYYY-MM-DD with the daily usage
// of a key as JSON. A nil logger means the process-wide logger.
func NewUsageHandler(limiter Limiter, logger *zap.Logger) http.Handler {
	return &usageHandler{limiter: limiter, logger: loggerOrDefault(logger)}
}

func (h *usageHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writer.Header().Set("Allow", http.MethodGet)
		writeResponse(h.logger, writer, http.StatusMethodNotAllowed, "method %s not allowed", request.Method)
		return
	}

	q := request.URL.Query()
	zone, key := q.Get("zone"), q.Get("key")
	since, err := civil.ParseDate(q.Get("since"))
	if err != nil {
		writeResponse(h.logger, writer, http.StatusBadRequest, "since must be a YYYY-MM-DD date: %v", err)
		return
	}

	usage, err := h.limiter.GetUsageSince(request.Context(), zone, key, since)
	switch {
	case err == nil:
	case errors.Is(err, ErrDailyTrackingDisabled):
		writeResponse(h.logger, writer, http.StatusConflict, "%v", err)
		return
	case errors.Is(err, ErrEmptyKey), errors.Is(err, ErrUsageRangeTooLarge):
		writeResponse(h.logger, writer, http.StatusBadRequest, "%v", err)
		return
	case errors.Is(err, ErrStoreUnavailable):
		h.logger.Error("Failed to read usage", zap.String("zone", zone), zap.String("key", key), zap.Error(err))
		writeResponse(h.logger, writer, http.StatusServiceUnavailable, "rate limiting is unavailable")
		return
	default:
		h.logger.Error("Failed to read usage", zap.String("zone", zone), zap.String("key", key), zap.Error(err))
		writeResponse(h.logger, writer, http.StatusInternalServerError, "failed to read usage: %v", err)
		return
	}

	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(UsageResponse{Zone: zone, Key: key, Usage: usage}); err != nil {
		h.logger.Warn("Failed to write body to HTTP response", zap.Error(err))
	}
}
