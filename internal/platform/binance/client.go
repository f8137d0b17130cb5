// Package binance is a thin USDⓈ-M futures REST adapter implementing
// domain.ExchangeGateway. It signs requests with HMAC-SHA256, paces them with
// a token bucket and maps exchange error codes onto domain errors.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/betbridge/internal/crypto"
	"github.com/alanyoungcy/betbridge/internal/domain"
	"github.com/alanyoungcy/betbridge/internal/pricing"
)

// Config holds the account credentials and trading parameters.
type Config struct {
	BaseURL           string
	APIKey            string
	SecretKey         string
	Symbol            string
	Leverage          int
	MarginType        string // ISOLATED or CROSSED
	RecvWindowMs      int
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// Futures is the futures REST client.
type Futures struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth
	limiter    *rate.Limiter
	policy     pricing.Policy
	logger     *slog.Logger
}

// New creates a Futures client. policy supplies the quantity step used to
// size entry orders.
func New(cfg Config, policy pricing.Policy, logger *slog.Logger) *Futures {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Futures{
		cfg:        cfg,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		auth:       &crypto.HMACAuth{Key: cfg.APIKey, Secret: cfg.SecretKey},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		policy:     policy,
		logger:     logger.With(slog.String("component", "binance")),
	}
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doSigned sends a signed request with params in the query string and decodes
// the JSON response into out (which may be nil).
func (f *Futures) doSigned(ctx context.Context, method, path string, params url.Values, out any) error {
	query := f.auth.SignQuery(params, f.cfg.RecvWindowMs)
	return f.do(ctx, method, path, query, true, out)
}

// doPublic sends an unsigned request.
func (f *Futures) doPublic(ctx context.Context, path string, params url.Values, out any) error {
	return f.do(ctx, http.MethodGet, path, params.Encode(), false, out)
}

func (f *Futures) do(ctx context.Context, method, path, query string, signed bool, out any) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("binance: rate limiter: %w", err)
	}

	u := f.baseURL + path
	if query != "" {
		u += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("binance: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if signed {
		req.Header.Set(crypto.APIKeyHeader, f.auth.Key)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("binance: %s %s: %w: %v", method, path, domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("binance: read response: %w: %v", domain.ErrTransient, err)
	}

	f.logger.DebugContext(ctx, "exchange request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	if err := checkResponse(resp.StatusCode, body); err != nil {
		return fmt.Errorf("binance: %s %s: %w", method, path, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("binance: decode %s response: %w", path, err)
	}
	return nil
}

// Exchange error codes with a domain meaning.
const (
	codeDisconnected       = -1001
	codeTooManyRequests    = -1003
	codeTimeout            = -1007
	codeTimestampOutside   = -1021
	codeCancelRejected     = -2011
	codeNoSuchOrder        = -2013
	codeInvalidAPIKey      = -2014
	codeRejectedAPIKey     = -2015
	codeDuplicateClientID  = -4015
	codeNoNeedChangeMargin = -4046
	codeClientIDDuplicated = -4116
)

// APIError is an error body returned by the exchange.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d code %d: %s", e.Status, e.Code, e.Msg)
}

// checkResponse maps non-2xx responses onto domain errors, keeping the
// APIError in the chain.
func checkResponse(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Msg == "" {
		apiErr.Msg = truncate(string(body), 256)
	}

	var kind error
	switch {
	case apiErr.Code == codeDuplicateClientID, apiErr.Code == codeClientIDDuplicated:
		kind = domain.ErrDuplicateClientOrderID
	case apiErr.Code == codeCancelRejected, apiErr.Code == codeNoSuchOrder:
		kind = domain.ErrOrderNotFound
	case apiErr.Code == codeInvalidAPIKey, apiErr.Code == codeRejectedAPIKey,
		status == http.StatusUnauthorized:
		kind = domain.ErrUnauthorized
	case apiErr.Code == codeDisconnected, apiErr.Code == codeTooManyRequests,
		apiErr.Code == codeTimeout, apiErr.Code == codeTimestampOutside,
		status == http.StatusTooManyRequests, status == http.StatusTeapot,
		status >= 500:
		kind = domain.ErrTransient
	default:
		kind = domain.ErrRejectedOrder
	}
	return fmt.Errorf("%w: %w", kind, apiErr)
}

// errorCode extracts the exchange code from err, or 0.
func errorCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
