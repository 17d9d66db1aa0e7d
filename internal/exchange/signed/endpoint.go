// Package signed implements the single-endpoint API protocol shared by
// BTC-e and Cryptsy. Every private action is a form-encoded POST of a
// method name plus parameters to one fixed URL, authenticated with a
// strictly increasing nonce and an HMAC-SHA512 signature, and answered
// with a {success, return|error} JSON envelope. Public market data uses
// the same envelope over unauthenticated GET requests.
package signed

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// APIError represents a failure reported inside the response envelope:
// a zero success flag, or a body that could not be interpreted at all.
type APIError struct {
	// Message is the error string the exchange returned.
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s", e.Message)
}

// Quirks are the per-exchange deviations from the shared protocol. They
// are supplied by the adapter so that the protocol layer never branches
// on exchange identity.
type Quirks struct {
	// TranslateError may turn a specific benign error message into a
	// successful result. BTC-e, for example, reports an empty order
	// list as the error "no orders". Returning ok=false propagates the
	// APIError unchanged.
	TranslateError func(method, message string) (json.RawMessage, bool)
	// NormalizeResponse rewrites a response body whose shape deviates
	// for a single method before envelope parsing. Cryptsy's
	// createorder response places its fields at the top level instead
	// of under "return".
	NormalizeResponse func(method string, body []byte) []byte
}

// Endpoint performs authenticated requests against one exchange's trade
// API. It owns the nonce counter for its credential set and is safe for
// concurrent use, though concurrent signed calls may still be rejected by
// the exchange if they arrive out of nonce order.
type Endpoint struct {
	url        string
	key        string
	secret     []byte
	nonce      *Nonce
	quirks     Quirks
	httpClient *http.Client
	logger     *zap.Logger
}

// EndpointConfig holds configuration for creating an Endpoint.
type EndpointConfig struct {
	// URL is the fixed trade API endpoint.
	URL string
	// Key is the public API key identifier, sent as the Key header.
	Key string
	// Secret is the shared secret used as the HMAC key. It is never
	// logged and never transmitted.
	Secret string
	// NonceSeed is the last nonce already consumed by this key, or 0
	// for a fresh key.
	NonceSeed int64
	// Quirks holds the exchange-specific protocol deviations.
	Quirks Quirks
	// Logger is the logger instance.
	Logger *zap.Logger
}

// NewEndpoint creates an authenticated endpoint for one credential set.
func NewEndpoint(cfg EndpointConfig) *Endpoint {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Endpoint{
		url:        cfg.URL,
		key:        cfg.Key,
		secret:     []byte(cfg.Secret),
		nonce:      NewNonce(cfg.NonceSeed),
		quirks:     cfg.Quirks,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// sign computes the hex HMAC-SHA512 digest of the form-encoded payload.
func (e *Endpoint) sign(payload string) string {
	mac := hmac.New(sha512.New, e.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Do performs one signed call. It allocates exactly one nonce, posts the
// form-encoded payload with Key and Sign headers, and unwraps the
// response envelope. Transport errors are not retried here; retry and
// backoff policy belong to the caller.
func (e *Endpoint) Do(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	nonce, err := e.nonce.Next()
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("method", method)
	form.Set("nonce", strconv.FormatInt(nonce, 10))
	for k, v := range params {
		form.Set(k, v)
	}
	payload := form.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, strings.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Key", e.key)
	req.Header.Set("Sign", e.sign(payload))

	e.logger.Debug("sending signed request",
		zap.String("method", method),
		zap.Int64("nonce", nonce))

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if e.quirks.NormalizeResponse != nil {
		body = e.quirks.NormalizeResponse(method, body)
	}

	result, err := parseEnvelope(body)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if isNonceRejection(apiErr.Message) {
				return nil, fmt.Errorf("%s: %w", apiErr.Message, ErrNonceLimitReached)
			}
			if e.quirks.TranslateError != nil {
				if translated, ok := e.quirks.TranslateError(method, apiErr.Message); ok {
					e.logger.Debug("translated benign api error",
						zap.String("method", method),
						zap.String("message", apiErr.Message))
					return translated, nil
				}
			}
			e.logger.Warn("api error",
				zap.String("method", method),
				zap.String("message", apiErr.Message))
		}
		return nil, err
	}
	return result, nil
}

// isNonceRejection recognizes the exchange's nonce rejection message,
// e.g. "invalid nonce parameter; on key:123, you sent:45".
func isNonceRejection(message string) bool {
	return strings.Contains(strings.ToLower(message), "invalid nonce")
}

// envelope is the JSON wrapper both exchanges use. Success is kept raw
// because Cryptsy encodes it as a numeric string while BTC-e uses an
// integer.
type envelope struct {
	Success json.RawMessage `json:"success"`
	Return  json.RawMessage `json:"return"`
	Error   string          `json:"error"`
}

// parseEnvelope interprets the {success, return|error} wrapper. A zero
// success flag yields an *APIError with the exchange's message; on
// success the return field is unwrapped if present, otherwise the whole
// body is returned. Monetary leaves stay raw here; adapters decode them
// into decimals, never into binary floats.
func parseEnvelope(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return nil, &APIError{Message: "Empty response"}
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if env.Success != nil {
		ok, err := successValue(env.Success)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &APIError{Message: env.Error}
		}
	}

	if env.Return != nil {
		return env.Return, nil
	}
	return json.RawMessage(trimmed), nil
}

// successValue interprets the success flag, which arrives either as an
// integer or as a numeric string.
func successValue(raw json.RawMessage) (bool, error) {
	s := strings.Trim(string(bytes.TrimSpace(raw)), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return false, &APIError{Message: fmt.Sprintf("unrecognized success value %q", s)}
	}
	return n == 1, nil
}
