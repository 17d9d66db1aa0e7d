package signed_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayme-github/cryptex/internal/exchange/signed"
)

func newEndpoint(endpointURL string, quirks signed.Quirks) *signed.Endpoint {
	return signed.NewEndpoint(signed.EndpointConfig{
		URL:    endpointURL,
		Key:    "test-key",
		Secret: "test-secret",
		Quirks: quirks,
	})
}

func parseForm(body []byte) (url.Values, error) {
	return url.ParseQuery(string(body))
}

func TestEndpoint_SignsRequest(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-key", r.Header.Get("Key"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		mac := hmac.New(sha512.New, []byte("test-secret"))
		mac.Write(body)
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), r.Header.Get("Sign"),
			"Sign header must be the HMAC-SHA512 of the form-encoded payload")

		values, err := parseForm(body)
		require.NoError(t, err)
		assert.Equal(t, "getInfo", values.Get("method"))
		assert.Equal(t, "1", values.Get("nonce"))
		assert.Equal(t, "extra", values.Get("param"))

		_, _ = w.Write([]byte(`{"success": 1, "return": {"ok": true}}`))
	}))
	defer server.Close()

	endpoint := newEndpoint(server.URL, signed.Quirks{})

	result, err := endpoint.Do(context.Background(), "getInfo", map[string]string{"param": "extra"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(result))
}

func TestEndpoint_NonceIncreasesAcrossCalls(t *testing.T) {
	t.Parallel()

	var nonces []int64
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		n, err := strconv.ParseInt(r.PostFormValue("nonce"), 10, 64)
		require.NoError(t, err)
		nonces = append(nonces, n)

		calls++
		if calls == 2 {
			// A failing call still consumes its nonce.
			_, _ = w.Write([]byte(`{"success": 0, "error": "bad request"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success": 1, "return": {}}`))
	}))
	defer server.Close()

	endpoint := newEndpoint(server.URL, signed.Quirks{})
	ctx := context.Background()

	_, err := endpoint.Do(ctx, "TradeHistory", nil)
	require.NoError(t, err)
	_, err = endpoint.Do(ctx, "TradeHistory", nil)
	require.Error(t, err)
	_, err = endpoint.Do(ctx, "TradeHistory", nil)
	require.NoError(t, err)

	require.Equal(t, []int64{1, 2, 3}, nonces, "each call must consume exactly one nonce, even on failure")
}

func TestEndpoint_EnvelopeFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		wantMessage string
	}{
		{
			name:        "integer success flag",
			body:        `{"success": 0, "error": "bad request"}`,
			wantMessage: "bad request",
		},
		{
			name:        "string success flag",
			body:        `{"success": "0", "error": "bad request"}`,
			wantMessage: "bad request",
		},
		{
			name:        "empty body",
			body:        "",
			wantMessage: "Empty response",
		},
		{
			name:        "empty object",
			body:        `{}`,
			wantMessage: "Empty response",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			endpoint := newEndpoint(server.URL, signed.Quirks{})

			_, err := endpoint.Do(context.Background(), "getInfo", nil)
			require.Error(t, err)

			var apiErr *signed.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
		})
	}
}

func TestEndpoint_SuccessAsString(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": "1", "return": [1, 2, 3]}`))
	}))
	defer server.Close()

	endpoint := newEndpoint(server.URL, signed.Quirks{})

	result, err := endpoint.Do(context.Background(), "getmarkets", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[1, 2, 3]`, string(result))
}

func TestEndpoint_NonceRejection(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": 0, "error": "invalid nonce parameter; on key:100, you sent:5"}`))
	}))
	defer server.Close()

	endpoint := newEndpoint(server.URL, signed.Quirks{})

	_, err := endpoint.Do(context.Background(), "getInfo", nil)
	require.ErrorIs(t, err, signed.ErrNonceLimitReached)
	require.ErrorIs(t, err, signed.ErrInvalidNonce)
}

func TestEndpoint_TranslateErrorQuirk(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": 0, "error": "no orders"}`))
	}))
	defer server.Close()

	quirks := signed.Quirks{
		TranslateError: func(method, message string) (json.RawMessage, bool) {
			if message == "no orders" {
				return json.RawMessage(`{}`), true
			}
			return nil, false
		},
	}
	endpoint := newEndpoint(server.URL, quirks)

	result, err := endpoint.Do(context.Background(), "ActiveOrders", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(result))
}

func TestEndpoint_TranslateErrorQuirkDeclines(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": 0, "error": "bad request"}`))
	}))
	defer server.Close()

	quirks := signed.Quirks{
		TranslateError: func(method, message string) (json.RawMessage, bool) {
			return nil, false
		},
	}
	endpoint := newEndpoint(server.URL, quirks)

	_, err := endpoint.Do(context.Background(), "ActiveOrders", nil)

	var apiErr *signed.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad request", apiErr.Message)
}

func TestEndpoint_NormalizeResponseQuirk(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": 1, "orderid": 42}`))
	}))
	defer server.Close()

	quirks := signed.Quirks{
		NormalizeResponse: func(method string, body []byte) []byte {
			if method != "createorder" {
				return body
			}
			return []byte(`{"success": 1, "return": {"orderid": 42}}`)
		},
	}
	endpoint := newEndpoint(server.URL, quirks)

	result, err := endpoint.Do(context.Background(), "createorder", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"orderid": 42}`, string(result))
}

func TestEndpoint_TransportErrorPropagates(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // Closed before use: every request fails at transport level.

	endpoint := newEndpoint(server.URL, signed.Quirks{})

	_, err := endpoint.Do(context.Background(), "getInfo", nil)
	require.Error(t, err)

	var apiErr *signed.APIError
	assert.False(t, errors.As(err, &apiErr), "transport errors must not be wrapped as API errors")
}
