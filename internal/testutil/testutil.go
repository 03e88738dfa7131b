// Package testutil provides common HTTP test helpers for ShopPipe handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// APIEnvelope mirrors models.APIResponse with the result left undecoded.
type APIEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// NewJSONRequest builds a request with a JSON body. A string body is sent as
// is, nil sends no body, anything else is marshaled.
func NewJSONRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		if b != "" {
			r = strings.NewReader(b)
		}
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Fatalf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// DecodeAPIResponse decodes the response envelope. Non-JSON responses yield
// an empty envelope.
func DecodeAPIResponse(t *testing.T, rr *httptest.ResponseRecorder) APIEnvelope {
	t.Helper()
	var env APIEnvelope
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		return env
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode JSON response %q: %v", rr.Body.String(), err)
	}
	return env
}

// DecodeResult decodes the envelope's result into T.
func DecodeResult[T any](t *testing.T, env APIEnvelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Result, &v); err != nil {
		t.Fatalf("failed to decode result %s: %v", env.Result, err)
	}
	return v
}
