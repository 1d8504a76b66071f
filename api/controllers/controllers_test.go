package controllers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/storefront/pkg/types"
)

func serve(t *testing.T, handler http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Notices []types.Notice  `json:"notices"`
	Error   *types.APIError `json:"error"`
}

func decodeEnvelope(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func decodeData(t *testing.T, env envelope, dest any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dest); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}
