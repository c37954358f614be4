package tankutility

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const (
	testEmail    = "owner@example.com"
	testPassword = "hunter2"
)

// fakeAPI is an httptest-backed stand-in for the Tank Utility API.
// Each endpoint handler may be replaced per test; calls are counted.
type fakeAPI struct {
	server *httptest.Server

	tokenCalls   atomic.Int32
	devicesCalls atomic.Int32
	deviceCalls  atomic.Int32

	token   http.HandlerFunc
	devices http.HandlerFunc
	device  http.HandlerFunc
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	f := &fakeAPI{}
	f.token = func(w http.ResponseWriter, r *http.Request) {
		email, password, ok := r.BasicAuth()
		if !ok || email != testEmail || password != testPassword {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{"token": "token-1"})
	}
	f.devices = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"devices": []string{"dev-a", "dev-b"}})
	}
	f.device = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"device": map[string]any{"name": "House"}})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/getToken", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		f.token(w, r)
	})
	mux.HandleFunc("GET /api/devices", func(w http.ResponseWriter, r *http.Request) {
		f.devicesCalls.Add(1)
		f.devices(w, r)
	})
	mux.HandleFunc("GET /api/devices/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.deviceCalls.Add(1)
		f.device(w, r)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// client returns a Client pointed at the fake API with the test credentials.
func (f *fakeAPI) client() *Client {
	return New(Config{
		BaseURL:     f.server.URL + "/api",
		Credentials: Credentials{Email: testEmail, Password: testPassword},
		Timeout:     5 * time.Second,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// sequenceTokens makes the token endpoint return the given tokens in order,
// repeating the last one.
func (f *fakeAPI) sequenceTokens(tokens ...string) {
	var n atomic.Int32
	f.token = func(w http.ResponseWriter, _ *http.Request) {
		i := int(n.Add(1)) - 1
		if i >= len(tokens) {
			i = len(tokens) - 1
		}
		writeJSON(w, map[string]any{"token": tokens[i]})
	}
}
