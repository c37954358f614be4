package tankutility

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

func TestToken_CachesToken(t *testing.T) {
	api := newFakeAPI(t)
	client := api.client()
	ctx := context.Background()

	first, err := client.Token(ctx, false)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	second, err := client.Token(ctx, false)
	if err != nil {
		t.Fatalf("Token() second call error = %v", err)
	}

	if first != "token-1" || second != first {
		t.Errorf("Token() = %q then %q, want token-1 twice", first, second)
	}
	if got := api.tokenCalls.Load(); got != 1 {
		t.Errorf("token endpoint calls = %d, want 1", got)
	}
}

func TestToken_ForceRefresh(t *testing.T) {
	api := newFakeAPI(t)
	api.sequenceTokens("token-1", "token-2")
	client := api.client()
	ctx := context.Background()

	if _, err := client.Token(ctx, false); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	refreshed, err := client.Token(ctx, true)
	if err != nil {
		t.Fatalf("Token(force) error = %v", err)
	}

	if refreshed != "token-2" {
		t.Errorf("Token(force) = %q, want token-2", refreshed)
	}
	if got := api.tokenCalls.Load(); got != 2 {
		t.Errorf("token endpoint calls = %d, want 2", got)
	}

	cached, _ := client.Token(ctx, false)
	if cached != "token-2" {
		t.Errorf("cached token after refresh = %q, want token-2", cached)
	}
}

func TestToken_ConcurrentForcedRefresh(t *testing.T) {
	api := newFakeAPI(t)
	release := make(chan struct{})
	api.token = func(w http.ResponseWriter, _ *http.Request) {
		<-release
		writeJSON(w, map[string]any{"token": "shared-token"})
	}
	client := api.client()

	const callers = 10
	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)

	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			results[i], errs[i] = client.Token(context.Background(), true)
		}(i)
	}

	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	done.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: Token(force) error = %v", i, errs[i])
		}
		if results[i] != "shared-token" {
			t.Errorf("caller %d: Token(force) = %q, want shared-token", i, results[i])
		}
	}
	if got := api.tokenCalls.Load(); got != 1 {
		t.Errorf("token endpoint calls = %d, want 1", got)
	}
}

func TestToken_Errors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantAuth   bool
		wantStatus int
	}{
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			wantAuth: true,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "missing token field",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, map[string]any{"error": "nope"})
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "empty token",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, map[string]any{"token": ""})
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "undecodable body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html>maintenance</html>"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI(t)
			api.token = tt.handler

			_, err := api.client().Token(context.Background(), false)
			if err == nil {
				t.Fatal("Token() error = nil, want error")
			}

			if tt.wantAuth {
				if !errors.Is(err, ErrInvalidAuth) {
					t.Errorf("Token() error = %v, want ErrInvalidAuth", err)
				}
				if errors.Is(err, ErrAPI) {
					t.Error("auth failure must not also match ErrAPI")
				}
				return
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Token() error = %v, want *APIError", err)
			}
			if !errors.Is(err, ErrAPI) {
				t.Error("APIError should match ErrAPI")
			}
			if apiErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestToken_MislabelledContentType(t *testing.T) {
	api := newFakeAPI(t)
	api.token = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`{"token":"html-token"}`))
	}

	token, err := api.client().Token(context.Background(), false)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if token != "html-token" {
		t.Errorf("Token() = %q, want html-token", token)
	}
}

func TestToken_ConnectionError(t *testing.T) {
	api := newFakeAPI(t)
	client := api.client()
	api.server.Close()

	_, err := client.Token(context.Background(), false)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Token() error = %v, want *APIError", err)
	}
	if apiErr.Message != msgConnection {
		t.Errorf("Message = %q, want %q", apiErr.Message, msgConnection)
	}
	if apiErr.Err == nil {
		t.Error("connection error should carry the transport cause")
	}
}

func TestToken_CancelledRequestReleasesLock(t *testing.T) {
	api := newFakeAPI(t)
	var mu sync.Mutex
	calls := 0
	api.token = func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			<-r.Context().Done()
			return
		}
		writeJSON(w, map[string]any{"token": "after-cancel"})
	}
	client := api.client()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.Token(ctx, false); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Token() error = %v, want context.DeadlineExceeded", err)
	}

	got := make(chan string, 1)
	go func() {
		token, _ := client.Token(context.Background(), false)
		got <- token
	}()

	select {
	case token := <-got:
		if token != "after-cancel" {
			t.Errorf("Token() = %q, want after-cancel", token)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Token() blocked: refresh lock held after cancelled request")
	}
}

func TestToken_AuthFailureDropsCachedToken(t *testing.T) {
	api := newFakeAPI(t)
	client := api.client()
	ctx := context.Background()

	if _, err := client.Token(ctx, false); err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	api.token = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}
	if _, err := client.Token(ctx, true); !errors.Is(err, ErrInvalidAuth) {
		t.Fatalf("Token(force) error = %v, want ErrInvalidAuth", err)
	}

	// The rejected account's old token must not be served from cache.
	if _, err := client.Token(ctx, false); !errors.Is(err, ErrInvalidAuth) {
		t.Errorf("Token() after auth failure error = %v, want ErrInvalidAuth", err)
	}
	if got := api.tokenCalls.Load(); got != 3 {
		t.Errorf("token endpoint calls = %d, want 3", got)
	}
}
