package myq

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newTestClient builds a client pointed at a test server with fast timings.
func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()

	client, err := New(Config{
		Brand:         BrandLiftMaster,
		Username:      "user@example.com",
		Password:      "hunter2",
		RetryDelay:    time.Millisecond,
		ThrottleReset: time.Minute, // Quiet-period reset disabled for most tests
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	client.baseURL = serverURL
	return client
}

// loginServer serves the login endpoint with a fixed return code.
func loginServer(t *testing.T, returnCode string, requests *atomic.Int32) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}
		if r.URL.Path != pathLogin {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("MyQApplicationId") == "" {
			t.Error("missing MyQApplicationId header")
		}
		if returnCode == "0" {
			w.Write([]byte(`{"ReturnCode":"0","SecurityToken":"tok-abc123"}`))
			return
		}
		w.Write([]byte(`{"ReturnCode":"` + returnCode + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLogin_Success(t *testing.T) {
	srv := loginServer(t, "0", nil)
	client := newTestClient(t, srv.URL)

	if err := client.Login(context.Background(), false); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if client.Token() != "tok-abc123" {
		t.Errorf("Token() = %q, want %q", client.Token(), "tok-abc123")
	}

	status, _ := client.Status()
	if status != StatusOK {
		t.Errorf("Status() = %v, want %v", status, StatusOK)
	}
}

func TestLogin_Unauthorized(t *testing.T) {
	tests := []struct {
		name       string
		returnCode string
	}{
		{"bad credentials", "203"},
		{"last attempt before lockout", "205"},
		{"account locked out", "207"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := loginServer(t, tt.returnCode, nil)
			client := newTestClient(t, srv.URL)

			err := client.Login(context.Background(), false)
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("Login() error = %v, want ErrUnauthorized", err)
			}

			status, msg := client.Status()
			if status != StatusUnauthorized {
				t.Errorf("Status() = %v, want %v", status, StatusUnauthorized)
			}
			if msg == "" {
				t.Error("expected a status message describing the rejection")
			}
		})
	}
}

func TestLogin_ThrottleAfterThreeAttempts(t *testing.T) {
	var requests atomic.Int32
	srv := loginServer(t, "203", &requests)
	client := newTestClient(t, srv.URL)

	ctx := context.Background()

	// Two rejected attempts hit the network.
	for i := 0; i < 2; i++ {
		if err := client.Login(ctx, false); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Login() attempt %d error = %v, want ErrUnauthorized", i+1, err)
		}
	}

	before := requests.Load()

	// The third attempt trips the throttle without any network call.
	err := client.Login(ctx, false)
	if !errors.Is(err, ErrLoginThrottled) {
		t.Fatalf("Login() error = %v, want ErrLoginThrottled", err)
	}

	if requests.Load() != before {
		t.Errorf("throttled login made a network call: %d requests, want %d",
			requests.Load(), before)
	}

	status, msg := client.Status()
	if status != StatusThrottled {
		t.Errorf("Status() = %v, want %v", status, StatusThrottled)
	}
	if msg != "login attempts throttled" {
		t.Errorf("status message = %q, want %q", msg, "login attempts throttled")
	}
}

func TestLogin_OverrideThrottle(t *testing.T) {
	srv := loginServer(t, "0", nil)
	client := newTestClient(t, srv.URL)

	client.sessMu.Lock()
	client.throttleAttempts = 5
	client.sessMu.Unlock()

	if err := client.Login(context.Background(), true); err != nil {
		t.Fatalf("Login(override) error = %v", err)
	}

	if client.Token() == "" {
		t.Error("expected token after override login")
	}
}

func TestLogin_TransportFailureDoesNotNetIncrement(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	err := client.Login(context.Background(), false)
	if !errors.Is(err, ErrServiceDown) {
		t.Fatalf("Login() error = %v, want ErrServiceDown", err)
	}

	// All transport tries consumed
	if got := requests.Load(); got != maxLoginTries {
		t.Errorf("requests = %d, want %d", got, maxLoginTries)
	}

	// The attempt counter must be walked back so flaky networking never
	// trips the throttle.
	client.sessMu.Lock()
	attempts := client.throttleAttempts
	client.sessMu.Unlock()
	if attempts != 0 {
		t.Errorf("throttleAttempts = %d, want 0 after transport failure", attempts)
	}

	status, _ := client.Status()
	if status != StatusServiceDown {
		t.Errorf("Status() = %v, want %v", status, StatusServiceDown)
	}
}

func TestLogin_MalformedResponseIsServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	err := client.Login(context.Background(), false)
	if !errors.Is(err, ErrServiceDown) {
		t.Fatalf("Login() error = %v, want ErrServiceDown", err)
	}
}

func TestLogin_MissingTokenIsServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"ReturnCode":"0"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	err := client.Login(context.Background(), false)
	if !errors.Is(err, ErrServiceDown) {
		t.Fatalf("Login() error = %v, want ErrServiceDown", err)
	}
}

func TestLogin_Suppressed(t *testing.T) {
	srv := loginServer(t, "0", nil)
	client := newTestClient(t, srv.URL)

	client.loginInFlight.Store(true)
	defer client.loginInFlight.Store(false)

	err := client.Login(context.Background(), false)
	if !errors.Is(err, ErrLoginSuppressed) {
		t.Fatalf("Login() error = %v, want ErrLoginSuppressed", err)
	}
}

func TestLogin_ResetTimerZeroesCounter(t *testing.T) {
	srv := loginServer(t, "203", nil)
	client := newTestClient(t, srv.URL)
	client.throttleResetAfter = 20 * time.Millisecond

	if err := client.Login(context.Background(), false); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Login() error = %v, want ErrUnauthorized", err)
	}

	client.sessMu.Lock()
	attempts := client.throttleAttempts
	client.sessMu.Unlock()
	if attempts != 1 {
		t.Fatalf("throttleAttempts = %d, want 1", attempts)
	}

	time.Sleep(100 * time.Millisecond)

	client.sessMu.Lock()
	attempts = client.throttleAttempts
	client.sessMu.Unlock()
	if attempts != 0 {
		t.Errorf("throttleAttempts = %d, want 0 after quiet period", attempts)
	}
}

func TestLogin_AutomaticRetryAfterThrottle(t *testing.T) {
	srv := loginServer(t, "0", nil)
	client := newTestClient(t, srv.URL)
	client.throttleRetryAfter = 20 * time.Millisecond

	client.sessMu.Lock()
	client.throttleAttempts = maxLoginAttempts - 1
	client.sessMu.Unlock()

	if err := client.Login(context.Background(), false); !errors.Is(err, ErrLoginThrottled) {
		t.Fatalf("Login() error = %v, want ErrLoginThrottled", err)
	}

	// The automatic retry overrides the throttle and succeeds.
	deadline := time.After(2 * time.Second)
	for client.Token() == "" {
		select {
		case <-deadline:
			t.Fatal("automatic retry never established a session")
		case <-time.After(10 * time.Millisecond):
		}
	}

	status, _ := client.Status()
	if status != StatusOK {
		t.Errorf("Status() = %v, want %v after automatic retry", status, StatusOK)
	}
}

func TestParseReturnCode(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"-3333", -3333, false},
		{"203", 203, false},
		{"", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseReturnCode(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseReturnCode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseReturnCode(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
