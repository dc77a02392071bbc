package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestLoginExchangesCallbackCode(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing exchange form: %v", err)
		}
		if got := r.PostFormValue("code"); got != "the-code" {
			t.Errorf("exchanged code = %q, want the-code", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at",
			"refresh_token": "rt",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer tokenSrv.Close()

	const addr = "127.0.0.1:18374"
	cfg := LoginConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURI:  "http://" + addr + "/callback",
		AuthorizeURL: "https://authorize.example/oauth/authorize",
		TokenURL:     tokenSrv.URL,
		CallbackAddr: addr,
		Timeout:      5 * time.Second,
		// Stand in for the user's browser: read the state from the
		// authorization URL and hit the callback directly.
		OpenBrowser: func(authURL string) error {
			u, err := url.Parse(authURL)
			if err != nil {
				return err
			}
			state := u.Query().Get("state")
			if state == "" {
				return fmt.Errorf("authorization URL carries no state")
			}
			go func() {
				resp, err := http.Get("http://" + addr + "/callback?code=the-code&state=" + url.QueryEscape(state))
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	}

	tok, err := Login(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if tok.AccessToken != "at" || tok.RefreshToken != "rt" {
		t.Errorf("token = %+v", tok)
	}
	if tok.ExpiresAt.IsZero() {
		t.Error("ExpiresAt not set from expires_in")
	}
}

func TestLoginRejectsStateMismatch(t *testing.T) {
	const addr = "127.0.0.1:18375"
	cfg := LoginConfig{
		ClientID:     "id",
		RedirectURI:  "http://" + addr + "/callback",
		AuthorizeURL: "https://authorize.example/oauth/authorize",
		TokenURL:     "https://authorize.example/oauth/token",
		CallbackAddr: addr,
		Timeout:      5 * time.Second,
		OpenBrowser: func(authURL string) error {
			go func() {
				resp, err := http.Get("http://" + addr + "/callback?code=the-code&state=forged")
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	}

	if _, err := Login(context.Background(), cfg, discardLogger()); err == nil {
		t.Fatal("Login() error = nil, want state mismatch")
	}
}

func TestLoginSurfacesProviderError(t *testing.T) {
	const addr = "127.0.0.1:18376"
	cfg := LoginConfig{
		ClientID:     "id",
		RedirectURI:  "http://" + addr + "/callback",
		AuthorizeURL: "https://authorize.example/oauth/authorize",
		TokenURL:     "https://authorize.example/oauth/token",
		CallbackAddr: addr,
		Timeout:      5 * time.Second,
		OpenBrowser: func(authURL string) error {
			go func() {
				resp, err := http.Get("http://" + addr + "/callback?error=access_denied&error_description=user+said+no")
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	}

	_, err := Login(context.Background(), cfg, discardLogger())
	if err == nil {
		t.Fatal("Login() error = nil, want authorization failure")
	}
	if got := err.Error(); got != "authorization failed: user said no" {
		t.Errorf("error = %q", got)
	}
}

func TestLoginTimesOut(t *testing.T) {
	cfg := LoginConfig{
		ClientID:     "id",
		RedirectURI:  "http://127.0.0.1:18377/callback",
		AuthorizeURL: "https://authorize.example/oauth/authorize",
		TokenURL:     "https://authorize.example/oauth/token",
		CallbackAddr: "127.0.0.1:18377",
		Timeout:      50 * time.Millisecond,
	}

	if _, err := Login(context.Background(), cfg, discardLogger()); err == nil {
		t.Fatal("Login() error = nil, want timeout")
	}
}
