package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"
)

// Scopes requested during login. Read-only everywhere except time entries,
// which the time commands can create.
var Scopes = []string{
	"user:profile:read",
	"user:time_entries:read",
	"user:time_entries:write",
	"user:projects:read",
	"user:clients:read",
	"user:billable_items:read",
	"user:invoices:read",
	"user:payments:read",
	"user:teams:read",
	"user:expenses:read",
}

// LoginConfig configures the one-time authorization-code flow.
type LoginConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthorizeURL string
	TokenURL     string
	CallbackAddr string        // local listener, e.g. "127.0.0.1:8374"
	Timeout      time.Duration // how long to wait for the callback

	// OpenBrowser launches the user's browser at the authorization URL.
	// When nil (or when it fails) the URL is only logged for manual use.
	OpenBrowser func(url string) error
}

type callbackResult struct {
	code  string
	state string
	err   error
}

// Login runs the OAuth authorization-code flow: it starts a localhost
// callback listener, sends the user to the authorization URL, and exchanges
// the returned code for a token pair. This is a one-time bootstrap; routine
// refresh lives in the API client.
func Login(ctx context.Context, cfg LoginConfig, logger *slog.Logger) (Token, error) {
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthorizeURL,
			TokenURL: cfg.TokenURL,
		},
	}

	state, err := randomState()
	if err != nil {
		return Token{}, err
	}

	results := make(chan callbackResult, 1)

	r := chi.NewRouter()
	r.Get("/callback", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if errCode := q.Get("error"); errCode != "" {
			desc := q.Get("error_description")
			if desc == "" {
				desc = errCode
			}
			writeCallbackPage(w, http.StatusBadRequest, "Authorization failed", desc)
			results <- callbackResult{err: fmt.Errorf("authorization failed: %s", desc)}
			return
		}
		code := q.Get("code")
		if code == "" {
			http.NotFound(w, req)
			return
		}
		writeCallbackPage(w, http.StatusOK, "Authorization successful", "You can close this window and return to the terminal.")
		results <- callbackResult{code: code, state: q.Get("state")}
	})

	ln, err := net.Listen("tcp", cfg.CallbackAddr)
	if err != nil {
		return Token{}, fmt.Errorf("starting callback listener on %s: %w", cfg.CallbackAddr, err)
	}
	srv := &http.Server{Handler: r}
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			results <- callbackResult{err: fmt.Errorf("callback listener: %w", serveErr)}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := oc.AuthCodeURL(state)
	logger.Info("waiting for authorization", "url", authURL)
	if cfg.OpenBrowser != nil {
		if err := cfg.OpenBrowser(authURL); err != nil {
			logger.Warn("could not open browser, visit the URL manually", "error", err)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	var res callbackResult
	select {
	case res = <-results:
	case <-time.After(timeout):
		return Token{}, errors.New("authorization timed out")
	case <-ctx.Done():
		return Token{}, ctx.Err()
	}
	if res.err != nil {
		return Token{}, res.err
	}
	if res.state != state {
		return Token{}, errors.New("authorization response state mismatch")
	}

	tok, err := oc.Exchange(ctx, res.code)
	if err != nil {
		return Token{}, fmt.Errorf("exchanging authorization code: %w", err)
	}

	return Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresAt:    tok.Expiry,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// randomState returns an unguessable state parameter for the authorization
// request.
func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func writeCallbackPage(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<html><head><title>tally - %s</title></head>
<body style="font-family: system-ui; text-align: center; padding: 50px;">
<h1>%s</h1><p>%s</p></body></html>`, title, title, detail)
}
