package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/alecgard/tally/internal/auth"
	"github.com/alecgard/tally/internal/config"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the FreshBooks session",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in via the browser and store the session",
	RunE:  runAuthLogin,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	RunE:  runAuthStatus,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE:  runAuthLogout,
}

func init() {
	authCmd.AddCommand(authLoginCmd, authStatusCmd, authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.finish()

	oauth := a.cfg.OAuth
	if oauth.ClientID == "" || oauth.ClientSecret == "" {
		return fmt.Errorf("client_id and client_secret must be set in the config file or TALLY_CLIENT_ID / TALLY_CLIENT_SECRET")
	}

	fmt.Println("Opening your browser to authorize tally...")
	tok, err := auth.Login(cmd.Context(), auth.LoginConfig{
		ClientID:     oauth.ClientID,
		ClientSecret: oauth.ClientSecret,
		RedirectURI:  oauth.RedirectURI,
		AuthorizeURL: oauth.AuthorizeURL,
		TokenURL:     a.cfg.API.TokenURL,
		CallbackAddr: fmt.Sprintf("127.0.0.1:%d", oauth.CallbackPort),
		Timeout:      3 * time.Minute,
		OpenBrowser:  openBrowser,
	}, a.logger)
	if err != nil {
		return err
	}

	if err := config.SaveToken(tok); err != nil {
		return err
	}
	a.tokens.Replace(tok)

	info, err := a.client.EnsureAccountInfo(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Logged in. Account %s, business %d.\n", info.AccountID, info.BusinessID)
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.finish()

	tok := a.tokens.Get()
	if tok.Empty() {
		fmt.Println("Not logged in.")
		return nil
	}

	switch {
	case tok.ExpiresAt.IsZero():
		fmt.Println("Logged in (token has no recorded expiry).")
	case a.tokens.Expired(time.Now()):
		fmt.Printf("Logged in; access token expired at %s and will be refreshed on next use.\n",
			tok.ExpiresAt.Local().Format(time.RFC1123))
	default:
		fmt.Printf("Logged in; access token valid until %s.\n",
			tok.ExpiresAt.Local().Format(time.RFC1123))
	}

	if info, ok := config.LoadAccountInfo(); ok {
		fmt.Printf("Account %s, business %d.\n", info.AccountID, info.BusinessID)
	}
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	if err := config.DeleteToken(); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}

// openBrowser launches the default browser at url.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
			return fmt.Errorf("no display available")
		}
		return exec.Command("xdg-open", url).Start()
	}
}
