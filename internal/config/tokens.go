package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/alecgard/tally/internal/api"
	"github.com/alecgard/tally/internal/auth"
)

const (
	tokensFile  = "tokens.json"
	accountFile = "account.json"
)

// LoadToken reads the persisted token. A missing file is not an error; it
// returns a zero token, which the client treats as not-logged-in.
func LoadToken() (auth.Token, error) {
	dir, err := Dir()
	if err != nil {
		return auth.Token{}, err
	}
	data, err := os.ReadFile(filepath.Join(dir, tokensFile))
	if errors.Is(err, fs.ErrNotExist) {
		return auth.Token{}, nil
	}
	if err != nil {
		return auth.Token{}, fmt.Errorf("reading token file: %w", err)
	}

	var tok auth.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return auth.Token{}, fmt.Errorf("parsing token file: %w", err)
	}
	return tok, nil
}

// SaveToken persists the token. Called after login and after every refresh,
// so a rotated refresh token is never lost.
func SaveToken(tok auth.Token) error {
	dir, err := ensureDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, tokensFile), data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

// DeleteToken removes the persisted token (logout).
func DeleteToken() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, tokensFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// LoadAccountInfo reads previously discovered account identifiers.
func LoadAccountInfo() (api.AccountInfo, bool) {
	dir, err := Dir()
	if err != nil {
		return api.AccountInfo{}, false
	}
	data, err := os.ReadFile(filepath.Join(dir, accountFile))
	if err != nil {
		return api.AccountInfo{}, false
	}
	var info api.AccountInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return api.AccountInfo{}, false
	}
	return info, info.AccountID != "" && info.BusinessID != 0
}

// SaveAccountInfo persists discovered account identifiers.
func SaveAccountInfo(info api.AccountInfo) error {
	dir, err := ensureDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding account info: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, accountFile), data, 0o600); err != nil {
		return fmt.Errorf("writing account file: %w", err)
	}
	return nil
}
