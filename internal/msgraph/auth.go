// Package msgraph imports Outlook calendar events through Microsoft Graph.
package msgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"golang.org/x/oauth2"
)

const loginHost = "https://login.microsoftonline.com"

// Scopes are the delegated permissions requested at sign-in.
var Scopes = []string{
	"https://graph.microsoft.com/Calendars.Read",
	"offline_access",
}

// TokenPath returns ~/.qt/auth/msgraph_tokens.json.
func TokenPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".qt", "auth", "msgraph_tokens.json"), nil
}

// OAuthConfig describes the public client used for the device code flow.
func OAuthConfig(tenantID, clientID string) *oauth2.Config {
	base := loginHost + "/" + tenantID + "/oauth2/v2.0/"
	return &oauth2.Config{
		ClientID: clientID,
		Scopes:   Scopes,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: base + "devicecode",
			TokenURL:      base + "token",
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}
}

// loadToken returns nil, nil when no token has been saved yet.
func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	tok := new(oauth2.Token)
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, fmt.Errorf("corrupt token file (delete %s to re-authenticate): %w", path, err)
	}
	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating auth directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("saving token file: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// Authenticate returns a usable Graph token and the config it belongs to.
// The token saved at path is used while valid and refreshed when expired;
// otherwise the device code flow runs and its instructions go to prompt.
func Authenticate(ctx context.Context, tenantID, clientID, path string, prompt io.Writer) (*oauth2.Token, *oauth2.Config, error) {
	cfg := OAuthConfig(tenantID, clientID)
	tok, err := authenticate(ctx, cfg, path, prompt)
	if err != nil {
		return nil, nil, err
	}
	return tok, cfg, nil
}

func authenticate(ctx context.Context, cfg *oauth2.Config, path string, prompt io.Writer) (*oauth2.Token, error) {
	logger := slog.Default().With(slog.String("component", "msgraph"))

	saved, err := loadToken(path)
	if err != nil {
		logger.Warn("ignoring saved token", slog.Any("error", err))
		saved = nil
	}
	if saved.Valid() {
		return saved, nil
	}
	if saved != nil && saved.RefreshToken != "" {
		tok, err := cfg.TokenSource(ctx, saved).Token()
		if err == nil {
			persist(logger, path, tok)
			return tok, nil
		}
		logger.Info("token refresh failed, signing in again", slog.Any("error", err))
	}

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device auth request failed: %w", err)
	}
	fmt.Fprintf(prompt, "\nTo sign in, open %s and enter the code %s\n\n", da.VerificationURI, da.UserCode)

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("device authentication failed: %w", err)
	}
	persist(logger, path, tok)
	return tok, nil
}

func persist(logger *slog.Logger, path string, tok *oauth2.Token) {
	if err := saveToken(path, tok); err != nil {
		logger.Warn("could not save token", slog.String("path", path), slog.Any("error", err))
	}
}
