// Command budgetshare-sheets-auth obtains a Google OAuth token for the export
// worker, for deployments that export with a user account instead of a
// service account.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"budgetshare/internal/cli"
	"budgetshare/internal/config"
	"budgetshare/internal/log"
	gsheet "budgetshare/internal/sheets/google"
)

const authTimeout = 5 * time.Minute

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustConfig(nil)
	logger := cli.SetupLogger(cfg, log.ComponentSheets)

	if err := run(cfg, logger); err != nil {
		logger.Error("Authorization failed", log.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	clientJSON, err := clientSecrets(cfg)
	if err != nil {
		return err
	}
	tokenFile := cfg.GoogleOAuthTokenFile
	if tokenFile == "" {
		tokenFile = "token.json"
	}

	// The OAuth client must list this URI among its authorized redirect URIs.
	redirect := "http://localhost:" + cfg.OAuthRedirectPort + gsheet.CallbackPath
	oc, err := gsheet.OAuthConfig(clientJSON, redirect)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", "localhost:"+cfg.OAuthRedirectPort)
	if err != nil {
		return fmt.Errorf("listen for callback: %w", err)
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	tok, err := gsheet.Authorize(ctx, oc, ln, func(url string) {
		fmt.Printf("Open this URL to authorize:\n%s\n", url)
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.New("authorization timed out")
	}
	if err != nil {
		return err
	}
	if err := gsheet.SaveToken(tokenFile, tok); err != nil {
		return err
	}
	logger.Info("Saved OAuth token", "file", tokenFile)
	return nil
}

func clientSecrets(cfg *config.Config) ([]byte, error) {
	switch {
	case cfg.GoogleOAuthClientJSON != "":
		return []byte(cfg.GoogleOAuthClientJSON), nil
	case cfg.GoogleOAuthClientFile != "":
		b, err := os.ReadFile(cfg.GoogleOAuthClientFile)
		if err != nil {
			return nil, fmt.Errorf("read client file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
}
