package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/quarter-tracker/internal/server"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
)

var (
	serveConfig string
	serveAddr   string
	tokenConfig string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the slot, project and settings API over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var tokenCmd = &cobra.Command{
	Use:   "token <user>",
	Short: "Issue an API token for a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", "", "Server config file (YAML)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Override the HTTP listen address")
	tokenCmd.Flags().StringVarP(&tokenConfig, "config", "c", "", "Server config file (YAML)")
}

func loadServerConfig(path string) (*server.Config, error) {
	if path == "" {
		return server.DefaultConfig(), nil
	}
	cfg, err := server.LoadConfig(path)
	if err != nil {
		return nil, &exitError{code: exitUsage, err: err}
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServerConfig(serveConfig)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.HTTPAddress = serveAddr
	}
	if rootVerbose {
		cfg.Server.Verbose = true
	}

	level := slog.LevelInfo
	if rootVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, storage.Options{
		Driver: cfg.Store.Driver,
		Path:   cfg.Store.Path,
		DSN:    cfg.Store.DSN,
	})
	if err != nil {
		return storeError(err)
	}
	defer backend.Close()
	logger.Info("store ready", slog.String("driver", cfg.Store.Driver))

	srv, err := server.New(cfg, backend, logger)
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}
	if err := srv.Run(ctx); err != nil && !errors.Is(err, ctx.Err()) {
		return storeError(err)
	}
	logger.Info("server stopped")
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadServerConfig(tokenConfig)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return usageErrorf("auth.jwt_secret is not set, the server runs without tokens")
	}
	tokens := server.NewTokenService([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	token, err := tokens.Generate(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
