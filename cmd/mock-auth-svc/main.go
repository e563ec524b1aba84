package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amoylab/tether/internal/auth/jwt"
	"github.com/amoylab/tether/internal/common/cnst"
	"github.com/amoylab/tether/internal/common/config"
	"github.com/amoylab/tether/pkg/logger"
	"github.com/amoylab/tether/pkg/version"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of mock-auth-svc",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mock-auth-svc version %s\n", version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:   "mock-auth-svc",
		Short: "Mock Auth Service",
		Long:  `Mock Auth Service issues and refreshes tokens and serves a bearer protected WebSocket endpoint`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", cnst.MockServerYaml, "path to configuration file")
	rootCmd.AddCommand(versionCmd)
}

func run() {
	cfg, cfgPath, err := config.LoadConfig[config.MockServerConfig](configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration from %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	lg.Info("Starting mock-auth-svc", zap.String("version", version.Get()))

	tokens, err := jwt.NewService(jwt.Config{
		SecretKey:       cfg.SecretKey,
		AccessDuration:  cfg.AccessDuration,
		RefreshDuration: cfg.RefreshDuration,
	})
	if err != nil {
		lg.Fatal("Failed to initialize token service", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: newServer(lg, cfg, tokens).handler(),
	}

	go func() {
		lg.Info("Server is running", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Fatal("Server forced to shutdown", zap.Error(err))
	}

	lg.Info("Server exiting")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
