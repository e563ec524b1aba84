package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/amoylab/tether/internal/connection"
	"github.com/amoylab/tether/internal/eventbus"
	"github.com/amoylab/tether/internal/session"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	username string
	password string
	data     string
	headers  []string

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Keep the session connected and print inbound messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd)
		},
	}

	loginCmd = &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the issued tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.client.Login(ctx, username, password); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "logged in")
				return nil
			})
		},
	}

	requestCmd = &cobra.Command{
		Use:   "request <method> <path>",
		Short: "Issue an authenticated request and print the response",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				spec, err := buildSpec(args[0], args[1], data, headers)
				if err != nil {
					return err
				}
				resp, err := a.client.Request(ctx, spec)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\n%s\n", resp.StatusCode, resp.Body)
				return resp.Err()
			})
		},
	}

	logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear stored tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.client.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "logged out")
				return nil
			})
		},
	}
)

func init() {
	runCmd.Flags().StringVarP(&username, "username", "u", "", "sign in with this username before connecting")
	runCmd.Flags().StringVarP(&password, "password", "p", "", "password for --username")
	loginCmd.Flags().StringVarP(&username, "username", "u", "", "username")
	loginCmd.Flags().StringVarP(&password, "password", "p", "", "password")
	_ = loginCmd.MarkFlagRequired("username")
	requestCmd.Flags().StringVarP(&data, "data", "d", "", "request body")
	requestCmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header as 'Name: value', repeatable")
}

func withApp(cmd *cobra.Command, fn func(context.Context, *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func buildSpec(method, path, body string, rawHeaders []string) (*session.RequestSpec, error) {
	spec := &session.RequestSpec{
		Method: strings.ToUpper(method),
		Path:   path,
		Header: http.Header{},
	}
	if body != "" {
		spec.Body = []byte(body)
	}
	for _, h := range rawHeaders {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, want 'Name: value'", h)
		}
		spec.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return spec, nil
}

func runSession(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	a.serveMetrics(ctx)

	if a.cfg.Connection.URL == "" {
		return fmt.Errorf("connection.url is not configured")
	}

	events, err := a.bus.Watch(ctx)
	if err != nil {
		return err
	}

	opts := []connection.Option{connection.WithProber(a.client)}
	if a.metrics != nil {
		opts = append(opts, connection.WithMetrics(a.metrics))
	}
	manager := connection.NewManager(a.logger, &a.cfg.Connection, a.store, a.bus, opts...)

	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx) }()

	if username != "" {
		// this goroutine drains events, so it must not wait on its own watcher
		go func() {
			if _, err := a.client.Login(ctx, username, password); err != nil {
				a.logger.Error("login failed", zap.Error(err))
			}
		}()
	}

	out := json.NewEncoder(cmd.OutOrStdout())
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Shutting down")
			return <-done
		case e, ok := <-events:
			if !ok {
				return <-done
			}
			if e.Type == eventbus.TypeMessage {
				_ = out.Encode(e)
				continue
			}
			a.logger.Info("session event", zap.String("type", string(e.Type)))
		}
	}
}

