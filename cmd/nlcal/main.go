package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nlcal/internal/config"
	appLog "nlcal/internal/log"
	"nlcal/internal/web"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "nlcal:", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "nlcal",
		Short:         "Turn plain-language requests into calendar changes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "/etc/nlcal/config.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (overrides config if set)")

	root.AddCommand(newServeCmd(flags), newAskCmd(flags), newStatusCmd(flags))
	return root
}

// loadConfig loads the config file and applies the log level.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return nil, err
	}
	level := cfg.LogLevel
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(level))
	return cfg, nil
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			// --listen overrides config file listen if provided.
			if listen != "" {
				cfg.Listen = listen
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config) error {
	appLog.Info("nlcal starting", "version", version)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}

	sched, err := a.startScheduler(ctx)
	if err != nil {
		return err
	}
	defer func() { <-sched.Stop().Done() }()

	srv := web.NewServer(cfg, a.assistant, a.session, a.metrics).HTTPServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	appLog.Info("nlcal exiting")
	return err
}

func newAskCmd(flags *rootFlags) *cobra.Command {
	var tokenFile string
	cmd := &cobra.Command{
		Use:   "ask <request>",
		Short: "Handle one request and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			if err := a.loadToken(tokenFile); err != nil {
				return err
			}
			resp := a.assistant.Handle(cmd.Context(), strings.Join(args, " "))
			fmt.Fprintln(cmd.OutOrStdout(), resp.Reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&tokenFile, "token-file", "", "OAuth2 token JSON for the google backend")
	return cmd
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	var tokenFile string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the calendar is connected",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			if err := a.loadToken(tokenFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backend=%s connected=%t\n", cfg.Backend, a.assistant.IsConnected())
			return nil
		},
	}
	cmd.Flags().StringVar(&tokenFile, "token-file", "", "OAuth2 token JSON for the google backend")
	return cmd
}
