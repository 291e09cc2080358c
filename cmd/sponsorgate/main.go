package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/x402-foundation/sponsorgate/internal/config"
	"github.com/x402-foundation/sponsorgate/internal/version"
	"github.com/x402-foundation/sponsorgate/pkg/logger"
	"github.com/x402-foundation/sponsorgate/plugins"
	"github.com/x402-foundation/sponsorgate/resources"
	"github.com/x402-foundation/sponsorgate/server"
	"github.com/x402-foundation/sponsorgate/store"
	"github.com/x402-foundation/sponsorgate/x402client"
)

const programName = "sponsorgate"

var (
	globalFlags = struct {
		debug bool
	}{}
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   programName,
		Short: "Sponsorship-mediated payment proxy for x402 resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun()
		},
	}
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "", "path to config file")

	rootCmd.AddCommand(versionCommand())

	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", programName, version.GetVersionString())
		},
	}
}

func serveRun() error {
	// A local .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if globalFlags.debug {
		cfg.Debug = true
	}

	log, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		log.Infow(fmt.Sprintf(format, v...), "component", programName)
	})); err != nil {
		return fmt.Errorf("failed to set max processes: %w", err)
	}
	log.Infow("starting "+programName, "version", version.GetVersionString())

	db, err := store.New(cfg.DataDir, log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	upstreamTimeout, err := cfg.UpstreamTimeoutDuration()
	if err != nil {
		return fmt.Errorf("invalid upstream timeout: %w", err)
	}

	var metrics *server.Metrics
	if cfg.Metrics {
		metrics = server.NewMetrics()
	}

	srv := server.New(server.Config{
		ListenAddr:     cfg.ListenAddr(),
		TreasuryWallet: cfg.TreasuryWallet,
		Store:          db,
		Plugins:        plugins.DefaultRegistry(),
		Resources:      resources.NewStaticRegistry(cfg.Resources...),
		Challenges:     x402client.NewChallengeClient(log, x402client.WithTimeout(upstreamTimeout)),
		Payments:       x402client.NewPaymentClient(cfg.PaymentRailURL),
		Logger:         log,
		Metrics:        metrics,
		Debug:          cfg.Debug,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Infow("received signal, shutting down", "signal", sig.String())
		if err := srv.Shutdown(); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}
