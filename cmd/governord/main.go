package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/parolabs/governor/pkg/api"
	"github.com/parolabs/governor/pkg/config"
	"github.com/parolabs/governor/pkg/dispatch"
	"github.com/parolabs/governor/pkg/governance"
	"github.com/parolabs/governor/pkg/governance/executor"
	"github.com/parolabs/governor/pkg/governance/store"
	"github.com/parolabs/governor/pkg/registry"
	"github.com/parolabs/governor/pkg/staking"
	"github.com/parolabs/governor/pkg/token"
	"github.com/parolabs/governor/pkg/treasury"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "governord",
		Short:        "Stake-weighted governance engine",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	params, err := cfg.GovernanceParameters()
	if err != nil {
		return fmt.Errorf("invalid governance parameters: %w", err)
	}

	// Value token and genesis balances
	tokens := token.NewSystem(cfg.Token.Symbol)
	for address, value := range cfg.Token.Genesis {
		amount, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return fmt.Errorf("invalid genesis balance %q for %s", value, address)
		}
		if err := tokens.Mint(address, amount); err != nil {
			return fmt.Errorf("failed to mint genesis balance: %w", err)
		}
	}

	// Staking integration is optional; a zero multiplier disables it.
	var stakes governance.StakingSystem
	if cfg.Staking.MaxMultiplierBps > 0 {
		maxPeriod, err := config.Duration(cfg.Staking.MaxStakingPeriod)
		if err != nil {
			return err
		}
		stakes = staking.NewManager(cfg.Staking.MaxMultiplierBps, maxPeriod)
	}

	ledger := treasury.NewLedger(cfg.Treasury.Account, tokens, logger)
	for _, asset := range cfg.Treasury.AllowedAssets {
		ledger.AllowAsset(asset)
	}

	modules := registry.NewRegistry(nil, cfg.Modules, logger)
	dispatcher := dispatch.NewHTTPDispatcher(10*time.Second, logger)
	exec := executor.NewExecutor(ledger, modules, dispatcher, logger)

	emergencyPeriod, err := config.Duration(cfg.EmergencyPeriod)
	if err != nil {
		return err
	}
	paramChangeDelay, err := config.Duration(cfg.ParamChangeDelay)
	if err != nil {
		return err
	}
	weightPolicy := governance.WeightPolicyLive
	if cfg.WeightPolicy == "window_start" {
		weightPolicy = governance.WeightPolicyWindowStart
	}

	promRegistry := prometheus.NewRegistry()
	service := governance.NewService(store.NewMemoryStore(), exec, tokens, stakes, governance.ServiceConfig{
		Admin:                cfg.Admin,
		Params:               params,
		WeightPolicy:         weightPolicy,
		Guardians:            cfg.Guardians,
		RequiredGuardians:    cfg.RequiredGuardians,
		EmergencyPeriod:      emergencyPeriod,
		ParameterChangeDelay: paramChangeDelay,
		Logger:               logger,
		Metrics:              governance.NewMetrics(promRegistry),
	})

	server := api.NewServer(cfg.Listen, service, ledger, promRegistry, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}

func buildLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler), nil
}
