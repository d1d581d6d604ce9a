package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"eventListener/internal/chain"
	"eventListener/internal/config"
	"eventListener/internal/listener"
	"eventListener/internal/storage"
	"eventListener/internal/storage/postgres"
)

func runWatch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	startBlock, err := resolveStartBlock(ctx, cfg, chainClient)
	if err != nil {
		return err
	}

	provider := chain.NewProvider(chainClient, chain.PollConfig{
		Interval:     cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, logger)

	registry, contracts, err := loadContracts(cfg, provider, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range contracts {
			c.Dispose()
		}
	}()

	var sinks []storage.Storage
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		sinks = append(sinks, store)
	}

	l := listener.New(logger)
	defer l.Close()

	logger.Info("watch start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("chain_id", chainID.String()),
		zap.Strings("contracts", registry.Names()),
		zap.String("contract", cfg.Contract),
		zap.String("event", cfg.Event),
		zap.Uint64("start_block", startBlock),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	err = l.Update(ctx, listener.Inputs{
		Contracts:    registry,
		ContractName: cfg.Contract,
		EventName:    cfg.Event,
		Provider:     provider,
		StartBlock:   startBlock,
	})
	if err != nil {
		return fmt.Errorf("activate listener: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return provider.Run(gctx)
	})
	g.Go(func() error {
		return writeSnapshots(gctx, l, sinks, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("watch stopped", zap.Int("events", len(l.Events())))
	return nil
}

func loadContracts(cfg config.Config, provider *chain.Provider, logger *zap.Logger) (*listener.Registry, []*chain.Contract, error) {
	registry := listener.NewRegistry()
	contracts := make([]*chain.Contract, 0, len(cfg.Contracts))

	for name, rawAddress := range cfg.Contracts {
		address, err := chain.ParseAddress(rawAddress)
		if err != nil {
			return nil, nil, fmt.Errorf("contract %s: %w", name, err)
		}

		var contractABI abi.ABI
		if path, ok := cfg.ABIs[name]; ok {
			contractABI, err = chain.LoadABI(path)
		} else {
			contractABI, err = chain.ERC20ABI()
		}
		if err != nil {
			return nil, nil, fmt.Errorf("contract %s: %w", name, err)
		}

		contract := chain.NewContract(name, address, contractABI, provider, logger)
		registry.Register(contract.Name(), contract)
		contracts = append(contracts, contract)
		logger.Debug("contract loaded",
			zap.String("contract", contract.Name()),
			zap.String("address", contract.Address().Hex()),
			zap.Int("events", len(contractABI.Events)),
		)
	}

	return registry, contracts, nil
}

// resolveStartBlock returns the configured start block, or the current head
// when none was given so the first scan does not walk from genesis.
func resolveStartBlock(ctx context.Context, cfg config.Config, source chain.LogSource) (uint64, error) {
	if cfg.StartBlockSet {
		return cfg.StartBlock, nil
	}
	head, err := source.LatestBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("get latest block: %w", err)
	}
	return head, nil
}

// writeSnapshots stores the event list after every change until ctx ends or
// the listener is closed. A failing sink is logged and retried on the next
// change.
func writeSnapshots(ctx context.Context, l *listener.Listener, sinks []storage.Storage, logger *zap.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-l.Changes():
			if !ok {
				return nil
			}
		}

		events := l.Events()
		for _, sink := range sinks {
			if err := sink.PutEvents(ctx, events); err != nil {
				logger.Error("store events failed", zap.Error(err))
			}
		}
		logger.Info("events updated", zap.Int("events", len(events)))
	}
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
