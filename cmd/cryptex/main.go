// Package main is the entry point for the cryptex command-line client.
// It loads configuration, builds the requested exchange adapter and runs
// one listing command against it.
//
// Usage:
//
//	cryptex --config configs/config.yaml --exchange btce markets
//	cryptex --config configs/config.yaml --exchange cryptsy funds
//
// Commands: markets, orders, trades, funds, transactions.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/jayme-github/cryptex/internal/exchange"
	"github.com/jayme-github/cryptex/pkg/config"
)

// Command-line flags.
var (
	// configPath is the path to the YAML configuration file.
	configPath string
	// exchangeName selects the exchange adapter to use.
	exchangeName string
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment variables")
	}
	flag.StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
	flag.StringVar(&exchangeName, "exchange", "btce", "exchange to query (btce, cryptsy)")
}

func main() {
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	command := flag.Arg(0)
	if command == "" {
		fmt.Fprintln(os.Stderr, "usage: cryptex [flags] markets|orders|trades|funds|transactions")
		os.Exit(2)
	}

	exCfg, ok := cfg.Exchanges[exchangeName]
	if !ok || !exCfg.Enabled {
		fmt.Fprintf(os.Stderr, "exchange %s is not enabled in %s\n", exchangeName, configPath)
		os.Exit(1)
	}

	ex, err := exchange.NewExchange(exchangeName, &exCfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create exchange: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), ex, command, exCfg.TransactionLimit); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s: %v\n", exchangeName, command, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.App.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.App.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zapCfg.Level = level
	}
	return zapCfg.Build()
}

func run(ctx context.Context, ex exchange.Exchange, command string, limit int) error {
	switch command {
	case "markets":
		markets, err := ex.GetMarkets(ctx)
		if err != nil {
			return err
		}
		for _, m := range markets {
			fmt.Println(m)
		}
	case "orders":
		orders, err := ex.GetMyOpenOrders(ctx)
		if err != nil {
			return err
		}
		for _, o := range orders {
			fmt.Printf("%s  %-4s %s  %s @ %s  (%s)\n",
				o.ID, o.Side, o.Market, o.Amount, o.Price, o.Time.Format("2006-01-02 15:04:05"))
		}
	case "trades":
		trades, err := ex.GetMyTrades(ctx, limit)
		if err != nil {
			return err
		}
		for _, t := range trades {
			fmt.Printf("%s  %-4s %s  %s @ %s  fee %s %s  (%s)\n",
				t.ID, t.Side, t.Market, t.Amount, t.Price,
				t.Fee, t.FeeCurrency, t.Time.Format("2006-01-02 15:04:05"))
		}
	case "funds":
		funds, err := ex.GetMyFunds(ctx)
		if err != nil {
			return err
		}
		for currency, amount := range funds {
			fmt.Printf("%s\t%s\n", currency, amount)
		}
	case "transactions":
		transactions, err := ex.GetMyTransactions(ctx, limit)
		if err != nil {
			return err
		}
		for _, t := range transactions {
			net := t.Amount
			if n, err := t.NetAmount(); err == nil {
				net = n
			}
			fmt.Printf("%s  %-10s %s %s (net %s)  %s\n",
				t.ID, t.Kind, t.Amount, t.Currency, net, t.Time.Format("2006-01-02 15:04:05"))
		}
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}
