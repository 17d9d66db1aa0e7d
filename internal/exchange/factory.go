package exchange

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jayme-github/cryptex/internal/exchange/btce"
	"github.com/jayme-github/cryptex/internal/exchange/cryptsy"
	"github.com/jayme-github/cryptex/pkg/config"
)

// Ensure the adapters implement the Exchange interface.
var (
	_ Exchange = (*btce.Adapter)(nil)
	_ Exchange = (*cryptsy.Adapter)(nil)
)

// NewExchange creates an exchange adapter based on the exchange name and
// configuration. API credentials are read from environment variables:
// BTCE_API_KEY/BTCE_API_SECRET for BTC-e,
// CRYPTSY_API_KEY/CRYPTSY_API_SECRET for Cryptsy.
func NewExchange(name string, cfg *config.ExchangeConfig, logger *zap.Logger) (Exchange, error) {
	switch name {
	case "btce":
		return btce.NewAdapter(btce.Config{
			APIKey:    os.Getenv("BTCE_API_KEY"),
			APISecret: os.Getenv("BTCE_API_SECRET"),
			NonceSeed: cfg.NonceSeed,
			Logger:    logger,
		}), nil
	case "cryptsy":
		return cryptsy.NewAdapter(cryptsy.Config{
			APIKey:    os.Getenv("CRYPTSY_API_KEY"),
			APISecret: os.Getenv("CRYPTSY_API_SECRET"),
			NonceSeed: cfg.NonceSeed,
			Logger:    logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown exchange: %s", name)
	}
}

// CreateExchangesFromConfig creates and registers all enabled exchanges
// from configuration.
func CreateExchangesFromConfig(cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	manager := NewManager(logger)

	for name, exCfg := range cfg.Exchanges {
		if !exCfg.Enabled {
			logger.Info("exchange disabled, skipping", zap.String("exchange", name))
			continue
		}

		exCfg := exCfg
		ex, err := NewExchange(name, &exCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create exchange %s: %w", name, err)
		}

		if err := manager.Register(ex); err != nil {
			return nil, fmt.Errorf("register exchange %s: %w", name, err)
		}
	}

	return manager, nil
}
