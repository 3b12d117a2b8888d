package testlang

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/plasma/plasma-core/devkeys"
	"github.com/mantlenetworkio/plasma/plasma-rootchain/contract"
	"github.com/mantlenetworkio/plasma/plasma-rootchain/rootchain"
	"github.com/mantlenetworkio/plasma/plasma-rootchain/sim"
	"github.com/mantlenetworkio/plasma/plasma-service/clock"
	"github.com/mantlenetworkio/plasma/plasma-testlang/config"
)

// NewFromConfig builds a testing language over the backend cfg selects. The simulated
// backend funds every account and deploys tokens on demand; the RPC backend binds the
// deployed root chain and, when configured, a single pre-deployed token.
func NewFromConfig(ctx context.Context, logger log.Logger, cfg *config.Config, m Metrics) (*TestingLanguage, error) {
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	keys, err := devkeys.NewSaltedDevKeys(cfg.Mnemonic, cfg.Salt)
	if err != nil {
		return nil, err
	}
	accounts, err := keys.Accounts(cfg.NumAccounts)
	if err != nil {
		return nil, err
	}
	opts := []Option{WithChainID(cfg.ChainID), WithProofCacheSize(cfg.ProofCacheSize)}

	switch cfg.Backend {
	case config.BackendSim:
		simCfg := sim.Config{
			Operator:         accounts[0].Address,
			MinExitPeriod:    cfg.MinExitPeriod,
			StandardExitBond: cfg.StandardExitBond,
			InFlightExitBond: cfg.InFlightExitBond,
			PiggybackBond:    cfg.PiggybackBond,
		}
		clk := clock.NewDeterministicClock(time.Unix(int64(cfg.GenesisTimestamp), 0))
		rc := sim.New(logger.New("module", "rootchain"), simCfg, clk)
		for _, acc := range accounts {
			rc.Fund(acc.Address, cfg.AccountBalance)
		}
		opts = append(opts, WithTokenFactory(func(context.Context) (rootchain.Token, error) {
			return rc.NewToken(accounts[0].Address), nil
		}))
		return New(logger, m, rc, sim.NewClock(clk), accounts, opts...)

	case config.BackendRPC:
		rc, clk, err := contract.Dial(ctx, logger.New("module", "rootchain"), cfg.RPCURL, cfg.RootChainAddress,
			contract.WithReceiptTimeout(cfg.ReceiptTimeout))
		if err != nil {
			return nil, err
		}
		operator, err := rc.Operator(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read operator: %w", err)
		}
		if operator != accounts[0].Address {
			logger.Warn("Root chain operator is not the first account, block submission will fail",
				"operator", operator, "account", accounts[0].Address)
		}
		if cfg.TokenAddress != (common.Address{}) {
			tok, err := rc.Token(cfg.TokenAddress)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithTokenFactory(func(context.Context) (rootchain.Token, error) {
				return tok, nil
			}))
		}
		return New(logger, m, rc, clk, accounts, opts...)
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
}
