package flags

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/mantlenetworkio/plasma/plasma-testlang/config"
	oplog "github.com/mantlenetworkio/plasma/plasma-service/log"
	opmetrics "github.com/mantlenetworkio/plasma/plasma-service/metrics"
)

const EnvVarPrefix = "PLASMA_TESTLANG"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	ConfigFileFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to a TOML config file. Flags override its values.",
		EnvVars: prefixEnvVars("CONFIG"),
	}
	BackendFlag = &cli.StringFlag{
		Name:    "backend",
		Usage:   "Root chain backend: 'sim' for the in-memory root chain, 'rpc' for a deployed contract",
		Value:   config.BackendSim.String(),
		EnvVars: prefixEnvVars("BACKEND"),
	}
	RPCURLFlag = &cli.StringFlag{
		Name:    "rpc-url",
		Usage:   "HTTP or websocket URL of the root chain node",
		EnvVars: prefixEnvVars("RPC_URL"),
	}
	RootChainAddressFlag = &cli.StringFlag{
		Name:    "root-chain-address",
		Usage:   "Address of the deployed root chain contract",
		EnvVars: prefixEnvVars("ROOT_CHAIN_ADDRESS"),
	}
	TokenAddressFlag = &cli.StringFlag{
		Name:    "token-address",
		Usage:   "Address of a deployed mintable token used by token scenarios",
		EnvVars: prefixEnvVars("TOKEN_ADDRESS"),
	}
	ChainIDFlag = &cli.Uint64Flag{
		Name:    "chain-id",
		Usage:   "Chain id used to sign root chain transactions",
		Value:   config.DefaultChainID,
		EnvVars: prefixEnvVars("CHAIN_ID"),
	}
	MnemonicFlag = &cli.StringFlag{
		Name:    "mnemonic",
		Usage:   "Mnemonic the dev accounts are derived from",
		EnvVars: prefixEnvVars("MNEMONIC"),
	}
	NumAccountsFlag = &cli.IntFlag{
		Name:    "num-accounts",
		Usage:   "Number of dev accounts to derive",
		Value:   config.DefaultNumAccounts,
		EnvVars: prefixEnvVars("NUM_ACCOUNTS"),
	}
	MinExitPeriodFlag = &cli.Uint64Flag{
		Name:    "min-exit-period",
		Usage:   "Minimum exit period of the simulated root chain, in seconds",
		EnvVars: prefixEnvVars("MIN_EXIT_PERIOD"),
	}
	ProofCacheSizeFlag = &cli.IntFlag{
		Name:    "proof-cache-size",
		Usage:   "Number of membership proofs the child chain mirror caches",
		EnvVars: prefixEnvVars("PROOF_CACHE_SIZE"),
	}
)

var optionalFlags = []cli.Flag{
	ConfigFileFlag,
	BackendFlag,
	RPCURLFlag,
	RootChainAddressFlag,
	TokenAddressFlag,
	ChainIDFlag,
	MnemonicFlag,
	NumAccountsFlag,
	MinExitPeriodFlag,
	ProofCacheSizeFlag,
}

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)
	Flags = optionalFlags
}

// Flags contains the list of configuration options available to the binary.
var Flags []cli.Flag

func parseAddress(ctx *cli.Context, flag *cli.StringFlag) (common.Address, error) {
	v := ctx.String(flag.Name)
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid %s: %q", flag.Name, v)
	}
	return common.HexToAddress(v), nil
}

// NewConfigFromCLI builds the config from defaults, the optional config file and then
// the flags that were set explicitly.
func NewConfigFromCLI(ctx *cli.Context) (*config.Config, error) {
	cfg := config.NewConfig()
	if path := ctx.String(ConfigFileFlag.Name); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if ctx.IsSet(BackendFlag.Name) {
		if err := cfg.Backend.Set(ctx.String(BackendFlag.Name)); err != nil {
			return nil, err
		}
	}
	if ctx.IsSet(RPCURLFlag.Name) {
		cfg.RPCURL = ctx.String(RPCURLFlag.Name)
	}
	for flag, dst := range map[*cli.StringFlag]*common.Address{
		RootChainAddressFlag: &cfg.RootChainAddress,
		TokenAddressFlag:     &cfg.TokenAddress,
	} {
		if !ctx.IsSet(flag.Name) {
			continue
		}
		addr, err := parseAddress(ctx, flag)
		if err != nil {
			return nil, err
		}
		*dst = addr
	}
	if ctx.IsSet(ChainIDFlag.Name) {
		cfg.ChainID = ctx.Uint64(ChainIDFlag.Name)
	}
	if ctx.IsSet(MnemonicFlag.Name) {
		cfg.Mnemonic = ctx.String(MnemonicFlag.Name)
	}
	if ctx.IsSet(NumAccountsFlag.Name) {
		cfg.NumAccounts = ctx.Int(NumAccountsFlag.Name)
	}
	if ctx.IsSet(MinExitPeriodFlag.Name) {
		cfg.MinExitPeriod = ctx.Uint64(MinExitPeriodFlag.Name)
	}
	if ctx.IsSet(ProofCacheSizeFlag.Name) {
		cfg.ProofCacheSize = ctx.Int(ProofCacheSizeFlag.Name)
	}
	cfg.LogConfig = oplog.ReadCLIConfig(ctx)
	cfg.MetricsConfig = opmetrics.ReadCLIConfig(ctx)
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}
