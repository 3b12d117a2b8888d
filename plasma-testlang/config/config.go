// Package config holds the settings of a testing language run.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"

	"github.com/mantlenetworkio/plasma/plasma-core/childchain"
	"github.com/mantlenetworkio/plasma/plasma-core/devkeys"
	"github.com/mantlenetworkio/plasma/plasma-rootchain/rootchain"
	oplog "github.com/mantlenetworkio/plasma/plasma-service/log"
	opmetrics "github.com/mantlenetworkio/plasma/plasma-service/metrics"
)

var (
	ErrMissingMnemonic         = errors.New("missing mnemonic")
	ErrTooFewAccounts          = errors.New("at least 4 accounts are required")
	ErrUnknownBackend          = errors.New("unknown root chain backend")
	ErrMissingRPCURL           = errors.New("missing root chain rpc url")
	ErrMissingRootChainAddress = errors.New("missing root chain address")
	ErrInvalidMinExitPeriod    = errors.New("min exit period must be a positive even number of seconds")
	ErrInvalidBond             = errors.New("bonds must be positive")
	ErrInvalidProofCacheSize   = errors.New("proof cache size must be positive")
	ErrMissingChainID          = errors.New("missing chain id")
	ErrInvalidReceiptTimeout   = errors.New("receipt timeout must be positive")
)

// Backend selects the root chain implementation.
type Backend string

const (
	BackendSim Backend = "sim"
	BackendRPC Backend = "rpc"
)

func (b Backend) String() string {
	return string(b)
}

func (b *Backend) Set(value string) error {
	switch v := Backend(strings.ToLower(value)); v {
	case BackendSim, BackendRPC:
		*b = v
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownBackend, value)
}

func (b *Backend) UnmarshalText(text []byte) error {
	return b.Set(string(text))
}

const (
	DefaultChainID          = 1337
	DefaultNumAccounts      = devkeys.DefaultAccounts
	DefaultGenesisTimestamp = 1_700_000_000
	DefaultReceiptTimeout   = 2 * time.Minute
)

var (
	// DefaultBond matches the bond the root chain contract is deployed with.
	DefaultBond = big.NewInt(31415926535)
	// DefaultAccountBalance is the simulated genesis balance of every dev account.
	DefaultAccountBalance = new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18))
)

type Config struct {
	Backend  Backend `toml:"backend"`
	ChainID  uint64  `toml:"chain-id"`
	Mnemonic string  `toml:"mnemonic"`
	// Salt derives a distinct account set from the same mnemonic.
	Salt        string `toml:"salt"`
	NumAccounts int    `toml:"num-accounts"`

	RPCURL              string         `toml:"rpc-url"`
	RootChainAddress    common.Address `toml:"root-chain-address"`
	TokenAddress        common.Address `toml:"token-address"`
	ReceiptTimeout      time.Duration  `toml:"receipt-timeout"`

	// Simulated root chain settings.
	MinExitPeriod    uint64   `toml:"min-exit-period"`
	StandardExitBond *big.Int `toml:"standard-exit-bond"`
	InFlightExitBond *big.Int `toml:"in-flight-exit-bond"`
	PiggybackBond    *big.Int `toml:"piggyback-bond"`
	GenesisTimestamp uint64   `toml:"genesis-timestamp"`
	AccountBalance   *big.Int `toml:"account-balance"`

	ProofCacheSize int `toml:"proof-cache-size"`

	LogConfig     oplog.CLIConfig     `toml:"-"`
	MetricsConfig opmetrics.CLIConfig `toml:"-"`
}

func NewConfig() *Config {
	return &Config{
		Backend:             BackendSim,
		ChainID:             DefaultChainID,
		Mnemonic:            devkeys.TestMnemonic,
		NumAccounts:         DefaultNumAccounts,
		ReceiptTimeout:      DefaultReceiptTimeout,
		MinExitPeriod:       rootchain.Week,
		StandardExitBond:    new(big.Int).Set(DefaultBond),
		InFlightExitBond:    new(big.Int).Set(DefaultBond),
		PiggybackBond:       new(big.Int).Set(DefaultBond),
		GenesisTimestamp:    DefaultGenesisTimestamp,
		AccountBalance:      new(big.Int).Set(DefaultAccountBalance),
		ProofCacheSize:      childchain.DefaultProofCacheSize,
		LogConfig:           oplog.DefaultCLIConfig(),
		MetricsConfig:       opmetrics.DefaultCLIConfig(),
	}
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

// Check reports every invalid setting at once.
func (c *Config) Check() error {
	var result *multierror.Error
	if c.Mnemonic == "" {
		result = multierror.Append(result, ErrMissingMnemonic)
	}
	if c.NumAccounts < 4 {
		result = multierror.Append(result, ErrTooFewAccounts)
	}
	if c.ChainID == 0 {
		result = multierror.Append(result, ErrMissingChainID)
	}
	if c.ProofCacheSize <= 0 {
		result = multierror.Append(result, ErrInvalidProofCacheSize)
	}
	switch c.Backend {
	case BackendSim:
		if c.MinExitPeriod == 0 || c.MinExitPeriod%2 != 0 {
			result = multierror.Append(result, ErrInvalidMinExitPeriod)
		}
		if !positive(c.StandardExitBond) || !positive(c.InFlightExitBond) || !positive(c.PiggybackBond) {
			result = multierror.Append(result, ErrInvalidBond)
		}
	case BackendRPC:
		if c.RPCURL == "" {
			result = multierror.Append(result, ErrMissingRPCURL)
		}
		if c.RootChainAddress == (common.Address{}) {
			result = multierror.Append(result, ErrMissingRootChainAddress)
		}
		if c.ReceiptTimeout <= 0 {
			result = multierror.Append(result, ErrInvalidReceiptTimeout)
		}
	default:
		result = multierror.Append(result, fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend))
	}
	if err := c.LogConfig.Check(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.MetricsConfig.Check(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// LoadFile overlays the TOML file at path onto c. Unknown keys are an error.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return c.Load(string(data))
}

func (c *Config) Load(data string) error {
	md, err := toml.Decode(data, c)
	if err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown config keys: %v", undecoded)
	}
	return nil
}
