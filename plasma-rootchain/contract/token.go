package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/plasma/plasma-rootchain/rootchain"
)

// Token binds a mintable ERC20 token.
type Token struct {
	log          log.Logger
	backend      Backend
	address      common.Address
	contract       *bind.BoundContract
	receiptTimeout time.Duration
}

var _ rootchain.Token = (*Token)(nil)

type TokenOption func(*Token)

func WithTokenReceiptTimeout(d time.Duration) TokenOption {
	return func(t *Token) {
		t.receiptTimeout = d
	}
}

func NewToken(lgr log.Logger, backend Backend, address common.Address, opts ...TokenOption) (*Token, error) {
	parsed, err := abi.JSON(strings.NewReader(mintableTokenABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token ABI: %w", err)
	}
	t := &Token{
		log:            lgr,
		backend:        backend,
		address:        address,
		contract:       bind.NewBoundContract(address, parsed, backend, backend, backend),
		receiptTimeout: DefaultReceiptTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Token) Address() common.Address {
	return t.address
}

func (t *Token) Mint(opts *bind.TransactOpts, to common.Address, amount *big.Int) error {
	return transact(opts, t.log, t.backend, t.contract, t.receiptTimeout, "mint", to, amount)
}

func (t *Token) Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) error {
	return transact(opts, t.log, t.backend, t.contract, t.receiptTimeout, "approve", spender, amount)
}

func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var out []any
	if err := t.contract.Call(callOpts(ctx), &out, "balanceOf", account); err != nil {
		return nil, classify("balanceOf", err)
	}
	return out[0].(*big.Int), nil
}
