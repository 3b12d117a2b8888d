package sim

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/plasma/plasma-rootchain/rootchain"
)

// Token is an in-memory mintable ERC20 token. Only its owner may mint.
type Token struct {
	address common.Address
	owner   common.Address

	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

var _ rootchain.Token = (*Token)(nil)

func newToken(address, owner common.Address) *Token {
	return &Token{
		address:    address,
		owner:      owner,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (t *Token) Address() common.Address {
	return t.address
}

func (t *Token) Mint(opts *bind.TransactOpts, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if opts.From != t.owner {
		return reject("sender %s is not the token owner", opts.From)
	}
	if amount.Sign() < 0 {
		return reject("negative mint")
	}
	t.add(to, amount)
	return nil
}

func (t *Token) Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.allowances[opts.From]
	if !ok {
		m = make(map[common.Address]*big.Int)
		t.allowances[opts.From] = m
	}
	m[spender] = new(big.Int).Set(amount)
	return nil
}

func (t *Token) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	return t.balanceOf(account), nil
}

func (t *Token) balanceOf(account common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (t *Token) add(account common.Address, amount *big.Int) {
	b, ok := t.balances[account]
	if !ok {
		b = new(big.Int)
		t.balances[account] = b
	}
	b.Add(b, amount)
}

func (t *Token) transfer(from, to common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.add(from, new(big.Int).Neg(amount))
	t.add(to, amount)
}

// transferFrom moves amount from owner to to, spending the allowance of spender.
func (t *Token) transferFrom(spender, owner, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	allowance := t.allowances[owner][spender]
	if allowance == nil || allowance.Cmp(amount) < 0 {
		return reject("insufficient allowance")
	}
	if bal := t.balances[owner]; bal == nil || bal.Cmp(amount) < 0 {
		return reject("insufficient token balance")
	}
	allowance.Sub(allowance, amount)
	t.add(owner, new(big.Int).Neg(amount))
	t.add(to, amount)
	return nil
}
