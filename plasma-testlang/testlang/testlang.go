// Package testlang is a small language for driving the plasma exit protocol. It keeps a
// child chain mirror in step with the root chain, builds and signs transactions, derives
// inclusion proofs and walks standard and in-flight exits through their lifecycle.
package testlang

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/plasma/plasma-core/block"
	"github.com/mantlenetworkio/plasma/plasma-core/childchain"
	"github.com/mantlenetworkio/plasma/plasma-core/devkeys"
	"github.com/mantlenetworkio/plasma/plasma-core/transaction"
	"github.com/mantlenetworkio/plasma/plasma-core/utxo"
	"github.com/mantlenetworkio/plasma/plasma-rootchain/rootchain"
	"github.com/mantlenetworkio/plasma/plasma-service/bigs"
	"github.com/mantlenetworkio/plasma/plasma-testlang/metrics"
)

var (
	// ErrMirrorRejected means the root chain accepted a block the mirror could not record.
	ErrMirrorRejected = errors.New("child chain mirror rejected block")
	// ErrNoTokens is returned by NewToken when no token factory is configured.
	ErrNoTokens      = errors.New("root chain backend cannot create tokens")
	ErrMissingKeys   = errors.New("fewer keys than inputs")
	ErrDepositFailed = errors.New("root chain token balance did not grow by the deposit")
)

const (
	// DefaultUtxoAmount is the value of the outputs CreateUtxo makes.
	DefaultUtxoAmount = 100
	// DefaultProcessCount bounds the exits ProcessExits finalizes in one call.
	DefaultProcessCount = 100
)

// Metrics records what the testing language does.
type Metrics interface {
	childchain.Metrics
	RecordRootChainCall(method string) (onDone func(err error))
	RecordExitStarted(kind string)
	RecordExitChallenged(kind string)
}

// TokenFactory deploys a fresh mintable token.
type TokenFactory func(ctx context.Context) (rootchain.Token, error)

// TestingLanguage drives one root chain and owns the child chain mirror of it.
type TestingLanguage struct {
	Accounts   []devkeys.Account
	Operator   devkeys.Account
	ChildChain *childchain.ChildChain
	RootChain  rootchain.RootChain
	Clock      rootchain.Clock

	log      log.Logger
	m        Metrics
	chainID  *big.Int
	newToken TokenFactory
}

type options struct {
	chainID        *big.Int
	proofCacheSize int
	newToken       TokenFactory
}

type Option func(*options)

// WithChainID sets the chain id transactions are signed for.
func WithChainID(id uint64) Option {
	return func(c *options) {
		c.chainID = new(big.Int).SetUint64(id)
	}
}

func WithProofCacheSize(size int) Option {
	return func(c *options) {
		c.proofCacheSize = size
	}
}

func WithTokenFactory(f TokenFactory) Option {
	return func(c *options) {
		c.newToken = f
	}
}

// New creates a testing language over rc. The first account operates the child chain.
func New(logger log.Logger, m Metrics, rc rootchain.RootChain, clk rootchain.Clock, accounts []devkeys.Account, opts ...Option) (*TestingLanguage, error) {
	if len(accounts) == 0 {
		return nil, errors.New("no accounts")
	}
	if m == nil {
		m = metrics.NoopMetrics
	}
	cfg := options{
		chainID:        big.NewInt(1337),
		proofCacheSize: childchain.DefaultProofCacheSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cc, err := childchain.New(logger.New("module", "childchain"), m, accounts[0].Address, cfg.proofCacheSize)
	if err != nil {
		return nil, err
	}
	return &TestingLanguage{
		Accounts:   append([]devkeys.Account(nil), accounts...),
		Operator:   accounts[0],
		ChildChain: cc,
		RootChain:  rc,
		Clock:      clk,
		log:        logger,
		m:          m,
		chainID:    cfg.chainID,
		newToken:   cfg.newToken,
	}, nil
}

func (tl *TestingLanguage) transactOpts(ctx context.Context, from devkeys.Account, value *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(from.Key, tl.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor for %s: %w", from, err)
	}
	opts.Context = ctx
	if value != nil {
		opts.Value = new(big.Int).Set(value)
	}
	return opts, nil
}

// call runs a root chain operation as from and records its outcome.
func (tl *TestingLanguage) call(ctx context.Context, method string, from devkeys.Account, value *big.Int, fn func(opts *bind.TransactOpts) error) error {
	opts, err := tl.transactOpts(ctx, from, value)
	if err != nil {
		return err
	}
	done := tl.m.RecordRootChainCall(method)
	err = fn(opts)
	done(err)
	if err != nil {
		tl.log.Debug("Root chain call failed", "method", method, "from", from.Address, "err", err)
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Timestamp is the current root chain time in seconds.
func (tl *TestingLanguage) Timestamp(ctx context.Context) (uint64, error) {
	return tl.Clock.Now(ctx)
}

func (tl *TestingLanguage) ForwardTimestamp(ctx context.Context, seconds uint64) error {
	return tl.Clock.Advance(ctx, seconds)
}

// ForwardToPeriod moves time from the start of an in-flight exit into its given period.
// Periods are numbered from 1 and last half the minimum exit period.
func (tl *TestingLanguage) ForwardToPeriod(ctx context.Context, period uint64) error {
	if period == 0 {
		return fmt.Errorf("invalid in-flight exit period %d", period)
	}
	mep, err := tl.RootChain.MinExitPeriod(ctx)
	if err != nil {
		return err
	}
	return tl.ForwardTimestamp(ctx, (period-1)*(mep/2))
}

type blockOptions struct {
	signer       *devkeys.Account
	forceInvalid bool
}

type BlockOption func(*blockOptions)

// WithSigner submits and signs the block as signer instead of the operator.
func WithSigner(signer devkeys.Account) BlockOption {
	return func(o *blockOptions) {
		o.signer = &signer
	}
}

// ForceInvalid records the block in the mirror without validating it, so conflicting
// or malformed transactions can be committed.
func ForceInvalid() BlockOption {
	return func(o *blockOptions) {
		o.forceInvalid = true
	}
}

// SubmitBlock commits txs as the next child block and returns its number.
func (tl *TestingLanguage) SubmitBlock(ctx context.Context, txs []*transaction.Transaction, opts ...BlockOption) (uint64, error) {
	o := blockOptions{signer: &tl.Operator}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.forceInvalid {
		for i, tx := range txs {
			if err := tl.ChildChain.ValidateTransaction(tx); err != nil {
				return 0, fmt.Errorf("invalid tx %d: %w", i, err)
			}
		}
	}
	blknum, err := tl.RootChain.NextChildBlock(ctx)
	if err != nil {
		return 0, err
	}
	now, err := tl.Timestamp(ctx)
	if err != nil {
		return 0, err
	}
	b, err := block.New(blknum, txs, now)
	if err != nil {
		return 0, err
	}
	if err := b.Sign(o.signer.Key); err != nil {
		return 0, err
	}
	err = tl.call(ctx, "submitBlock", *o.signer, nil, func(opts *bind.TransactOpts) error {
		return tl.RootChain.SubmitBlock(opts, b.Root())
	})
	if err != nil {
		return 0, err
	}
	if o.forceInvalid {
		tl.ChildChain.ForceAddBlock(b)
	} else if !tl.ChildChain.AddBlock(b) {
		return 0, fmt.Errorf("%w: %d", ErrMirrorRejected, blknum)
	}
	tl.log.Info("Submitted block", "blknum", blknum, "txs", len(txs), "forced", o.forceInvalid)
	return blknum, nil
}

func (tl *TestingLanguage) mirrorDeposit(ctx context.Context, blknum uint64, tx *transaction.Transaction) (uint64, error) {
	now, err := tl.Timestamp(ctx)
	if err != nil {
		return 0, err
	}
	b, err := block.New(blknum, []*transaction.Transaction{tx}, now)
	if err != nil {
		return 0, err
	}
	if !tl.ChildChain.AddBlock(b) {
		return 0, fmt.Errorf("%w: deposit %d", ErrMirrorRejected, blknum)
	}
	return utxo.Encode(blknum, 0, 0)
}

// Deposit moves amount of ETH from owner into the child chain and returns the deposit id.
func (tl *TestingLanguage) Deposit(ctx context.Context, owner devkeys.Account, amount *big.Int) (uint64, error) {
	tx, err := transaction.New(nil, []transaction.Output{transaction.NewOutput(owner.Address, transaction.NullAddress, amount)})
	if err != nil {
		return 0, err
	}
	blknum, err := tl.RootChain.GetDepositBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	err = tl.call(ctx, "deposit", owner, amount, func(opts *bind.TransactOpts) error {
		return tl.RootChain.Deposit(opts, tx.Encode())
	})
	if err != nil {
		return 0, err
	}
	return tl.mirrorDeposit(ctx, blknum, tx)
}

// DepositToken mints amount of token to owner, approves the root chain and deposits it.
// The operator must be allowed to mint.
func (tl *TestingLanguage) DepositToken(ctx context.Context, owner devkeys.Account, token rootchain.Token, amount *big.Int) (uint64, error) {
	tx, err := transaction.New(nil, []transaction.Output{transaction.NewOutput(owner.Address, token.Address(), amount)})
	if err != nil {
		return 0, err
	}
	err = tl.call(ctx, "mint", tl.Operator, nil, func(opts *bind.TransactOpts) error {
		return token.Mint(opts, owner.Address, amount)
	})
	if err != nil {
		return 0, err
	}
	err = tl.call(ctx, "approve", owner, nil, func(opts *bind.TransactOpts) error {
		return token.Approve(opts, tl.RootChain.Address(), amount)
	})
	if err != nil {
		return 0, err
	}
	blknum, err := tl.RootChain.GetDepositBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	pre, err := tl.RootChain.BalanceOf(ctx, tl.RootChain.Address(), token.Address())
	if err != nil {
		return 0, err
	}
	err = tl.call(ctx, "depositFrom", owner, nil, func(opts *bind.TransactOpts) error {
		return tl.RootChain.DepositFrom(opts, tx.Encode())
	})
	if err != nil {
		return 0, err
	}
	post, err := tl.RootChain.BalanceOf(ctx, tl.RootChain.Address(), token.Address())
	if err != nil {
		return 0, err
	}
	if !bigs.Equal(post, bigs.Add(pre, amount)) {
		return 0, fmt.Errorf("%w: %s -> %s", ErrDepositFailed, pre, post)
	}
	return tl.mirrorDeposit(ctx, blknum, tx)
}

// SpendUtxo spends inputIDs, signing input i with keys[i], in a block of its own. It
// returns the id of the first output of the spend.
func (tl *TestingLanguage) SpendUtxo(ctx context.Context, inputIDs []uint64, keys []*ecdsa.PrivateKey, outputs []transaction.Output, opts ...BlockOption) (uint64, error) {
	if len(keys) < len(inputIDs) {
		return 0, fmt.Errorf("%w: %d keys for %d inputs", ErrMissingKeys, len(keys), len(inputIDs))
	}
	tx, err := transaction.NewFromIDs(inputIDs, outputs)
	if err != nil {
		return 0, err
	}
	for i := range inputIDs {
		if err := tx.Sign(i, keys[i]); err != nil {
			return 0, err
		}
	}
	blknum, err := tl.SubmitBlock(ctx, []*transaction.Transaction{tx}, opts...)
	if err != nil {
		return 0, err
	}
	return utxo.Encode(blknum, 0, 0)
}

// Utxo is a deposit spent once, leaving a child block output.
type Utxo struct {
	DepositID uint64
	Owner     devkeys.Account
	Token     common.Address
	Amount    *big.Int
	Spend     *transaction.Transaction
	SpendID   uint64
}

// CreateUtxo deposits DefaultUtxoAmount to the first account and spends it back to the
// same owner. A nil token deposits ETH.
func (tl *TestingLanguage) CreateUtxo(ctx context.Context, token rootchain.Token) (*Utxo, error) {
	owner, amount := tl.Accounts[0], big.NewInt(DefaultUtxoAmount)
	var (
		depositID uint64
		tokenAddr = transaction.NullAddress
		err       error
	)
	if token == nil {
		depositID, err = tl.Deposit(ctx, owner, amount)
	} else {
		tokenAddr = token.Address()
		depositID, err = tl.DepositToken(ctx, owner, token, amount)
	}
	if err != nil {
		return nil, err
	}
	out := transaction.NewOutput(owner.Address, tokenAddr, amount)
	spendID, err := tl.SpendUtxo(ctx, []uint64{depositID}, []*ecdsa.PrivateKey{owner.Key}, []transaction.Output{out})
	if err != nil {
		return nil, err
	}
	spend, err := tl.ChildChain.Transaction(spendID)
	if err != nil {
		return nil, err
	}
	return &Utxo{
		DepositID: depositID,
		Owner:     owner,
		Token:     tokenAddr,
		Amount:    amount,
		Spend:     spend,
		SpendID:   spendID,
	}, nil
}

// GetMerkleProof proves the transaction holding txID against its mirrored block.
func (tl *TestingLanguage) GetMerkleProof(txID uint64) ([]byte, error) {
	return tl.ChildChain.MembershipProof(txID)
}

func (tl *TestingLanguage) GetPlasmaBlock(ctx context.Context, blknum uint64) (rootchain.PlasmaBlock, error) {
	return tl.RootChain.Blocks(ctx, blknum)
}

// GetBalance returns the ETH balance of account, or its balance of token when set.
func (tl *TestingLanguage) GetBalance(ctx context.Context, account, token common.Address) (*big.Int, error) {
	return tl.RootChain.BalanceOf(ctx, account, token)
}

// NewToken deploys a mintable token owned by the operator.
func (tl *TestingLanguage) NewToken(ctx context.Context) (rootchain.Token, error) {
	if tl.newToken == nil {
		return nil, ErrNoTokens
	}
	return tl.newToken(ctx)
}
