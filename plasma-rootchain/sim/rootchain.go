// Package sim is an in-memory plasma root chain. It enforces the contract's observable
// exit rules against a deterministic clock and an internal ETH and token ledger, so the
// testing language can run without a node.
package sim

import (
	"container/heap"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/mantlenetworkio/plasma/plasma-core/block"
	"github.com/mantlenetworkio/plasma/plasma-core/merkle"
	"github.com/mantlenetworkio/plasma/plasma-core/transaction"
	"github.com/mantlenetworkio/plasma/plasma-rootchain/rootchain"
	"github.com/mantlenetworkio/plasma/plasma-service/bigs"
	"github.com/mantlenetworkio/plasma/plasma-service/clock"
)

// DefaultBond is the value of every bond unless configured otherwise.
var DefaultBond = big.NewInt(31415926535)

type Config struct {
	Operator         common.Address
	MinExitPeriod    uint64
	StandardExitBond *big.Int
	InFlightExitBond *big.Int
	PiggybackBond    *big.Int
}

func DefaultConfig(operator common.Address) Config {
	return Config{
		Operator:         operator,
		MinExitPeriod:    rootchain.Week,
		StandardExitBond: new(big.Int).Set(DefaultBond),
		InFlightExitBond: new(big.Int).Set(DefaultBond),
		PiggybackBond:    new(big.Int).Set(DefaultBond),
	}
}

type standardExit struct {
	owner  common.Address
	token  common.Address
	amount *big.Int
}

// RootChain implements rootchain.RootChain in memory.
type RootChain struct {
	log     log.Logger
	cfg     Config
	clock   clock.Clock
	address common.Address

	mu               sync.Mutex
	blocks           map[uint64]rootchain.PlasmaBlock
	nextChildBlock   uint64
	nextDepositBlock uint64
	currentFeeExit   uint64
	exitSeq          uint64
	exits            map[uint64]*standardExit
	inFlightExits    map[uint256.Int]*inFlightExit
	queues           queues
	eth              map[common.Address]*big.Int
	tokens           map[common.Address]*Token
}

var _ rootchain.RootChain = (*RootChain)(nil)

func New(logger log.Logger, cfg Config, clk clock.Clock) *RootChain {
	return &RootChain{
		log:              logger,
		cfg:              cfg,
		clock:            clk,
		address:          crypto.CreateAddress(cfg.Operator, 0),
		blocks:           make(map[uint64]rootchain.PlasmaBlock),
		nextChildBlock:   block.ChildBlockInterval,
		nextDepositBlock: 1,
		currentFeeExit:   1,
		exits:            make(map[uint64]*standardExit),
		inFlightExits:    make(map[uint256.Int]*inFlightExit),
		queues:           make(queues),
		eth:              make(map[common.Address]*big.Int),
		tokens:           make(map[common.Address]*Token),
	}
}

func reject(format string, args ...any) error {
	return fmt.Errorf("%w: %s", rootchain.ErrRejected, fmt.Sprintf(format, args...))
}

func (r *RootChain) now() uint64 {
	return uint64(r.clock.Now().Unix())
}

func (r *RootChain) Address() common.Address {
	return r.address
}

func (r *RootChain) Operator(context.Context) (common.Address, error) {
	return r.cfg.Operator, nil
}

// Fund credits ETH to account, standing in for genesis allocations.
func (r *RootChain) Fund(account common.Address, amount *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credit(account, amount)
}

// NewToken deploys a mintable token owned by owner.
func (r *RootChain) NewToken(owner common.Address) *Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok := newToken(crypto.CreateAddress(owner, uint64(len(r.tokens))+1), owner)
	r.tokens[tok.address] = tok
	return tok
}

func (r *RootChain) balance(account common.Address) *big.Int {
	b, ok := r.eth[account]
	if !ok {
		b = new(big.Int)
		r.eth[account] = b
	}
	return b
}

func (r *RootChain) credit(account common.Address, amount *big.Int) {
	b := r.balance(account)
	b.Add(b, amount)
}

func value(opts *bind.TransactOpts) *big.Int {
	if opts.Value == nil {
		return new(big.Int)
	}
	return opts.Value
}

// collect moves the attached value from the sender to the contract.
func (r *RootChain) collect(opts *bind.TransactOpts) error {
	v := value(opts)
	if v.Sign() < 0 {
		return reject("negative value")
	}
	from := r.balance(opts.From)
	if from.Cmp(v) < 0 {
		return reject("insufficient funds for value %s", v)
	}
	from.Sub(from, v)
	r.credit(r.address, v)
	return nil
}

func nonPayable(opts *bind.TransactOpts) error {
	if value(opts).Sign() != 0 {
		return reject("function is not payable")
	}
	return nil
}

func exactValue(opts *bind.TransactOpts, want *big.Int) error {
	if !bigs.Equal(value(opts), want) {
		return reject("invalid bond: got %s, want %s", value(opts), want)
	}
	return nil
}

// payout transfers from the contract to the recipient. Callers check solvency first.
func (r *RootChain) payout(token, to common.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	if token == transaction.NullAddress {
		c := r.balance(r.address)
		c.Sub(c, amount)
		r.credit(to, amount)
		return
	}
	r.tokens[token].transfer(r.address, to, amount)
}

func (r *RootChain) holdings(token common.Address) *big.Int {
	if token == transaction.NullAddress {
		return new(big.Int).Set(r.balance(r.address))
	}
	tok, ok := r.tokens[token]
	if !ok {
		return new(big.Int)
	}
	return tok.balanceOf(r.address)
}

func (r *RootChain) SubmitBlock(opts *bind.TransactOpts, root common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if opts.From != r.cfg.Operator {
		return reject("sender %s is not the operator", opts.From)
	}
	if err := nonPayable(opts); err != nil {
		return err
	}
	r.blocks[r.nextChildBlock] = rootchain.PlasmaBlock{Root: root, Timestamp: r.now()}
	r.log.Debug("Submitted block", "blknum", r.nextChildBlock, "root", root)
	r.nextChildBlock += block.ChildBlockInterval
	r.nextDepositBlock = 1
	return nil
}

func (r *RootChain) NextChildBlock(context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextChildBlock, nil
}

func (r *RootChain) GetDepositBlockNumber(context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.depositBlockNumber(), nil
}

func (r *RootChain) depositBlockNumber() uint64 {
	return r.nextChildBlock - block.ChildBlockInterval + r.nextDepositBlock
}

func (r *RootChain) Blocks(_ context.Context, blknum uint64) (rootchain.PlasmaBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blocks[blknum], nil
}

func decodeDeposit(depositTx []byte) (transaction.Output, error) {
	tx, err := transaction.Decode(depositTx)
	if err != nil {
		return transaction.Output{}, reject("malformed deposit: %v", err)
	}
	if !tx.IsDeposit() {
		return transaction.Output{}, reject("deposit must not spend inputs")
	}
	for _, out := range tx.Outputs[1:] {
		if !out.IsNull() {
			return transaction.Output{}, reject("deposit must have a single output")
		}
	}
	return tx.Outputs[0], nil
}

func (r *RootChain) addDepositBlock(depositTx []byte) error {
	if r.nextDepositBlock >= block.ChildBlockInterval {
		return reject("too many deposit blocks before next child block")
	}
	blknum := r.depositBlockNumber()
	r.blocks[blknum] = rootchain.PlasmaBlock{
		Root:      merkle.SingleLeafRoot(merkle.DefaultDepth, depositTx),
		Timestamp: r.now(),
	}
	r.nextDepositBlock++
	r.log.Debug("Deposit block", "blknum", blknum)
	return nil
}

func (r *RootChain) Deposit(opts *bind.TransactOpts, depositTx []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, err := decodeDeposit(depositTx)
	if err != nil {
		return err
	}
	if out.Token != transaction.NullAddress {
		return reject("deposit must be in ETH")
	}
	if !bigs.Equal(out.Amount, value(opts)) {
		return reject("deposit amount %s does not match value %s", out.Amount, value(opts))
	}
	if r.nextDepositBlock >= block.ChildBlockInterval {
		return reject("too many deposit blocks before next child block")
	}
	if err := r.collect(opts); err != nil {
		return err
	}
	return r.addDepositBlock(depositTx)
}

func (r *RootChain) DepositFrom(opts *bind.TransactOpts, depositTx []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := nonPayable(opts); err != nil {
		return err
	}
	out, err := decodeDeposit(depositTx)
	if err != nil {
		return err
	}
	tok, ok := r.tokens[out.Token]
	if !ok {
		return reject("unknown token %s", out.Token)
	}
	if r.nextDepositBlock >= block.ChildBlockInterval {
		return reject("too many deposit blocks before next child block")
	}
	if err := tok.transferFrom(r.address, opts.From, r.address, out.Amount); err != nil {
		return err
	}
	return r.addDepositBlock(depositTx)
}

func (r *RootChain) BalanceOf(_ context.Context, account, token common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token == transaction.NullAddress {
		return new(big.Int).Set(r.balance(account)), nil
	}
	tok, ok := r.tokens[token]
	if !ok {
		return nil, reject("unknown token %s", token)
	}
	return tok.balanceOf(account), nil
}

func (r *RootChain) StandardExitBond(context.Context) (*big.Int, error) {
	return new(big.Int).Set(r.cfg.StandardExitBond), nil
}

func (r *RootChain) InFlightExitBond(context.Context) (*big.Int, error) {
	return new(big.Int).Set(r.cfg.InFlightExitBond), nil
}

func (r *RootChain) PiggybackBond(context.Context) (*big.Int, error) {
	return new(big.Int).Set(r.cfg.PiggybackBond), nil
}

func (r *RootChain) MinExitPeriod(context.Context) (uint64, error) {
	return r.cfg.MinExitPeriod, nil
}

// exitableAt is the earliest processing time of an exit of an output in blknum.
func (r *RootChain) exitableAt(blknum uint64) uint64 {
	now := r.now()
	if block.IsDepositNumber(blknum) {
		return now + r.cfg.MinExitPeriod
	}
	return max(r.blocks[blknum].Timestamp+2*r.cfg.MinExitPeriod, now+r.cfg.MinExitPeriod)
}

func (r *RootChain) enqueue(token common.Address, exitableAt, position uint64, exitID *uint256.Int, inFlight bool) {
	r.exitSeq++
	heap.Push(r.queues.get(token), &queueEntry{
		priority:   exitPriority(exitableAt, position, r.exitSeq),
		exitableAt: exitableAt,
		exitID:     exitID,
		inFlight:   inFlight,
	})
}

// checkInclusion verifies that txBytes sits at position txindex of block blknum.
func (r *RootChain) checkInclusion(txBytes []byte, blknum, txindex uint64, proof []byte) error {
	if len(proof) != merkle.DefaultDepth*common.HashLength {
		return reject("invalid proof length %d", len(proof))
	}
	b, ok := r.blocks[blknum]
	if !ok {
		return reject("unknown block %d", blknum)
	}
	if !merkle.CheckMembership(crypto.Keccak256Hash(txBytes), txindex, b.Root, proof) {
		return reject("transaction not included in block %d", blknum)
	}
	return nil
}
