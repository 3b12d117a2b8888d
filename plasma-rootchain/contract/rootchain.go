// Package contract binds the deployed plasma root chain and token contracts over JSON-RPC.
package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/mantlenetworkio/plasma/plasma-core/transaction"
	"github.com/mantlenetworkio/plasma/plasma-rootchain/rootchain"
)

// DefaultReceiptTimeout bounds how long a write waits to be mined.
const DefaultReceiptTimeout = 2 * time.Minute

// Backend is the chain access the bindings need. *ethclient.Client implements it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

type RootChain struct {
	log          log.Logger
	backend      Backend
	address      common.Address
	abi          abi.ABI
	contract       *bind.BoundContract
	receiptTimeout time.Duration
}

var _ rootchain.RootChain = (*RootChain)(nil)

type Option func(*RootChain)

func WithReceiptTimeout(d time.Duration) Option {
	return func(c *RootChain) {
		c.receiptTimeout = d
	}
}

func NewRootChain(lgr log.Logger, backend Backend, address common.Address, opts ...Option) (*RootChain, error) {
	parsed, err := abi.JSON(strings.NewReader(rootChainABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse root chain ABI: %w", err)
	}
	c := &RootChain{
		log:            lgr,
		backend:        backend,
		address:        address,
		abi:            parsed,
		contract:       bind.NewBoundContract(address, parsed, backend, backend, backend),
		receiptTimeout: DefaultReceiptTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *RootChain) Address() common.Address {
	return c.address
}

// isRevert reports whether err is the node refusing execution rather than a transport failure.
func isRevert(err error) bool {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "revert") || strings.Contains(msg, "invalid opcode")
}

func classify(method string, err error) error {
	if isRevert(err) {
		return fmt.Errorf("%w: %s: %w", rootchain.ErrRejected, method, err)
	}
	return fmt.Errorf("failed to call %s: %w", method, err)
}

func callOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx}
}

func (c *RootChain) call(ctx context.Context, method string, params ...any) ([]any, error) {
	var out []any
	if err := c.contract.Call(callOpts(ctx), &out, method, params...); err != nil {
		return nil, classify(method, err)
	}
	return out, nil
}

func (c *RootChain) callUint(ctx context.Context, method string, params ...any) (*big.Int, error) {
	out, err := c.call(ctx, method, params...)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *RootChain) transact(opts *bind.TransactOpts, method string, params ...any) error {
	return transact(opts, c.log, c.backend, c.contract, c.receiptTimeout, method, params...)
}

func transact(opts *bind.TransactOpts, lgr log.Logger, backend Backend, contract *bind.BoundContract, timeout time.Duration, method string, params ...any) error {
	tx, err := contract.Transact(opts, method, params...)
	if err != nil {
		return classify(method, err)
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return confirm(ctx, lgr, backend, tx, timeout, method)
}

// confirm waits up to timeout for tx to be mined. A failed receipt is a rejection.
func confirm(ctx context.Context, lgr log.Logger, backend Backend, tx *types.Transaction, timeout time.Duration, method string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	receipt, err := bind.WaitMined(ctx, backend, tx)
	if err != nil {
		return fmt.Errorf("failed to wait for %s receipt: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s reverted in tx %s", rootchain.ErrRejected, method, tx.Hash())
	}
	lgr.Debug("Transaction confirmed", "method", method, "tx", tx.Hash(), "gasUsed", receipt.GasUsed)
	return nil
}

func u(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

func (c *RootChain) Operator(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, "operator")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func (c *RootChain) SubmitBlock(opts *bind.TransactOpts, root common.Hash) error {
	return c.transact(opts, "submitBlock", [32]byte(root))
}

func (c *RootChain) NextChildBlock(ctx context.Context) (uint64, error) {
	v, err := c.callUint(ctx, "nextChildBlock")
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func (c *RootChain) GetDepositBlockNumber(ctx context.Context) (uint64, error) {
	v, err := c.callUint(ctx, "getDepositBlockNumber")
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func (c *RootChain) Blocks(ctx context.Context, blknum uint64) (rootchain.PlasmaBlock, error) {
	out, err := c.call(ctx, "blocks", u(blknum))
	if err != nil {
		return rootchain.PlasmaBlock{}, err
	}
	return rootchain.PlasmaBlock{
		Root:      common.Hash(out[0].([32]byte)),
		Timestamp: out[1].(*big.Int).Uint64(),
	}, nil
}

func (c *RootChain) Deposit(opts *bind.TransactOpts, depositTx []byte) error {
	return c.transact(opts, "deposit", depositTx)
}

func (c *RootChain) DepositFrom(opts *bind.TransactOpts, depositTx []byte) error {
	return c.transact(opts, "depositFrom", depositTx)
}

func (c *RootChain) StartStandardExit(opts *bind.TransactOpts, outputID uint64, outputTx []byte, proof []byte) error {
	return c.transact(opts, "startStandardExit", u(outputID), outputTx, proof)
}

func (c *RootChain) StartDepositExit(opts *bind.TransactOpts, depositID uint64, token common.Address, amount *big.Int) error {
	return c.transact(opts, "startDepositExit", u(depositID), token, amount)
}

func (c *RootChain) ChallengeStandardExit(opts *bind.TransactOpts, outputID uint64, challengeTx []byte, inputIndex uint8, sig []byte) error {
	return c.transact(opts, "challengeStandardExit", u(outputID), challengeTx, inputIndex, sig)
}

func (c *RootChain) StartFeeExit(opts *bind.TransactOpts, token common.Address, amount *big.Int) error {
	return c.transact(opts, "startFeeExit", token, amount)
}

func (c *RootChain) CurrentFeeExit(ctx context.Context) (uint64, error) {
	v, err := c.callUint(ctx, "currentFeeExit")
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func (c *RootChain) Exits(ctx context.Context, id uint64) (rootchain.StandardExit, error) {
	out, err := c.call(ctx, "exits", u(id))
	if err != nil {
		return rootchain.StandardExit{}, err
	}
	return rootchain.StandardExit{
		Owner:  out[0].(common.Address),
		Token:  out[1].(common.Address),
		Amount: out[2].(*big.Int),
	}, nil
}

func (c *RootChain) StartInFlightExit(opts *bind.TransactOpts, inFlightTx, inputTxs, inputTxsInclusionProofs, inFlightTxSigs []byte) error {
	return c.transact(opts, "startInFlightExit", inFlightTx, inputTxs, inputTxsInclusionProofs, inFlightTxSigs)
}

func (c *RootChain) PiggybackInFlightExit(opts *bind.TransactOpts, inFlightTx []byte, outputIndex uint8) error {
	return c.transact(opts, "piggybackInFlightExit", inFlightTx, outputIndex)
}

func (c *RootChain) ChallengeInFlightExitNotCanonical(opts *bind.TransactOpts, inFlightTx []byte, inFlightTxInputIndex uint8, competingTx []byte, competingTxInputIndex uint8, competingTxID uint64, competingTxInclusionProof, competingTxSig []byte) error {
	return c.transact(opts, "challengeInFlightExitNotCanonical",
		inFlightTx, inFlightTxInputIndex, competingTx, competingTxInputIndex, u(competingTxID), competingTxInclusionProof, competingTxSig)
}

func (c *RootChain) RespondToNonCanonicalChallenge(opts *bind.TransactOpts, inFlightTx []byte, inFlightTxPos uint64, inFlightTxInclusionProof []byte) error {
	return c.transact(opts, "respondToNonCanonicalChallenge", inFlightTx, u(inFlightTxPos), inFlightTxInclusionProof)
}

func (c *RootChain) ChallengeInFlightExitInputSpent(opts *bind.TransactOpts, inFlightTx []byte, inFlightTxInputIndex uint8, spendingTx []byte, spendingTxInputIndex uint8, spendingTxSig []byte) error {
	return c.transact(opts, "challengeInFlightExitInputSpent", inFlightTx, inFlightTxInputIndex, spendingTx, spendingTxInputIndex, spendingTxSig)
}

func (c *RootChain) ChallengeInFlightExitOutputSpent(opts *bind.TransactOpts, inFlightTx []byte, inFlightTxOutputID uint64, inFlightTxInclusionProof, spendingTx []byte, spendingTxInputIndex uint8, spendingTxSig []byte) error {
	return c.transact(opts, "challengeInFlightExitOutputSpent",
		inFlightTx, u(inFlightTxOutputID), inFlightTxInclusionProof, spendingTx, spendingTxInputIndex, spendingTxSig)
}

func (c *RootChain) GetInFlightExitID(ctx context.Context, tx []byte) (*big.Int, error) {
	return c.callUint(ctx, "getUniqueId", tx)
}

func (c *RootChain) InFlightExits(ctx context.Context, id *big.Int) (rootchain.InFlightExit, error) {
	out, err := c.call(ctx, "inFlightExits", id)
	if err != nil {
		return rootchain.InFlightExit{}, err
	}
	return rootchain.InFlightExit{
		ExitStartTimestamp: out[0].(*big.Int),
		ExitMap:            out[1].(*big.Int),
		BondOwner:          out[2].(common.Address),
		OldestCompetitor:   out[3].(*big.Int).Uint64(),
	}, nil
}

func (c *RootChain) GetInFlightExitOutput(ctx context.Context, tx []byte, outputIndex uint8) (transaction.Output, error) {
	out, err := c.call(ctx, "getInFlightExitOutput", tx, outputIndex)
	if err != nil {
		return transaction.Output{}, err
	}
	return transaction.Output{
		Owner:  out[0].(common.Address),
		Token:  out[1].(common.Address),
		Amount: out[2].(*big.Int),
	}, nil
}

func (c *RootChain) ProcessExits(opts *bind.TransactOpts, token common.Address, topExitID *big.Int, count uint64) error {
	if topExitID == nil {
		topExitID = new(big.Int)
	}
	return c.transact(opts, "processExits", token, topExitID, u(count))
}

func (c *RootChain) BalanceOf(ctx context.Context, account, token common.Address) (*big.Int, error) {
	if token == transaction.NullAddress {
		return c.backend.BalanceAt(ctx, account, nil)
	}
	tok, err := c.Token(token)
	if err != nil {
		return nil, err
	}
	return tok.BalanceOf(ctx, account)
}

// Token binds the token at address over the same backend.
func (c *RootChain) Token(address common.Address) (*Token, error) {
	return NewToken(c.log, c.backend, address, WithTokenReceiptTimeout(c.receiptTimeout))
}

func (c *RootChain) StandardExitBond(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, "standardExitBond")
}

func (c *RootChain) InFlightExitBond(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, "inFlightExitBond")
}

func (c *RootChain) PiggybackBond(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, "piggybackBond")
}

func (c *RootChain) MinExitPeriod(ctx context.Context) (uint64, error) {
	v, err := c.callUint(ctx, "minExitPeriod")
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}
