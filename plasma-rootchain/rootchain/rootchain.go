// Package rootchain describes the on-chain plasma contract the harness drives. The contract
// owns every exit rule; callers only submit operations and read back state.
package rootchain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/plasma/plasma-core/transaction"
)

// ErrRejected wraps every operation the root chain refuses.
var ErrRejected = errors.New("root chain rejected operation")

const (
	// Week is the default minimum exit period in seconds.
	Week = 7 * 24 * 60 * 60

	// challengeFlagBit marks a challenged in-flight exit inside its start timestamp.
	challengeFlagBit = 255
)

// PlasmaBlock is a committed block root.
type PlasmaBlock struct {
	Root      common.Hash
	Timestamp uint64
}

// StandardExit is the root chain record of a standard or fee exit. A challenged or
// processed exit keeps its amount while owner and token are cleared.
type StandardExit struct {
	Owner  common.Address
	Token  common.Address
	Amount *big.Int
}

// InFlightExit is the root chain record of an in-flight exit. ExitMap bits 0-7 flag
// piggybacked inputs and outputs, bits 8-15 flag the ones already exited.
type InFlightExit struct {
	ExitStartTimestamp *big.Int
	ExitMap            *big.Int
	BondOwner          common.Address
	OldestCompetitor   uint64
}

// FlagSet reports whether the start timestamp carries the non-canonical challenge flag.
func FlagSet(exitStartTimestamp *big.Int) bool {
	return exitStartTimestamp != nil && exitStartTimestamp.Bit(challengeFlagBit) == 1
}

// SetFlag returns ts with the challenge flag set.
func SetFlag(ts uint64) *big.Int {
	v := new(big.Int).SetUint64(ts)
	return v.SetBit(v, challengeFlagBit, 1)
}

// ClearFlag returns ts without the challenge flag. A nil ts is 0.
func ClearFlag(ts *big.Int) uint64 {
	if ts == nil {
		return 0
	}
	v := new(big.Int).Set(ts)
	return v.SetBit(v, challengeFlagBit, 0).Uint64()
}

// RootChain is the plasma contract. Write operations take the transaction options of the
// sender: From, Value and Context are honoured by every implementation.
type RootChain interface {
	Address() common.Address
	Operator(ctx context.Context) (common.Address, error)

	SubmitBlock(opts *bind.TransactOpts, root common.Hash) error
	NextChildBlock(ctx context.Context) (uint64, error)
	GetDepositBlockNumber(ctx context.Context) (uint64, error)
	Blocks(ctx context.Context, blknum uint64) (PlasmaBlock, error)

	Deposit(opts *bind.TransactOpts, depositTx []byte) error
	DepositFrom(opts *bind.TransactOpts, depositTx []byte) error

	StartStandardExit(opts *bind.TransactOpts, outputID uint64, outputTx []byte, proof []byte) error
	StartDepositExit(opts *bind.TransactOpts, depositID uint64, token common.Address, amount *big.Int) error
	ChallengeStandardExit(opts *bind.TransactOpts, outputID uint64, challengeTx []byte, inputIndex uint8, sig []byte) error
	StartFeeExit(opts *bind.TransactOpts, token common.Address, amount *big.Int) error
	CurrentFeeExit(ctx context.Context) (uint64, error)
	Exits(ctx context.Context, id uint64) (StandardExit, error)

	StartInFlightExit(opts *bind.TransactOpts, inFlightTx, inputTxs, inputTxsInclusionProofs, inFlightTxSigs []byte) error
	PiggybackInFlightExit(opts *bind.TransactOpts, inFlightTx []byte, outputIndex uint8) error
	ChallengeInFlightExitNotCanonical(opts *bind.TransactOpts, inFlightTx []byte, inFlightTxInputIndex uint8, competingTx []byte, competingTxInputIndex uint8, competingTxID uint64, competingTxInclusionProof, competingTxSig []byte) error
	RespondToNonCanonicalChallenge(opts *bind.TransactOpts, inFlightTx []byte, inFlightTxPos uint64, inFlightTxInclusionProof []byte) error
	ChallengeInFlightExitInputSpent(opts *bind.TransactOpts, inFlightTx []byte, inFlightTxInputIndex uint8, spendingTx []byte, spendingTxInputIndex uint8, spendingTxSig []byte) error
	ChallengeInFlightExitOutputSpent(opts *bind.TransactOpts, inFlightTx []byte, inFlightTxOutputID uint64, inFlightTxInclusionProof, spendingTx []byte, spendingTxInputIndex uint8, spendingTxSig []byte) error
	GetInFlightExitID(ctx context.Context, tx []byte) (*big.Int, error)
	InFlightExits(ctx context.Context, id *big.Int) (InFlightExit, error)
	GetInFlightExitOutput(ctx context.Context, tx []byte, outputIndex uint8) (transaction.Output, error)

	// ProcessExits pays out up to count matured exits of token. A non-zero topExitID must
	// name the exit at the head of the queue.
	ProcessExits(opts *bind.TransactOpts, token common.Address, topExitID *big.Int, count uint64) error

	BalanceOf(ctx context.Context, account, token common.Address) (*big.Int, error)

	StandardExitBond(ctx context.Context) (*big.Int, error)
	InFlightExitBond(ctx context.Context) (*big.Int, error)
	PiggybackBond(ctx context.Context) (*big.Int, error)
	MinExitPeriod(ctx context.Context) (uint64, error)
}

// Token is a mintable ERC20 token deposits can be made in.
type Token interface {
	Address() common.Address
	Mint(opts *bind.TransactOpts, to common.Address, amount *big.Int) error
	Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// Clock reads and advances chain time, in seconds.
type Clock interface {
	Now(ctx context.Context) (uint64, error)
	Advance(ctx context.Context, seconds uint64) error
}
