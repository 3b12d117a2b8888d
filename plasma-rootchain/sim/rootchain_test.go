package sim

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/mantlenetworkio/plasma/plasma-core/block"
	"github.com/mantlenetworkio/plasma/plasma-core/transaction"
	"github.com/mantlenetworkio/plasma/plasma-core/utxo"
	"github.com/mantlenetworkio/plasma/plasma-rootchain/rootchain"
	"github.com/mantlenetworkio/plasma/plasma-service/clock"
	"github.com/mantlenetworkio/plasma/plasma-service/testlog"
)

var genesis = time.Unix(1_700_000_000, 0)

type harness struct {
	t     *testing.T
	rc    *RootChain
	clock *clock.DeterministicClock
	keys  []*ecdsa.PrivateKey
	addrs []common.Address
}

func newHarness(t *testing.T) *harness {
	h := &harness{t: t, clock: clock.NewDeterministicClock(genesis)}
	for i := 0; i < 3; i++ {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		h.keys = append(h.keys, key)
		h.addrs = append(h.addrs, crypto.PubkeyToAddress(key.PublicKey))
	}
	h.rc = New(testlog.Logger(t, log.LevelDebug), DefaultConfig(h.addrs[0]), h.clock)
	for _, a := range h.addrs {
		h.rc.Fund(a, big.NewInt(1e18))
	}
	return h
}

func (h *harness) opts(i int, value *big.Int) *bind.TransactOpts {
	return &bind.TransactOpts{From: h.addrs[i], Value: value, Context: context.Background()}
}

func (h *harness) balance(account common.Address) *big.Int {
	b, err := h.rc.BalanceOf(context.Background(), account, transaction.NullAddress)
	require.NoError(h.t, err)
	return b
}

func (h *harness) deposit(owner int, amount int64) uint64 {
	blknum, err := h.rc.GetDepositBlockNumber(context.Background())
	require.NoError(h.t, err)
	tx := transaction.NewDeposit(h.addrs[owner], transaction.NullAddress, big.NewInt(amount))
	require.NoError(h.t, h.rc.Deposit(h.opts(owner, big.NewInt(amount)), tx.Encode()))
	return utxo.MustEncode(blknum, 0, 0)
}

// submit commits a single-transaction block and returns it.
func (h *harness) submit(tx *transaction.Transaction) *block.Block {
	blknum, err := h.rc.NextChildBlock(context.Background())
	require.NoError(h.t, err)
	b, err := block.New(blknum, []*transaction.Transaction{tx}, uint64(h.clock.Now().Unix()))
	require.NoError(h.t, err)
	require.NoError(h.t, h.rc.SubmitBlock(h.opts(0, nil), b.Root()))
	return b
}

func (h *harness) spend(inputID uint64, key int, outputs ...transaction.Output) (*transaction.Transaction, *block.Block) {
	tx, err := transaction.NewFromIDs([]uint64{inputID}, outputs)
	require.NoError(h.t, err)
	require.NoError(h.t, tx.Sign(0, h.keys[key]))
	return tx, h.submit(tx)
}

func TestBlockNumbering(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	n, err := h.rc.GetDepositBlockNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)

	h.deposit(0, 10)
	h.deposit(0, 10)
	n, err = h.rc.GetDepositBlockNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), n)

	h.submit(transaction.NewDeposit(h.addrs[0], transaction.NullAddress, big.NewInt(1)))
	next, err := h.rc.NextChildBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2000), next)
	n, err = h.rc.GetDepositBlockNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1001), n)

	blk, err := h.rc.Blocks(ctx, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(genesis.Unix()), blk.Timestamp)
	require.NotEqual(t, common.Hash{}, blk.Root)
}

func TestSubmitBlockOperatorOnly(t *testing.T) {
	h := newHarness(t)
	err := h.rc.SubmitBlock(h.opts(1, nil), common.Hash{1})
	require.ErrorIs(t, err, rootchain.ErrRejected)
	err = h.rc.SubmitBlock(h.opts(0, big.NewInt(1)), common.Hash{1})
	require.ErrorIs(t, err, rootchain.ErrRejected)
}

func TestDepositLedger(t *testing.T) {
	h := newHarness(t)
	before := h.balance(h.addrs[1])
	h.deposit(1, 100)
	require.Equal(t, new(big.Int).Sub(before, big.NewInt(100)), h.balance(h.addrs[1]))
	require.Equal(t, big.NewInt(100), h.balance(h.rc.Address()))
}

func TestDepositRejections(t *testing.T) {
	h := newHarness(t)
	tx := transaction.NewDeposit(h.addrs[0], transaction.NullAddress, big.NewInt(100))

	err := h.rc.Deposit(h.opts(0, big.NewInt(99)), tx.Encode())
	require.ErrorIs(t, err, rootchain.ErrRejected, "value must match amount")

	spend, err := transaction.NewFromIDs([]uint64{utxo.MustEncode(1, 0, 0)}, []transaction.Output{
		transaction.NewOutput(h.addrs[0], transaction.NullAddress, big.NewInt(100)),
	})
	require.NoError(t, err)
	err = h.rc.Deposit(h.opts(0, big.NewInt(100)), spend.Encode())
	require.ErrorIs(t, err, rootchain.ErrRejected, "deposit must not spend inputs")

	two, err := transaction.New(nil, []transaction.Output{
		transaction.NewOutput(h.addrs[0], transaction.NullAddress, big.NewInt(50)),
		transaction.NewOutput(h.addrs[1], transaction.NullAddress, big.NewInt(50)),
	})
	require.NoError(t, err)
	err = h.rc.Deposit(h.opts(0, big.NewInt(100)), two.Encode())
	require.ErrorIs(t, err, rootchain.ErrRejected, "deposit must have one output")

	err = h.rc.Deposit(h.opts(0, big.NewInt(100)), []byte{0x01, 0x02})
	require.ErrorIs(t, err, rootchain.ErrRejected)

	n, err := h.rc.GetDepositBlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), n, "rejected deposits leave no block")
}

func TestTokenDeposit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tok := h.rc.NewToken(h.addrs[0])

	require.ErrorIs(t, tok.Mint(h.opts(1, nil), h.addrs[1], big.NewInt(100)), rootchain.ErrRejected)
	require.NoError(t, tok.Mint(h.opts(0, nil), h.addrs[1], big.NewInt(100)))

	tx := transaction.NewDeposit(h.addrs[1], tok.Address(), big.NewInt(100))
	require.ErrorIs(t, h.rc.DepositFrom(h.opts(1, nil), tx.Encode()), rootchain.ErrRejected, "no allowance")

	require.NoError(t, tok.Approve(h.opts(1, nil), h.rc.Address(), big.NewInt(100)))
	require.NoError(t, h.rc.DepositFrom(h.opts(1, nil), tx.Encode()))

	bal, err := h.rc.BalanceOf(ctx, h.rc.Address(), tok.Address())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), bal)
	bal, err = tok.BalanceOf(ctx, h.addrs[1])
	require.NoError(t, err)
	require.Zero(t, bal.Sign())

	blk, err := h.rc.Blocks(ctx, 1)
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, blk.Root)
}

func TestStandardExitLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bond := DefaultBond

	depositID := h.deposit(1, 100)
	spendTx, b := h.spend(depositID, 1, transaction.NewOutput(h.addrs[1], transaction.NullAddress, big.NewInt(100)))
	outputID := utxo.MustEncode(b.Number, 0, 0)
	proof, err := b.MembershipProof(0)
	require.NoError(t, err)

	require.ErrorIs(t, h.rc.StartStandardExit(h.opts(2, bond), outputID, spendTx.Encode(), proof), rootchain.ErrRejected, "not the owner")
	require.ErrorIs(t, h.rc.StartStandardExit(h.opts(1, big.NewInt(1)), outputID, spendTx.Encode(), proof), rootchain.ErrRejected, "wrong bond")
	require.ErrorIs(t, h.rc.StartStandardExit(h.opts(1, bond), outputID, spendTx.Encode(), proof[:32]), rootchain.ErrRejected, "short proof")
	require.NoError(t, h.rc.StartStandardExit(h.opts(1, bond), outputID, spendTx.Encode(), proof))
	require.ErrorIs(t, h.rc.StartStandardExit(h.opts(1, bond), outputID, spendTx.Encode(), proof), rootchain.ErrRejected, "already started")

	exit, err := h.rc.Exits(ctx, outputID)
	require.NoError(t, err)
	require.Equal(t, h.addrs[1], exit.Owner)
	require.Equal(t, big.NewInt(100), exit.Amount)

	require.NoError(t, h.rc.ProcessExits(h.opts(0, nil), transaction.NullAddress, nil, 10))
	exit, err = h.rc.Exits(ctx, outputID)
	require.NoError(t, err)
	require.Equal(t, h.addrs[1], exit.Owner, "immature exits stay queued")

	h.clock.AdvanceTime(2 * rootchain.Week * time.Second)
	require.ErrorIs(t, h.rc.ProcessExits(h.opts(0, nil), transaction.NullAddress, big.NewInt(int64(depositID)), 10), rootchain.ErrRejected, "wrong top exit")
	require.ErrorIs(t, h.rc.ProcessExits(h.opts(0, nil), common.Address{0xee}, nil, 10), rootchain.ErrRejected, "empty queue")

	before := h.balance(h.addrs[1])
	require.NoError(t, h.rc.ProcessExits(h.opts(0, nil), transaction.NullAddress, new(big.Int).SetUint64(outputID), 10))
	want := new(big.Int).Add(before, big.NewInt(100))
	want.Add(want, bond)
	require.Equal(t, want, h.balance(h.addrs[1]))

	exit, err = h.rc.Exits(ctx, outputID)
	require.NoError(t, err)
	require.Equal(t, common.Address{}, exit.Owner)
	require.Equal(t, big.NewInt(100), exit.Amount)

	require.ErrorIs(t, h.rc.StartStandardExit(h.opts(1, bond), outputID, spendTx.Encode(), proof), rootchain.ErrRejected, "finalized exits cannot restart")
}

func TestChallengeStandardExit(t *testing.T) {
	h := newHarness(t)
	bond := DefaultBond

	depositID := h.deposit(1, 100)
	spendTx, b := h.spend(depositID, 1, transaction.NewOutput(h.addrs[1], transaction.NullAddress, big.NewInt(100)))
	outputID := utxo.MustEncode(b.Number, 0, 0)
	proof, err := b.MembershipProof(0)
	require.NoError(t, err)
	require.NoError(t, h.rc.StartStandardExit(h.opts(1, bond), outputID, spendTx.Encode(), proof))

	challenge, _ := h.spend(outputID, 1, transaction.NewOutput(h.addrs[2], transaction.NullAddress, big.NewInt(100)))
	forged, err := transaction.NewFromIDs([]uint64{outputID}, nil)
	require.NoError(t, err)
	require.NoError(t, forged.Sign(0, h.keys[2]))

	require.ErrorIs(t, h.rc.ChallengeStandardExit(h.opts(2, nil), outputID, forged.Encode(), 0, forged.Signatures[0].Bytes()), rootchain.ErrRejected, "signed by a stranger")
	require.ErrorIs(t, h.rc.ChallengeStandardExit(h.opts(2, nil), outputID, challenge.Encode(), 1, challenge.Signatures[0].Bytes()), rootchain.ErrRejected, "wrong input index")
	require.ErrorIs(t, h.rc.ChallengeStandardExit(h.opts(2, nil), depositID, challenge.Encode(), 0, challenge.Signatures[0].Bytes()), rootchain.ErrRejected, "exit not started")

	before := h.balance(h.addrs[2])
	require.NoError(t, h.rc.ChallengeStandardExit(h.opts(2, nil), outputID, challenge.Encode(), 0, challenge.Signatures[0].Bytes()))
	require.Equal(t, new(big.Int).Add(before, bond), h.balance(h.addrs[2]))

	exit, err := h.rc.Exits(context.Background(), outputID)
	require.NoError(t, err)
	require.Equal(t, rootchain.StandardExit{Amount: big.NewInt(100)}, exit)

	require.ErrorIs(t, h.rc.ChallengeStandardExit(h.opts(2, nil), outputID, challenge.Encode(), 0, challenge.Signatures[0].Bytes()), rootchain.ErrRejected, "already challenged")
}

func TestDepositExit(t *testing.T) {
	h := newHarness(t)
	depositID := h.deposit(1, 100)

	require.ErrorIs(t, h.rc.StartDepositExit(h.opts(1, DefaultBond), depositID, transaction.NullAddress, big.NewInt(99)), rootchain.ErrRejected)
	require.ErrorIs(t, h.rc.StartDepositExit(h.opts(1, DefaultBond), depositID, transaction.NullAddress, big.NewInt(-100)), rootchain.ErrRejected)
	require.ErrorIs(t, h.rc.StartDepositExit(h.opts(2, DefaultBond), depositID, transaction.NullAddress, big.NewInt(100)), rootchain.ErrRejected)
	require.NoError(t, h.rc.StartDepositExit(h.opts(1, DefaultBond), depositID, transaction.NullAddress, big.NewInt(100)))

	h.clock.AdvanceTime(rootchain.Week * time.Second)
	require.NoError(t, h.rc.ProcessExits(h.opts(0, nil), transaction.NullAddress, nil, 1))
	exit, err := h.rc.Exits(context.Background(), depositID)
	require.NoError(t, err)
	require.Equal(t, common.Address{}, exit.Owner)
}

func TestFeeExit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.deposit(1, 1000)

	require.ErrorIs(t, h.rc.StartFeeExit(h.opts(1, DefaultBond), transaction.NullAddress, big.NewInt(10)), rootchain.ErrRejected, "operator only")

	id, err := h.rc.CurrentFeeExit(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
	require.NoError(t, h.rc.StartFeeExit(h.opts(0, DefaultBond), transaction.NullAddress, big.NewInt(10)))

	next, err := h.rc.CurrentFeeExit(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), next)

	exit, err := h.rc.Exits(ctx, id)
	require.NoError(t, err)
	require.Equal(t, h.addrs[0], exit.Owner)
	require.Equal(t, big.NewInt(10), exit.Amount)
}

func TestProcessExitsInsolvent(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.rc.StartFeeExit(h.opts(0, DefaultBond), transaction.NullAddress, new(big.Int).Mul(DefaultBond, big.NewInt(2))))
	h.clock.AdvanceTime(rootchain.Week * time.Second)

	err := h.rc.ProcessExits(h.opts(0, nil), transaction.NullAddress, nil, 1)
	require.ErrorIs(t, err, rootchain.ErrRejected)
	exit, err := h.rc.Exits(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, h.addrs[0], exit.Owner, "failed processing leaves the exit in place")
}
