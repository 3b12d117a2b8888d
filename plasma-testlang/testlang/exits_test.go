package testlang

import (
	"context"
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/mantlenetworkio/plasma/plasma-core/devkeys"
	"github.com/mantlenetworkio/plasma/plasma-core/transaction"
	"github.com/mantlenetworkio/plasma/plasma-core/utxo"
	"github.com/mantlenetworkio/plasma/plasma-rootchain/rootchain"
)

// challengedExit is what the root chain keeps of an exit once it is challenged.
func challengedExit(amount int64) rootchain.StandardExit {
	return rootchain.StandardExit{Amount: big.NewInt(amount)}
}

func (tl *TestingLanguage) requireExit(t *testing.T, id uint64, want rootchain.StandardExit) {
	got, err := tl.GetStandardExit(context.Background(), id)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(want, got, bigComparer))
}

func TestChallengeStandardExit(t *testing.T) {
	for _, mature := range []bool{false, true} {
		name := "immature"
		if mature {
			name = "mature"
		}
		t.Run(name, func(t *testing.T) {
			tl, m := newTestLangWithMetrics(t)
			ctx := context.Background()
			owner := tl.Accounts[0]
			depositID := tl.mustDeposit(t, owner, 100)
			spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, []transaction.Output{eth(owner, 100)})

			require.NoError(t, tl.StartStandardExit(ctx, spendID, owner))
			tl.requireExit(t, spendID, rootchain.StandardExit{Owner: owner.Address, Amount: big.NewInt(100)})
			doubleSpendID := tl.mustSpend(t, []uint64{spendID}, []devkeys.Account{owner}, []transaction.Output{eth(owner, 100)})

			if mature {
				require.NoError(t, tl.ForwardTimestamp(ctx, 2*rootchain.Week+1))
			}
			require.NoError(t, tl.ChallengeStandardExit(ctx, spendID, doubleSpendID))
			tl.requireExit(t, spendID, challengedExit(100))
			require.Equal(t, 1, m.started[exitKindStandard])
			require.Equal(t, 1, m.challenged[exitKindStandard])
		})
	}
}

func TestChallengeStandardExitInvalidSpend(t *testing.T) {
	tl := newTestLang(t)
	ctx := context.Background()
	owner, other := tl.Accounts[0], tl.Accounts[1]
	depositID := tl.mustDeposit(t, owner, 100)
	require.NoError(t, tl.StartStandardExit(ctx, depositID, owner))
	spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{other}, nil, ForceInvalid())

	err := tl.ChallengeStandardExit(ctx, depositID, spendID)
	require.ErrorIs(t, err, rootchain.ErrRejected)
}

func TestChallengeStandardExitUnrelatedSpend(t *testing.T) {
	tl := newTestLang(t)
	ctx := context.Background()
	owner := tl.Accounts[0]
	depositID := tl.mustDeposit(t, owner, 100)
	require.NoError(t, tl.StartStandardExit(ctx, depositID, owner))
	otherDepositID := tl.mustDeposit(t, owner, 100)
	spendID := tl.mustSpend(t, []uint64{otherDepositID}, []devkeys.Account{owner}, nil)

	err := tl.ChallengeStandardExit(ctx, depositID, spendID)
	require.ErrorIs(t, err, rootchain.ErrRejected)
}

func TestChallengeStandardExitNotStarted(t *testing.T) {
	tl := newTestLang(t)
	owner := tl.Accounts[0]
	depositID := tl.mustDeposit(t, owner, 100)
	spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, nil)

	err := tl.ChallengeStandardExit(context.Background(), depositID, spendID)
	require.ErrorIs(t, err, rootchain.ErrRejected)
}

func TestRestartChallengedExit(t *testing.T) {
	tl := newTestLang(t)
	ctx := context.Background()
	owner := tl.Accounts[0]
	depositID := tl.mustDeposit(t, owner, 100)
	spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, []transaction.Output{eth(owner, 100)})
	require.NoError(t, tl.StartStandardExit(ctx, spendID, owner))
	doubleSpendID := tl.mustSpend(t, []uint64{spendID}, []devkeys.Account{owner}, []transaction.Output{eth(owner, 100)})
	require.NoError(t, tl.ChallengeStandardExit(ctx, spendID, doubleSpendID))
	tl.requireExit(t, spendID, challengedExit(100))

	err := tl.StartStandardExit(ctx, spendID, owner)
	require.ErrorIs(t, err, rootchain.ErrRejected)
}

func TestRestartFinalizedExit(t *testing.T) {
	tl := newTestLang(t)
	ctx := context.Background()
	owner := tl.Accounts[0]
	depositID := tl.mustDeposit(t, owner, 100)
	spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, []transaction.Output{eth(owner, 100)})
	require.NoError(t, tl.StartStandardExit(ctx, spendID, owner))

	require.NoError(t, tl.ForwardTimestamp(ctx, 2*rootchain.Week+1))
	before := tl.balance(t, owner.Address)
	require.NoError(t, tl.ProcessExits(ctx))
	tl.requireExit(t, spendID, challengedExit(100))

	bond, err := tl.RootChain.StandardExitBond(ctx)
	require.NoError(t, err)
	want := new(big.Int).Add(before, bond)
	require.Equal(t, want.Add(want, big.NewInt(100)), tl.balance(t, owner.Address))

	err = tl.StartStandardExit(ctx, spendID, owner)
	require.ErrorIs(t, err, rootchain.ErrRejected)
}

func TestChallengeStandardExitWrongOutputIndex(t *testing.T) {
	tl := newTestLang(t)
	ctx := context.Background()
	alice, bob := tl.Accounts[0], tl.Accounts[1]
	depositID := tl.mustDeposit(t, alice, 100)

	tx, err := transaction.NewFromIDs([]uint64{depositID}, []transaction.Output{eth(alice, 10), eth(bob, 90)})
	require.NoError(t, err)
	require.NoError(t, tx.Sign(0, alice.Key))
	blknum, err := tl.SubmitBlock(ctx, []*transaction.Transaction{tx})
	require.NoError(t, err)
	aliceUtxo, bobUtxo := utxo.MustEncode(blknum, 0, 0), utxo.MustEncode(blknum, 0, 1)

	require.NoError(t, tl.StartStandardExit(ctx, aliceUtxo, alice))
	bobSpendID := tl.mustSpend(t, []uint64{bobUtxo}, []devkeys.Account{bob}, []transaction.Output{eth(bob, 90)})
	aliceSpendID := tl.mustSpend(t, []uint64{aliceUtxo}, []devkeys.Account{alice}, []transaction.Output{eth(alice, 10)})

	require.ErrorIs(t, tl.ChallengeStandardExit(ctx, aliceUtxo, bobSpendID), rootchain.ErrRejected)
	require.NoError(t, tl.ChallengeStandardExit(ctx, aliceUtxo, aliceSpendID))
}

func TestStartStandardExitWrongSender(t *testing.T) {
	tl := newTestLang(t)
	ctx := context.Background()
	owner, other := tl.Accounts[0], tl.Accounts[1]
	depositID := tl.mustDeposit(t, owner, 100)

	require.ErrorIs(t, tl.StartStandardExit(ctx, depositID, owner, WithSender(other)), rootchain.ErrRejected)
	require.ErrorIs(t, tl.StartStandardExit(ctx, depositID, owner, WithBond(big.NewInt(1))), rootchain.ErrRejected)
	require.NoError(t, tl.StartStandardExit(ctx, depositID, owner))
}

func TestGetChallengeProof(t *testing.T) {
	tl := newTestLang(t)
	owner := tl.Accounts[0]
	first := tl.mustDeposit(t, owner, 100)
	second := tl.mustDeposit(t, owner, 50)
	spendID := tl.mustSpend(t, []uint64{first, second}, []devkeys.Account{owner, owner}, []transaction.Output{eth(owner, 150)})

	proof, err := tl.GetChallengeProof(second, spendID)
	require.NoError(t, err)
	require.Equal(t, uint8(1), proof.InputIndex)

	spend, err := tl.ChildChain.Transaction(spendID)
	require.NoError(t, err)
	require.Equal(t, spend.Encode(), proof.Tx)
	require.Equal(t, spend.Signatures[1], proof.Signature)
	merkleProof, err := tl.GetMerkleProof(spendID)
	require.NoError(t, err)
	require.Equal(t, merkleProof, proof.Proof)
}

func TestDepositExit(t *testing.T) {
	tl := newTestLang(t)
	ctx := context.Background()
	owner := tl.Accounts[2]
	depositID := tl.mustDeposit(t, owner, 100)

	err := tl.StartDepositExit(ctx, owner, depositID, transaction.NullAddress, big.NewInt(99))
	require.ErrorIs(t, err, rootchain.ErrRejected)
	require.NoError(t, tl.StartDepositExit(ctx, owner, depositID, transaction.NullAddress, big.NewInt(100)))
	tl.requireExit(t, depositID, rootchain.StandardExit{Owner: owner.Address, Amount: big.NewInt(100)})

	require.NoError(t, tl.ForwardTimestamp(ctx, rootchain.Week+1))
	require.NoError(t, tl.FinalizeExits(ctx, transaction.NullAddress, new(big.Int).SetUint64(depositID), 1))
	tl.requireExit(t, depositID, challengedExit(100))
}

func TestFeeExit(t *testing.T) {
	tl := newTestLang(t)
	ctx := context.Background()

	_, err := tl.StartFeeExit(ctx, tl.Accounts[1], transaction.NullAddress, big.NewInt(10))
	require.ErrorIs(t, err, rootchain.ErrRejected)

	id, err := tl.StartFeeExit(ctx, tl.Operator, transaction.NullAddress, big.NewInt(10))
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
	tl.requireExit(t, id, rootchain.StandardExit{Owner: tl.Operator.Address, Amount: big.NewInt(10)})

	next, err := tl.StartFeeExit(ctx, tl.Operator, transaction.NullAddress, big.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, id+1, next)
}

func TestFinalizeExitsWrongTop(t *testing.T) {
	tl := newTestLang(t)
	ctx := context.Background()
	owner := tl.Accounts[0]
	depositID := tl.mustDeposit(t, owner, 100)
	require.NoError(t, tl.StartStandardExit(ctx, depositID, owner))
	require.NoError(t, tl.ForwardTimestamp(ctx, rootchain.Week+1))

	err := tl.FinalizeExits(ctx, transaction.NullAddress, big.NewInt(1), 1)
	require.ErrorIs(t, err, rootchain.ErrRejected)
	tl.requireExit(t, depositID, rootchain.StandardExit{Owner: owner.Address, Amount: big.NewInt(100)})
}
