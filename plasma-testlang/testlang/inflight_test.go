package testlang

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/mantlenetworkio/plasma/plasma-core/devkeys"
	"github.com/mantlenetworkio/plasma/plasma-core/transaction"
	"github.com/mantlenetworkio/plasma/plasma-core/utxo"
	"github.com/mantlenetworkio/plasma/plasma-rootchain/rootchain"
)

func (tl *TestingLanguage) mustGetInFlightExit(t *testing.T, txID uint64) *InFlightExit {
	e, err := tl.GetInFlightExit(context.Background(), txID)
	require.NoError(t, err)
	return e
}

// rawCall sends a root chain operation as from, bypassing the helpers that build its arguments.
func (tl *TestingLanguage) rawCall(t *testing.T, from devkeys.Account, value *big.Int, fn func(opts *bind.TransactOpts) error) error {
	opts, err := tl.transactOpts(context.Background(), from, value)
	require.NoError(t, err)
	return fn(opts)
}

func TestStartInFlightExit(t *testing.T) {
	for numInputs := 1; numInputs <= transaction.NumTxos; numInputs++ {
		t.Run(fmt.Sprintf("inputs-%d", numInputs), func(t *testing.T) {
			tl, m := newTestLangWithMetrics(t)
			ctx := context.Background()
			owners := tl.Accounts[:numInputs]
			depositIDs := make([]uint64, numInputs)
			for i, owner := range owners {
				depositIDs[i] = tl.mustDeposit(t, owner, 100)
			}
			spendID := tl.mustSpend(t, depositIDs, owners, nil)

			require.NoError(t, tl.StartInFlightExit(ctx, spendID))
			require.Equal(t, 1, m.started[exitKindInFlight])

			now, err := tl.Timestamp(ctx)
			require.NoError(t, err)
			e := tl.mustGetInFlightExit(t, spendID)
			require.Equal(t, now, e.StartTimestamp())
			require.False(t, e.ChallengeFlagSet())
			require.Zero(t, e.ExitMap.Sign())
			require.Equal(t, owners[0].Address, e.BondOwner)
			require.Zero(t, e.OldestCompetitor)

			for i := 0; i < transaction.NumTxos; i++ {
				in, err := e.Input(ctx, i)
				require.NoError(t, err)
				want := transaction.Output{Amount: new(big.Int)}
				if i < numInputs {
					want = eth(owners[i], 100)
				}
				require.Empty(t, cmp.Diff(want, in, bigComparer), "input %d", i)
			}
		})
	}
}

func TestInFlightExitProjectionCachesSlots(t *testing.T) {
	tl := newTestLang(t)
	ctx := context.Background()
	owner := tl.Accounts[0]
	depositID := tl.mustDeposit(t, owner, 100)
	spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, []transaction.Output{eth(owner, 70)})
	require.NoError(t, tl.StartInFlightExit(ctx, spendID))

	e := tl.mustGetInFlightExit(t, spendID)
	out, err := e.Output(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(eth(owner, 70), out, bigComparer))
	require.Contains(t, e.slots, transaction.NumTxos)

	_, err = e.Input(ctx, 2*transaction.NumTxos)
	require.ErrorIs(t, err, transaction.ErrIndexOutOfRange)

	other := tl.mustGetInFlightExit(t, spendID)
	require.Empty(t, other.slots)
}

func TestStartInFlightExitFailures(t *testing.T) {
	t.Run("invalid bond", func(t *testing.T) {
		tl := newTestLang(t)
		owner := tl.Accounts[0]
		depositID := tl.mustDeposit(t, owner, 100)
		spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, nil)
		err := tl.StartInFlightExit(context.Background(), spendID, WithBond(new(big.Int)))
		require.ErrorIs(t, err, rootchain.ErrRejected)
	})

	t.Run("invalid spend", func(t *testing.T) {
		tl := newTestLang(t)
		depositID := tl.mustDeposit(t, tl.Accounts[0], 100)
		spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{tl.Accounts[1]}, nil, ForceInvalid())
		err := tl.StartInFlightExit(context.Background(), spendID)
		require.ErrorIs(t, err, rootchain.ErrRejected)
	})

	t.Run("invalid proof", func(t *testing.T) {
		tl := newTestLang(t)
		ctx := context.Background()
		owner := tl.Accounts[0]
		depositID := tl.mustDeposit(t, owner, 100)
		spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, nil)
		info, err := tl.GetInFlightExitInfo(spendID)
		require.NoError(t, err)
		bond, err := tl.RootChain.InFlightExitBond(ctx)
		require.NoError(t, err)

		err = tl.rawCall(t, owner, bond, func(opts *bind.TransactOpts) error {
			return tl.RootChain.StartInFlightExit(opts, info.Tx, info.InputTxs, nil, info.Signatures)
		})
		require.ErrorIs(t, err, rootchain.ErrRejected)
	})

	t.Run("twice", func(t *testing.T) {
		tl := newTestLang(t)
		owner := tl.Accounts[0]
		depositID := tl.mustDeposit(t, owner, 100)
		spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, nil)
		require.NoError(t, tl.StartInFlightExit(context.Background(), spendID))
		require.ErrorIs(t, tl.StartInFlightExit(context.Background(), spendID), rootchain.ErrRejected)
	})

	t.Run("outputs exceed inputs", func(t *testing.T) {
		tl := newTestLang(t)
		owner := tl.Accounts[0]
		depositID := tl.mustDeposit(t, owner, 100)
		spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, []transaction.Output{eth(tl.Accounts[1], 200)}, ForceInvalid())
		require.ErrorIs(t, tl.StartInFlightExit(context.Background(), spendID), rootchain.ErrRejected)
	})
}

func TestRestartInFlightExitAfterProcessing(t *testing.T) {
	tl := newTestLang(t)
	ctx := context.Background()
	owner := tl.Accounts[0]
	depositID := tl.mustDeposit(t, owner, 100)
	spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, []transaction.Output{eth(owner, 50), eth(owner, 50)})

	require.NoError(t, tl.StartInFlightExit(ctx, spendID))
	require.NoError(t, tl.PiggybackInFlightExitInput(ctx, spendID, 0, owner))
	require.True(t, tl.mustGetInFlightExit(t, spendID).InputPiggybacked(0))
	require.NoError(t, tl.ForwardTimestamp(ctx, 2*rootchain.Week))
	require.NoError(t, tl.ProcessExits(ctx))

	require.NoError(t, tl.StartInFlightExit(ctx, spendID))
	now, err := tl.Timestamp(ctx)
	require.NoError(t, err)
	e := tl.mustGetInFlightExit(t, spendID)
	require.Equal(t, now, e.StartTimestamp())
	require.Equal(t, big.NewInt(1<<8), e.ExitMap)
	require.Equal(t, owner.Address, e.BondOwner)
	require.Zero(t, e.OldestCompetitor)
	require.False(t, e.InputPiggybacked(0))
}

func TestPiggybackInFlightExit(t *testing.T) {
	tl, m := newTestLangWithMetrics(t)
	ctx := context.Background()
	owner, receiver := tl.Accounts[0], tl.Accounts[1]
	depositID := tl.mustDeposit(t, owner, 100)
	spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, []transaction.Output{eth(receiver, 100)})
	require.NoError(t, tl.StartInFlightExit(ctx, spendID))

	require.ErrorIs(t, tl.PiggybackInFlightExitOutput(ctx, spendID, 0, owner), rootchain.ErrRejected)
	require.NoError(t, tl.PiggybackInFlightExitOutput(ctx, spendID, 0, receiver))
	require.ErrorIs(t, tl.PiggybackInFlightExitOutput(ctx, spendID, 0, receiver), rootchain.ErrRejected)

	e := tl.mustGetInFlightExit(t, spendID)
	require.True(t, e.OutputPiggybacked(0))
	require.False(t, e.InputPiggybacked(0))
	require.Equal(t, big.NewInt(1<<4), e.ExitMap)
	require.Equal(t, 1, m.started[exitKindOutput])

	require.NoError(t, tl.ForwardToPeriod(ctx, 2))
	require.ErrorIs(t, tl.PiggybackInFlightExitInput(ctx, spendID, 0, owner), rootchain.ErrRejected)
}

func TestFindSharedInput(t *testing.T) {
	a, err := transaction.NewFromIDs([]uint64{utxo.MustEncode(1, 0, 0), utxo.MustEncode(2, 0, 0)}, nil)
	require.NoError(t, err)
	b, err := transaction.NewFromIDs([]uint64{utxo.MustEncode(3, 0, 0), utxo.MustEncode(2, 0, 0), utxo.MustEncode(1, 0, 0)}, nil)
	require.NoError(t, err)
	c, err := transaction.NewFromIDs([]uint64{utxo.MustEncode(4, 0, 0)}, nil)
	require.NoError(t, err)

	ai, bi := FindSharedInput(a, b)
	require.Equal(t, uint8(0), ai)
	require.Equal(t, uint8(2), bi)

	ai, ci := FindSharedInput(a, c)
	require.Zero(t, ai)
	require.Zero(t, ci)

	require.Equal(t, uint8(1), FindInputIndex(utxo.MustEncode(2, 0, 0), b))
	require.Equal(t, uint8(0), FindInputIndex(utxo.MustEncode(9, 0, 0), b))
}

// doubleSpent deposits 100 to the first account, spends it in a child block and commits
// one forced double spend per entry of amounts.
func doubleSpent(t *testing.T, amounts ...int64) (*TestingLanguage, uint64, []uint64) {
	tl := newTestLang(t)
	owner := tl.Accounts[0]
	depositID := tl.mustDeposit(t, owner, 100)
	spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, nil)
	var doubles []uint64
	for _, amount := range amounts {
		doubles = append(doubles, tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, []transaction.Output{eth(owner, amount)}, ForceInvalid()))
	}
	return tl, spendID, doubles
}

func TestChallengeInFlightExitNotCanonical(t *testing.T) {
	tl, spendID, doubles := doubleSpent(t, 100)
	ctx := context.Background()
	challenger := tl.Accounts[1]
	require.NoError(t, tl.StartInFlightExit(ctx, spendID))

	require.NoError(t, tl.ChallengeInFlightExitNotCanonical(ctx, spendID, doubles[0], challenger))
	e := tl.mustGetInFlightExit(t, spendID)
	require.Equal(t, challenger.Address, e.BondOwner)
	require.Equal(t, doubles[0], e.OldestCompetitor)
	require.True(t, e.ChallengeFlagSet())

	t.Run("same competitor twice", func(t *testing.T) {
		err := tl.ChallengeInFlightExitNotCanonical(ctx, spendID, doubles[0], challenger)
		require.ErrorIs(t, err, rootchain.ErrRejected)
	})
}

func TestChallengeInFlightExitNotCanonicalWrongPeriod(t *testing.T) {
	tl, spendID, doubles := doubleSpent(t, 100)
	ctx := context.Background()
	require.NoError(t, tl.StartInFlightExit(ctx, spendID))
	require.NoError(t, tl.ForwardToPeriod(ctx, 2))

	err := tl.ChallengeInFlightExitNotCanonical(ctx, spendID, doubles[0], tl.Accounts[1])
	require.ErrorIs(t, err, rootchain.ErrRejected)
}

func TestChallengeInFlightExitNotCanonicalSameTx(t *testing.T) {
	tl := newTestLang(t)
	ctx := context.Background()
	owner := tl.Accounts[0]
	depositID := tl.mustDeposit(t, owner, 100)
	spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, nil)
	sameID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, nil, ForceInvalid())
	require.NoError(t, tl.StartInFlightExit(ctx, spendID))

	err := tl.ChallengeInFlightExitNotCanonical(ctx, spendID, sameID, tl.Accounts[1])
	require.ErrorIs(t, err, rootchain.ErrRejected)
}

func TestChallengeInFlightExitNotCanonicalMalformed(t *testing.T) {
	tests := []struct {
		name            string
		unrelated       bool
		competitorIndex uint8
		emptyProof      bool
	}{
		{name: "unrelated tx", unrelated: true},
		{name: "wrong index", competitorIndex: 1},
		{name: "invalid proof", emptyProof: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl, spendID, doubles := doubleSpent(t, 100)
			ctx := context.Background()
			owner := tl.Accounts[0]
			competingID := doubles[0]
			if tt.unrelated {
				otherDepositID := tl.mustDeposit(t, owner, 100)
				competingID = tl.mustSpend(t, []uint64{otherDepositID}, []devkeys.Account{owner}, nil)
			}
			require.NoError(t, tl.StartInFlightExit(ctx, spendID))

			spend, err := tl.ChildChain.Transaction(spendID)
			require.NoError(t, err)
			competitor, err := tl.ChildChain.Transaction(competingID)
			require.NoError(t, err)
			proof, err := tl.GetMerkleProof(competingID)
			require.NoError(t, err)
			if tt.emptyProof {
				proof = nil
			}
			err = tl.rawCall(t, tl.Accounts[1], nil, func(opts *bind.TransactOpts) error {
				return tl.RootChain.ChallengeInFlightExitNotCanonical(opts, spend.Encode(), 0, competitor.Encode(), tt.competitorIndex, competingID, proof, competitor.Signatures[0].Bytes())
			})
			require.ErrorIs(t, err, rootchain.ErrRejected)
		})
	}
}

func TestChallengeInFlightExitNotCanonicalInvalidSignature(t *testing.T) {
	tl := newTestLang(t)
	ctx := context.Background()
	owner, other := tl.Accounts[0], tl.Accounts[1]
	depositID := tl.mustDeposit(t, owner, 100)
	spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, nil)
	doubleID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{other}, []transaction.Output{eth(owner, 100)}, ForceInvalid())
	require.NoError(t, tl.StartInFlightExit(ctx, spendID))

	err := tl.ChallengeInFlightExitNotCanonical(ctx, spendID, doubleID, other)
	require.ErrorIs(t, err, rootchain.ErrRejected)
}

func TestChallengeInFlightExitNotCanonicalRace(t *testing.T) {
	t.Run("older competitor evicts", func(t *testing.T) {
		tl, spendID, doubles := doubleSpent(t, 100, 50)
		ctx := context.Background()
		second, third := tl.Accounts[1], tl.Accounts[2]
		require.NoError(t, tl.StartInFlightExit(ctx, spendID))

		require.NoError(t, tl.ChallengeInFlightExitNotCanonical(ctx, spendID, doubles[1], second))
		require.NoError(t, tl.ChallengeInFlightExitNotCanonical(ctx, spendID, doubles[0], third))

		e := tl.mustGetInFlightExit(t, spendID)
		require.Equal(t, third.Address, e.BondOwner)
		require.Equal(t, doubles[0], e.OldestCompetitor)
		require.True(t, e.ChallengeFlagSet())
	})

	t.Run("younger competitor is rejected", func(t *testing.T) {
		tl, spendID, doubles := doubleSpent(t, 100, 50)
		ctx := context.Background()
		second := tl.Accounts[1]
		require.NoError(t, tl.StartInFlightExit(ctx, spendID))

		require.NoError(t, tl.ChallengeInFlightExitNotCanonical(ctx, spendID, doubles[0], second))
		err := tl.ChallengeInFlightExitNotCanonical(ctx, spendID, doubles[1], second)
		require.ErrorIs(t, err, rootchain.ErrRejected)

		e := tl.mustGetInFlightExit(t, spendID)
		require.Equal(t, doubles[0], e.OldestCompetitor)
	})
}

func TestRespondToNonCanonicalChallenge(t *testing.T) {
	tl, spendID, doubles := doubleSpent(t, 100)
	ctx := context.Background()
	challenger, responder := tl.Accounts[1], tl.Accounts[2]
	require.NoError(t, tl.StartInFlightExit(ctx, spendID))

	require.ErrorIs(t, tl.RespondToNonCanonicalChallenge(ctx, spendID, responder), rootchain.ErrRejected)

	require.NoError(t, tl.ChallengeInFlightExitNotCanonical(ctx, spendID, doubles[0], challenger))
	require.NoError(t, tl.RespondToNonCanonicalChallenge(ctx, spendID, responder))

	e := tl.mustGetInFlightExit(t, spendID)
	require.False(t, e.ChallengeFlagSet())
	require.Equal(t, responder.Address, e.BondOwner)
	require.Equal(t, spendID, e.OldestCompetitor)
}

func TestChallengeInFlightExitInputSpent(t *testing.T) {
	tl, spendID, doubles := doubleSpent(t, 100)
	ctx := context.Background()
	owner, challenger := tl.Accounts[0], tl.Accounts[1]
	require.NoError(t, tl.StartInFlightExit(ctx, spendID))

	require.ErrorIs(t, tl.ChallengeInFlightExitInputSpent(ctx, spendID, doubles[0], challenger), rootchain.ErrRejected)
	require.NoError(t, tl.PiggybackInFlightExitInput(ctx, spendID, 0, owner))

	before := tl.balance(t, challenger.Address)
	require.NoError(t, tl.ChallengeInFlightExitInputSpent(ctx, spendID, doubles[0], challenger))
	require.False(t, tl.mustGetInFlightExit(t, spendID).InputPiggybacked(0))

	bond, err := tl.RootChain.PiggybackBond(ctx)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Add(before, bond), tl.balance(t, challenger.Address))
}

func TestChallengeInFlightExitOutputSpent(t *testing.T) {
	tl, m := newTestLangWithMetrics(t)
	ctx := context.Background()
	owner, receiver, challenger := tl.Accounts[0], tl.Accounts[1], tl.Accounts[2]
	depositID := tl.mustDeposit(t, owner, 100)
	spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, []transaction.Output{eth(owner, 100)})
	require.NoError(t, tl.StartInFlightExit(ctx, spendID))
	require.NoError(t, tl.PiggybackInFlightExitOutput(ctx, spendID, 0, owner))

	laterID := tl.mustSpend(t, []uint64{spendID}, []devkeys.Account{owner}, []transaction.Output{eth(receiver, 100)})
	require.NoError(t, tl.ChallengeInFlightExitOutputSpent(ctx, spendID, laterID, 0, challenger))

	e := tl.mustGetInFlightExit(t, spendID)
	require.False(t, e.OutputPiggybacked(0))
	require.Equal(t, 1, m.challenged[exitKindOutput])

	require.ErrorIs(t, tl.ChallengeInFlightExitOutputSpent(ctx, spendID, laterID, 0, challenger), rootchain.ErrRejected)
}

func TestInFlightExitFinalization(t *testing.T) {
	tl := newTestLang(t)
	ctx := context.Background()
	owner, receiver := tl.Accounts[0], tl.Accounts[1]
	depositID := tl.mustDeposit(t, owner, 100)
	spendID := tl.mustSpend(t, []uint64{depositID}, []devkeys.Account{owner}, []transaction.Output{eth(receiver, 100)})
	require.NoError(t, tl.StartInFlightExit(ctx, spendID))
	require.NoError(t, tl.PiggybackInFlightExitOutput(ctx, spendID, 0, receiver))

	bond, err := tl.RootChain.PiggybackBond(ctx)
	require.NoError(t, err)
	before := tl.balance(t, receiver.Address)
	require.NoError(t, tl.ForwardTimestamp(ctx, rootchain.Week+1))
	require.NoError(t, tl.ProcessExits(ctx))

	want := new(big.Int).Add(before, bond)
	require.Equal(t, want.Add(want, big.NewInt(100)), tl.balance(t, receiver.Address))
	e := tl.mustGetInFlightExit(t, spendID)
	require.Zero(t, e.StartTimestamp())
	require.Equal(t, big.NewInt(1<<12), e.ExitMap)
}
