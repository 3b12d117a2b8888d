// Package scenarios is a library of named exit protocol walkthroughs the CLI can run
// against any root chain backend.
package scenarios

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/plasma/plasma-core/devkeys"
	"github.com/mantlenetworkio/plasma/plasma-core/transaction"
	"github.com/mantlenetworkio/plasma/plasma-core/utxo"
	"github.com/mantlenetworkio/plasma/plasma-rootchain/rootchain"
	"github.com/mantlenetworkio/plasma/plasma-service/bigs"
	"github.com/mantlenetworkio/plasma/plasma-testlang/testlang"
)

var ErrUnexpected = errors.New("unexpected outcome")

type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, tl *testlang.TestingLanguage) error
}

var registry = []Scenario{
	{
		Name:        "deposit-spend",
		Description: "deposit ETH, spend it to another account and check the committed root",
		Run:         depositSpend,
	},
	{
		Name:        "standard-exit-challenge",
		Description: "challenge a standard exit with a later spend, owner and token are cleared",
		Run:         standardExitChallenge,
	},
	{
		Name:        "standard-exit-finalize",
		Description: "process a matured standard exit and refuse to restart it",
		Run:         standardExitFinalize,
	},
	{
		Name:        "in-flight-exit-inputs",
		Description: "exit a four input transaction in flight and read back its inputs",
		Run:         inFlightExitInputs,
	},
	{
		Name:        "non-canonical-race",
		Description: "an older competitor evicts the bond owner, an equal or younger one is refused",
		Run:         nonCanonicalRace,
	},
	{
		Name:        "respond-to-challenge",
		Description: "answer a canonicity challenge with the inclusion of the in-flight transaction",
		Run:         respondToChallenge,
	},
	{
		Name:        "output-spent",
		Description: "remove a piggybacked output that was spent after inclusion",
		Run:         outputSpent,
	},
	{
		Name:        "token-exit",
		Description: "deposit a token, exit it and receive it back",
		Run:         tokenExit,
	},
}

// All returns the scenarios sorted by name.
func All() []Scenario {
	out := append([]Scenario(nil), registry...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func Lookup(name string) (Scenario, bool) {
	for _, s := range registry {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

func unexpected(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnexpected, fmt.Sprintf(format, args...))
}

func expectRejected(what string, err error) error {
	if err == nil {
		return unexpected("%s succeeded", what)
	}
	if !errors.Is(err, rootchain.ErrRejected) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func eth(owner devkeys.Account, amount int64) transaction.Output {
	return transaction.NewOutput(owner.Address, transaction.NullAddress, big.NewInt(amount))
}

func keys(accounts ...devkeys.Account) []*ecdsa.PrivateKey {
	out := make([]*ecdsa.PrivateKey, len(accounts))
	for i, a := range accounts {
		out[i] = a.Key
	}
	return out
}

func depositSpend(ctx context.Context, tl *testlang.TestingLanguage) error {
	owner, receiver := tl.Accounts[0], tl.Accounts[1]
	depositID, err := tl.Deposit(ctx, owner, big.NewInt(100))
	if err != nil {
		return err
	}
	spendID, err := tl.SpendUtxo(ctx, []uint64{depositID}, keys(owner), []transaction.Output{eth(receiver, 100)})
	if err != nil {
		return err
	}
	blk, err := tl.ChildChain.Block(utxo.Decode(spendID).BlockNumber)
	if err != nil {
		return err
	}
	onChain, err := tl.GetPlasmaBlock(ctx, blk.Number)
	if err != nil {
		return err
	}
	if onChain.Root != blk.Root() {
		return unexpected("root chain holds %s, mirror %s", onChain.Root, blk.Root())
	}
	return nil
}

func standardExitChallenge(ctx context.Context, tl *testlang.TestingLanguage) error {
	owner := tl.Accounts[0]
	depositID, err := tl.Deposit(ctx, owner, big.NewInt(100))
	if err != nil {
		return err
	}
	spendID, err := tl.SpendUtxo(ctx, []uint64{depositID}, keys(owner), []transaction.Output{eth(owner, 100)})
	if err != nil {
		return err
	}
	if err := tl.StartStandardExit(ctx, spendID, owner); err != nil {
		return err
	}
	doubleSpendID, err := tl.SpendUtxo(ctx, []uint64{spendID}, keys(owner), []transaction.Output{eth(owner, 100)})
	if err != nil {
		return err
	}
	if err := tl.ChallengeStandardExit(ctx, spendID, doubleSpendID); err != nil {
		return err
	}
	exit, err := tl.GetStandardExit(ctx, spendID)
	if err != nil {
		return err
	}
	if exit.Owner != (common.Address{}) || exit.Token != (common.Address{}) || !bigs.Equal(exit.Amount, big.NewInt(100)) {
		return unexpected("challenged exit is %+v", exit)
	}
	return expectRejected("second challenge", tl.ChallengeStandardExit(ctx, spendID, doubleSpendID))
}

func standardExitFinalize(ctx context.Context, tl *testlang.TestingLanguage) error {
	owner := tl.Accounts[1]
	depositID, err := tl.Deposit(ctx, owner, big.NewInt(100))
	if err != nil {
		return err
	}
	spendID, err := tl.SpendUtxo(ctx, []uint64{depositID}, keys(owner), []transaction.Output{eth(owner, 100)})
	if err != nil {
		return err
	}
	if err := tl.StartStandardExit(ctx, spendID, owner); err != nil {
		return err
	}
	mep, err := tl.RootChain.MinExitPeriod(ctx)
	if err != nil {
		return err
	}
	if err := tl.ForwardTimestamp(ctx, 2*mep+1); err != nil {
		return err
	}
	if err := tl.ProcessExits(ctx); err != nil {
		return err
	}
	exit, err := tl.GetStandardExit(ctx, spendID)
	if err != nil {
		return err
	}
	if exit.Owner != (common.Address{}) {
		return unexpected("exit %d still owned by %s", spendID, exit.Owner)
	}
	return expectRejected("restart", tl.StartStandardExit(ctx, spendID, owner))
}

func inFlightExitInputs(ctx context.Context, tl *testlang.TestingLanguage) error {
	owners := tl.Accounts[:transaction.NumTxos]
	ids := make([]uint64, len(owners))
	for i, owner := range owners {
		id, err := tl.Deposit(ctx, owner, big.NewInt(100))
		if err != nil {
			return err
		}
		ids[i] = id
	}
	spendID, err := tl.SpendUtxo(ctx, ids, keys(owners...), nil)
	if err != nil {
		return err
	}
	if err := tl.StartInFlightExit(ctx, spendID); err != nil {
		return err
	}
	e, err := tl.GetInFlightExit(ctx, spendID)
	if err != nil {
		return err
	}
	for i, owner := range owners {
		in, err := e.Input(ctx, i)
		if err != nil {
			return err
		}
		if in.Owner != owner.Address || !bigs.Equal(in.Amount, big.NewInt(100)) {
			return unexpected("input %d is %+v", i, in)
		}
	}
	for i := 0; i < transaction.NumTxos; i++ {
		out, err := e.Output(ctx, i)
		if err != nil {
			return err
		}
		if !out.IsNull() {
			return unexpected("output %d is %+v", i, out)
		}
	}
	return nil
}

// doubleSpend spends a fresh deposit in a child block and then again, with the given
// amounts, in forced blocks the mirror does not validate.
func doubleSpend(ctx context.Context, tl *testlang.TestingLanguage, amounts ...int64) (uint64, []uint64, error) {
	owner := tl.Accounts[0]
	depositID, err := tl.Deposit(ctx, owner, big.NewInt(100))
	if err != nil {
		return 0, nil, err
	}
	spendID, err := tl.SpendUtxo(ctx, []uint64{depositID}, keys(owner), nil)
	if err != nil {
		return 0, nil, err
	}
	var doubles []uint64
	for _, amount := range amounts {
		id, err := tl.SpendUtxo(ctx, []uint64{depositID}, keys(owner), []transaction.Output{eth(owner, amount)}, testlang.ForceInvalid())
		if err != nil {
			return 0, nil, err
		}
		doubles = append(doubles, id)
	}
	return spendID, doubles, nil
}

func nonCanonicalRace(ctx context.Context, tl *testlang.TestingLanguage) error {
	spendID, doubles, err := doubleSpend(ctx, tl, 100, 50)
	if err != nil {
		return err
	}
	second, third := tl.Accounts[1], tl.Accounts[2]
	if err := tl.StartInFlightExit(ctx, spendID); err != nil {
		return err
	}
	if err := tl.ChallengeInFlightExitNotCanonical(ctx, spendID, doubles[1], second); err != nil {
		return err
	}
	if err := tl.ChallengeInFlightExitNotCanonical(ctx, spendID, doubles[0], third); err != nil {
		return err
	}
	e, err := tl.GetInFlightExit(ctx, spendID)
	if err != nil {
		return err
	}
	if e.BondOwner != third.Address || e.OldestCompetitor != doubles[0] || !e.ChallengeFlagSet() {
		return unexpected("bond owner %s, oldest competitor %d", e.BondOwner, e.OldestCompetitor)
	}
	if err := expectRejected("equal competitor", tl.ChallengeInFlightExitNotCanonical(ctx, spendID, doubles[0], second)); err != nil {
		return err
	}
	return expectRejected("younger competitor", tl.ChallengeInFlightExitNotCanonical(ctx, spendID, doubles[1], second))
}

func respondToChallenge(ctx context.Context, tl *testlang.TestingLanguage) error {
	spendID, doubles, err := doubleSpend(ctx, tl, 100)
	if err != nil {
		return err
	}
	challenger, responder := tl.Accounts[1], tl.Accounts[2]
	if err := tl.StartInFlightExit(ctx, spendID); err != nil {
		return err
	}
	if err := tl.ChallengeInFlightExitNotCanonical(ctx, spendID, doubles[0], challenger); err != nil {
		return err
	}
	if err := tl.RespondToNonCanonicalChallenge(ctx, spendID, responder); err != nil {
		return err
	}
	e, err := tl.GetInFlightExit(ctx, spendID)
	if err != nil {
		return err
	}
	if e.ChallengeFlagSet() || e.BondOwner != responder.Address || e.OldestCompetitor != spendID {
		return unexpected("challenge flag %v, bond owner %s", e.ChallengeFlagSet(), e.BondOwner)
	}
	return nil
}

func outputSpent(ctx context.Context, tl *testlang.TestingLanguage) error {
	u, err := tl.CreateUtxo(ctx, nil)
	if err != nil {
		return err
	}
	if err := tl.StartInFlightExit(ctx, u.SpendID); err != nil {
		return err
	}
	if err := tl.PiggybackInFlightExitOutput(ctx, u.SpendID, 0, u.Owner); err != nil {
		return err
	}
	laterID, err := tl.SpendUtxo(ctx, []uint64{u.SpendID}, keys(u.Owner), []transaction.Output{eth(tl.Accounts[1], 100)})
	if err != nil {
		return err
	}
	if err := tl.ChallengeInFlightExitOutputSpent(ctx, u.SpendID, laterID, 0, tl.Accounts[2]); err != nil {
		return err
	}
	e, err := tl.GetInFlightExit(ctx, u.SpendID)
	if err != nil {
		return err
	}
	if e.OutputPiggybacked(0) {
		return unexpected("output 0 still piggybacked")
	}
	return nil
}

func tokenExit(ctx context.Context, tl *testlang.TestingLanguage) error {
	token, err := tl.NewToken(ctx)
	if err != nil {
		return err
	}
	owner := tl.Accounts[3]
	amount := big.NewInt(100)
	before, err := tl.GetBalance(ctx, owner.Address, token.Address())
	if err != nil {
		return err
	}
	depositID, err := tl.DepositToken(ctx, owner, token, amount)
	if err != nil {
		return err
	}
	if err := tl.StartDepositExit(ctx, owner, depositID, token.Address(), amount); err != nil {
		return err
	}
	mep, err := tl.RootChain.MinExitPeriod(ctx)
	if err != nil {
		return err
	}
	if err := tl.ForwardTimestamp(ctx, mep+1); err != nil {
		return err
	}
	if err := tl.FinalizeExits(ctx, token.Address(), nil, testlang.DefaultProcessCount); err != nil {
		return err
	}
	balance, err := tl.GetBalance(ctx, owner.Address, token.Address())
	if err != nil {
		return err
	}
	if want := bigs.Add(before, amount); !bigs.Equal(balance, want) {
		return unexpected("token balance %s after exit, want %s", balance, want)
	}
	return nil
}
