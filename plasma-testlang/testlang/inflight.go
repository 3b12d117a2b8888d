package testlang

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"

	"github.com/mantlenetworkio/plasma/plasma-core/devkeys"
	"github.com/mantlenetworkio/plasma/plasma-core/transaction"
	"github.com/mantlenetworkio/plasma/plasma-rootchain/rootchain"
)

// InFlightExitInfo is what the root chain needs to start an in-flight exit: the encoded
// transaction and, for each live input in order, its source transaction, inclusion proof
// and signature.
type InFlightExitInfo struct {
	Tx         []byte
	InputTxs   []byte
	Proofs     []byte
	Signatures []byte
}

func (tl *TestingLanguage) GetInFlightExitInfo(txID uint64) (*InFlightExitInfo, error) {
	tx, err := tl.ChildChain.Transaction(txID)
	if err != nil {
		return nil, err
	}
	info := &InFlightExitInfo{Tx: tx.Encode()}
	var inputTxs []*transaction.Transaction
	for _, i := range tx.LiveInputs() {
		id := tx.Inputs[i].ID()
		inputTx, err := tl.ChildChain.Transaction(id)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		proof, err := tl.GetMerkleProof(id)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		inputTxs = append(inputTxs, inputTx)
		info.Proofs = append(info.Proofs, proof...)
		info.Signatures = append(info.Signatures, tx.Signatures[i].Bytes()...)
	}
	info.InputTxs = transaction.EncodeList(inputTxs)
	return info, nil
}

// StartInFlightExit exits the transaction txID in flight. The first account posts the
// bond unless another sender is given.
func (tl *TestingLanguage) StartInFlightExit(ctx context.Context, txID uint64, opts ...ExitOption) error {
	o := applyExitOptions(tl.Accounts[0], opts)
	info, err := tl.GetInFlightExitInfo(txID)
	if err != nil {
		return err
	}
	bond, err := o.bondOr(ctx, tl.RootChain.InFlightExitBond)
	if err != nil {
		return err
	}
	err = tl.call(ctx, "startInFlightExit", *o.sender, bond, func(opts *bind.TransactOpts) error {
		return tl.RootChain.StartInFlightExit(opts, info.Tx, info.InputTxs, info.Proofs, info.Signatures)
	})
	if err != nil {
		return err
	}
	tl.m.RecordExitStarted(exitKindInFlight)
	tl.log.Info("Started in-flight exit", "tx", txID, "bondOwner", o.sender.Address)
	return nil
}

func (tl *TestingLanguage) piggyback(ctx context.Context, txID uint64, index uint8, owner devkeys.Account, kind string, opts []ExitOption) error {
	o := applyExitOptions(owner, opts)
	tx, err := tl.ChildChain.Transaction(txID)
	if err != nil {
		return err
	}
	bond, err := o.bondOr(ctx, tl.RootChain.PiggybackBond)
	if err != nil {
		return err
	}
	err = tl.call(ctx, "piggybackInFlightExit", *o.sender, bond, func(opts *bind.TransactOpts) error {
		return tl.RootChain.PiggybackInFlightExit(opts, tx.Encode(), index)
	})
	if err != nil {
		return err
	}
	tl.m.RecordExitStarted(kind)
	return nil
}

// PiggybackInFlightExitInput claims input inputIndex of the in-flight exit of txID.
func (tl *TestingLanguage) PiggybackInFlightExitInput(ctx context.Context, txID uint64, inputIndex uint8, owner devkeys.Account, opts ...ExitOption) error {
	return tl.piggyback(ctx, txID, inputIndex, owner, exitKindInput, opts)
}

// PiggybackInFlightExitOutput claims output outputIndex. Outputs occupy exit slots 4-7.
func (tl *TestingLanguage) PiggybackInFlightExitOutput(ctx context.Context, txID uint64, outputIndex uint8, owner devkeys.Account, opts ...ExitOption) error {
	return tl.piggyback(ctx, txID, outputIndex+transaction.NumTxos, owner, exitKindOutput, opts)
}

// FindSharedInput returns the first pair of slots at which a and b spend the same output.
// Both indices are zero when they share nothing.
func FindSharedInput(a, b *transaction.Transaction) (uint8, uint8) {
	for i, in := range a.Inputs {
		if in.IsNull() {
			continue
		}
		for j, other := range b.Inputs {
			if in == other {
				return uint8(i), uint8(j)
			}
		}
	}
	return 0, 0
}

// FindInputIndex returns the first slot of tx spending outputID, or zero.
func FindInputIndex(outputID uint64, tx *transaction.Transaction) uint8 {
	i, _ := tx.InputIndex(outputID)
	return uint8(i)
}

// ChallengeInFlightExitNotCanonical claims the in-flight transaction ifTxID lost to the
// included competitor competingTxID.
func (tl *TestingLanguage) ChallengeInFlightExitNotCanonical(ctx context.Context, ifTxID, competingTxID uint64, challenger devkeys.Account) error {
	ifTx, err := tl.ChildChain.Transaction(ifTxID)
	if err != nil {
		return err
	}
	competitor, err := tl.ChildChain.Transaction(competingTxID)
	if err != nil {
		return err
	}
	ifIndex, competitorIndex := FindSharedInput(ifTx, competitor)
	proof, err := tl.GetMerkleProof(competingTxID)
	if err != nil {
		return err
	}
	sig := competitor.Signatures[competitorIndex]
	err = tl.call(ctx, "challengeInFlightExitNotCanonical", challenger, nil, func(opts *bind.TransactOpts) error {
		return tl.RootChain.ChallengeInFlightExitNotCanonical(opts, ifTx.Encode(), ifIndex, competitor.Encode(), competitorIndex, competingTxID, proof, sig.Bytes())
	})
	if err != nil {
		return err
	}
	tl.m.RecordExitChallenged(exitKindInFlight)
	tl.log.Info("Challenged in-flight exit canonicity", "tx", ifTxID, "competitor", competingTxID, "challenger", challenger.Address)
	return nil
}

// RespondToNonCanonicalChallenge proves the in-flight transaction was included before
// its oldest competitor.
func (tl *TestingLanguage) RespondToNonCanonicalChallenge(ctx context.Context, ifTxID uint64, responder devkeys.Account) error {
	ifTx, err := tl.ChildChain.Transaction(ifTxID)
	if err != nil {
		return err
	}
	proof, err := tl.GetMerkleProof(ifTxID)
	if err != nil {
		return err
	}
	return tl.call(ctx, "respondToNonCanonicalChallenge", responder, nil, func(opts *bind.TransactOpts) error {
		return tl.RootChain.RespondToNonCanonicalChallenge(opts, ifTx.Encode(), ifTxID, proof)
	})
}

// ChallengeInFlightExitInputSpent proves a piggybacked input of ifTxID was spent by spendTxID.
func (tl *TestingLanguage) ChallengeInFlightExitInputSpent(ctx context.Context, ifTxID, spendTxID uint64, challenger devkeys.Account) error {
	ifTx, err := tl.ChildChain.Transaction(ifTxID)
	if err != nil {
		return err
	}
	spend, err := tl.ChildChain.Transaction(spendTxID)
	if err != nil {
		return err
	}
	ifIndex, spendIndex := FindSharedInput(ifTx, spend)
	sig := spend.Signatures[spendIndex]
	err = tl.call(ctx, "challengeInFlightExitInputSpent", challenger, nil, func(opts *bind.TransactOpts) error {
		return tl.RootChain.ChallengeInFlightExitInputSpent(opts, ifTx.Encode(), ifIndex, spend.Encode(), spendIndex, sig.Bytes())
	})
	if err != nil {
		return err
	}
	tl.m.RecordExitChallenged(exitKindInput)
	return nil
}

// ChallengeInFlightExitOutputSpent proves output outputIndex of the included in-flight
// transaction ifTxID was spent by spendingTxID.
func (tl *TestingLanguage) ChallengeInFlightExitOutputSpent(ctx context.Context, ifTxID, spendingTxID uint64, outputIndex uint8, challenger devkeys.Account) error {
	ifTx, err := tl.ChildChain.Transaction(ifTxID)
	if err != nil {
		return err
	}
	spending, err := tl.ChildChain.Transaction(spendingTxID)
	if err != nil {
		return err
	}
	outputID := ifTxID + uint64(outputIndex)
	spendingIndex := FindInputIndex(outputID, spending)
	proof, err := tl.GetMerkleProof(ifTxID)
	if err != nil {
		return err
	}
	sig := spending.Signatures[spendingIndex]
	err = tl.call(ctx, "challengeInFlightExitOutputSpent", challenger, nil, func(opts *bind.TransactOpts) error {
		return tl.RootChain.ChallengeInFlightExitOutputSpent(opts, ifTx.Encode(), outputID, proof, spending.Encode(), spendingIndex, sig.Bytes())
	})
	if err != nil {
		return err
	}
	tl.m.RecordExitChallenged(exitKindOutput)
	return nil
}

// InFlightExit is a snapshot of the root chain record of an in-flight exit. Input and
// output details are fetched on first access and kept for the life of the snapshot.
type InFlightExit struct {
	rootchain.InFlightExit
	Tx *transaction.Transaction

	rc    rootchain.RootChain
	slots map[int]transaction.Output
}

// GetInFlightExit reads the in-flight exit of txID from the root chain.
func (tl *TestingLanguage) GetInFlightExit(ctx context.Context, txID uint64) (*InFlightExit, error) {
	tx, err := tl.ChildChain.Transaction(txID)
	if err != nil {
		return nil, err
	}
	id, err := tl.RootChain.GetInFlightExitID(ctx, tx.Encode())
	if err != nil {
		return nil, err
	}
	record, err := tl.RootChain.InFlightExits(ctx, id)
	if err != nil {
		return nil, err
	}
	return &InFlightExit{
		InFlightExit: record,
		Tx:           tx,
		rc:           tl.RootChain,
		slots:        make(map[int]transaction.Output),
	}, nil
}

// Input returns exit slot index. Slots 0-3 are inputs, 4-7 outputs.
func (e *InFlightExit) Input(ctx context.Context, index int) (transaction.Output, error) {
	if out, ok := e.slots[index]; ok {
		return out, nil
	}
	if index < 0 || index >= 2*transaction.NumTxos {
		return transaction.Output{}, fmt.Errorf("%w: exit slot %d", transaction.ErrIndexOutOfRange, index)
	}
	out, err := e.rc.GetInFlightExitOutput(ctx, e.Tx.Encode(), uint8(index))
	if err != nil {
		return transaction.Output{}, err
	}
	e.slots[index] = out
	return out, nil
}

func (e *InFlightExit) Output(ctx context.Context, index int) (transaction.Output, error) {
	return e.Input(ctx, index+transaction.NumTxos)
}

func (e *InFlightExit) InputPiggybacked(index int) bool {
	return e.ExitMap != nil && e.ExitMap.Bit(index) == 1
}

func (e *InFlightExit) OutputPiggybacked(index int) bool {
	return e.InputPiggybacked(index + transaction.NumTxos)
}

// ChallengeFlagSet reports whether a canonicity challenge currently stands.
func (e *InFlightExit) ChallengeFlagSet() bool {
	return rootchain.FlagSet(e.ExitStartTimestamp)
}

// StartTimestamp is the exit start time without the challenge flag.
func (e *InFlightExit) StartTimestamp() uint64 {
	return rootchain.ClearFlag(e.ExitStartTimestamp)
}
