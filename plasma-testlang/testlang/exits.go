package testlang

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/plasma/plasma-core/devkeys"
	"github.com/mantlenetworkio/plasma/plasma-core/signature"
	"github.com/mantlenetworkio/plasma/plasma-core/transaction"
	"github.com/mantlenetworkio/plasma/plasma-rootchain/rootchain"
)

const (
	exitKindStandard = "standard"
	exitKindDeposit  = "deposit"
	exitKindFee      = "fee"
	exitKindInFlight = "in_flight"
	exitKindInput    = "in_flight_input"
	exitKindOutput   = "in_flight_output"
)

type exitOptions struct {
	bond   *big.Int
	sender *devkeys.Account
}

type ExitOption func(*exitOptions)

// WithBond overrides the bond sent along, which defaults to the one the root chain asks for.
func WithBond(bond *big.Int) ExitOption {
	return func(o *exitOptions) {
		o.bond = new(big.Int).Set(bond)
	}
}

// WithSender sends the operation from sender instead of its default account.
func WithSender(sender devkeys.Account) ExitOption {
	return func(o *exitOptions) {
		o.sender = &sender
	}
}

func applyExitOptions(sender devkeys.Account, opts []ExitOption) exitOptions {
	o := exitOptions{sender: &sender}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// bondOr returns the configured bond, or fetches the default with get.
func (o exitOptions) bondOr(ctx context.Context, get func(context.Context) (*big.Int, error)) (*big.Int, error) {
	if o.bond != nil {
		return o.bond, nil
	}
	return get(ctx)
}

// StartStandardExit exits the output outputID owned by owner, proving its transaction
// against the mirrored block.
func (tl *TestingLanguage) StartStandardExit(ctx context.Context, outputID uint64, owner devkeys.Account, opts ...ExitOption) error {
	o := applyExitOptions(owner, opts)
	tx, err := tl.ChildChain.Transaction(outputID)
	if err != nil {
		return err
	}
	proof, err := tl.GetMerkleProof(outputID)
	if err != nil {
		return err
	}
	bond, err := o.bondOr(ctx, tl.RootChain.StandardExitBond)
	if err != nil {
		return err
	}
	err = tl.call(ctx, "startStandardExit", *o.sender, bond, func(opts *bind.TransactOpts) error {
		return tl.RootChain.StartStandardExit(opts, outputID, tx.Encode(), proof)
	})
	if err != nil {
		return err
	}
	tl.m.RecordExitStarted(exitKindStandard)
	tl.log.Info("Started standard exit", "output", outputID, "owner", o.sender.Address)
	return nil
}

// StartDepositExit exits a deposit without an inclusion proof.
func (tl *TestingLanguage) StartDepositExit(ctx context.Context, owner devkeys.Account, depositID uint64, token common.Address, amount *big.Int, opts ...ExitOption) error {
	o := applyExitOptions(owner, opts)
	bond, err := o.bondOr(ctx, tl.RootChain.StandardExitBond)
	if err != nil {
		return err
	}
	err = tl.call(ctx, "startDepositExit", *o.sender, bond, func(opts *bind.TransactOpts) error {
		return tl.RootChain.StartDepositExit(opts, depositID, token, amount)
	})
	if err != nil {
		return err
	}
	tl.m.RecordExitStarted(exitKindDeposit)
	return nil
}

// StartFeeExit exits collected fees as operator and returns the id of the new exit.
func (tl *TestingLanguage) StartFeeExit(ctx context.Context, operator devkeys.Account, token common.Address, amount *big.Int, opts ...ExitOption) (uint64, error) {
	o := applyExitOptions(operator, opts)
	id, err := tl.RootChain.CurrentFeeExit(ctx)
	if err != nil {
		return 0, err
	}
	bond, err := o.bondOr(ctx, tl.RootChain.StandardExitBond)
	if err != nil {
		return 0, err
	}
	err = tl.call(ctx, "startFeeExit", *o.sender, bond, func(opts *bind.TransactOpts) error {
		return tl.RootChain.StartFeeExit(opts, token, amount)
	})
	if err != nil {
		return 0, err
	}
	tl.m.RecordExitStarted(exitKindFee)
	return id, nil
}

// ChallengeStandardExit proves the exit of outputID invalid with the transaction spendID
// that spends it. The first signed input slot spending the output is used.
func (tl *TestingLanguage) ChallengeStandardExit(ctx context.Context, outputID, spendID uint64, opts ...ExitOption) error {
	o := applyExitOptions(tl.Accounts[0], opts)
	spend, err := tl.ChildChain.Transaction(spendID)
	if err != nil {
		return err
	}
	var index int
	for index = 0; index < transaction.NumTxos-1; index++ {
		in := spend.Inputs[index]
		if !in.IsNull() && in.ID() == outputID && !spend.Signatures[index].IsNull() {
			break
		}
	}
	sig := spend.Signatures[index]
	err = tl.call(ctx, "challengeStandardExit", *o.sender, nil, func(opts *bind.TransactOpts) error {
		return tl.RootChain.ChallengeStandardExit(opts, outputID, spend.Encode(), uint8(index), sig.Bytes())
	})
	if err != nil {
		return err
	}
	tl.m.RecordExitChallenged(exitKindStandard)
	tl.log.Info("Challenged standard exit", "output", outputID, "spend", spendID, "input", index)
	return nil
}

// ChallengeProof is the evidence that a transaction spends a given output.
type ChallengeProof struct {
	InputIndex uint8
	Tx         []byte
	Proof      []byte
	Signature  signature.Signature
}

// GetChallengeProof collects the evidence that spendID spends utxoID.
func (tl *TestingLanguage) GetChallengeProof(utxoID, spendID uint64) (*ChallengeProof, error) {
	spend, err := tl.ChildChain.Transaction(spendID)
	if err != nil {
		return nil, err
	}
	proof, err := tl.GetMerkleProof(spendID)
	if err != nil {
		return nil, err
	}
	index := FindInputIndex(utxoID, spend)
	return &ChallengeProof{
		InputIndex: index,
		Tx:         spend.Encode(),
		Proof:      proof,
		Signature:  spend.Signatures[index],
	}, nil
}

func (tl *TestingLanguage) GetStandardExit(ctx context.Context, exitID uint64) (rootchain.StandardExit, error) {
	return tl.RootChain.Exits(ctx, exitID)
}

// FinalizeExits processes up to count matured exits of token. A non-zero topExitID must
// name the exit at the head of the queue.
func (tl *TestingLanguage) FinalizeExits(ctx context.Context, token common.Address, topExitID *big.Int, count uint64, opts ...ExitOption) error {
	o := applyExitOptions(tl.Accounts[0], opts)
	err := tl.call(ctx, "processExits", *o.sender, nil, func(opts *bind.TransactOpts) error {
		return tl.RootChain.ProcessExits(opts, token, topExitID, count)
	})
	if err != nil {
		return err
	}
	tl.log.Info("Processed exits", "token", token, "count", count)
	return nil
}

// ProcessExits finalizes the matured ETH exits.
func (tl *TestingLanguage) ProcessExits(ctx context.Context) error {
	if err := tl.FinalizeExits(ctx, transaction.NullAddress, nil, DefaultProcessCount); err != nil {
		return fmt.Errorf("failed to process exits: %w", err)
	}
	return nil
}
