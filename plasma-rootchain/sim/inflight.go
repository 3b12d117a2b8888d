package sim

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/mantlenetworkio/plasma/plasma-core/merkle"
	"github.com/mantlenetworkio/plasma/plasma-core/signature"
	"github.com/mantlenetworkio/plasma/plasma-core/transaction"
	"github.com/mantlenetworkio/plasma/plasma-core/utxo"
	"github.com/mantlenetworkio/plasma/plasma-rootchain/rootchain"
)

const (
	numSlots     = 2 * transaction.NumTxos
	exitedOffset = numSlots
	proofLength  = merkle.DefaultDepth * common.HashLength
)

type inFlightExit struct {
	tx               *transaction.Transaction
	exitStart        uint64
	challenged       bool
	exitMap          uint64
	bondOwner        common.Address
	oldestCompetitor uint64
	youngestInput    uint64
	slots            [numSlots]transaction.Output
	queued           map[common.Address]bool
	bond             *big.Int
	piggybackBond    *big.Int
}

func (e *inFlightExit) piggybacked(i int) bool {
	return e.exitMap&(1<<i) != 0
}

func (e *inFlightExit) exited(i int) bool {
	return e.exitMap&(1<<(i+exitedOffset)) != 0
}

// settlement lists the payouts of finalizing the exit for token. Inputs pay out when a
// competitor was found, outputs otherwise. Piggyback bonds are refunded on both sides and
// the exit bond once the last queued token is processed.
func (e *inFlightExit) settlement(token common.Address, cfg Config) []transfer {
	var out []transfer
	for i := 0; i < numSlots; i++ {
		slot := e.slots[i]
		if slot.Token != token || !e.piggybacked(i) {
			continue
		}
		if (i < transaction.NumTxos) == e.challenged && slot.Amount.Sign() > 0 {
			out = append(out, transfer{token: token, to: slot.Owner, amount: new(big.Int).Set(slot.Amount)})
		}
		out = append(out, transfer{token: transaction.NullAddress, to: slot.Owner, amount: new(big.Int).Set(e.piggybackBond)})
	}
	if len(e.queued) == 1 && e.queued[token] {
		out = append(out, transfer{token: transaction.NullAddress, to: e.bondOwner, amount: new(big.Int).Set(e.bond)})
	}
	return out
}

func (e *inFlightExit) finalize(token common.Address) {
	for i := 0; i < numSlots; i++ {
		if e.slots[i].Token != token || !e.piggybacked(i) {
			continue
		}
		e.exitMap &^= 1 << i
		e.exitMap |= 1 << (i + exitedOffset)
	}
	delete(e.queued, token)
	if len(e.queued) == 0 {
		e.exitStart = 0
		e.challenged = false
	}
}

// inFlightExitID is the unique id of an in-flight exit of tx: the top 151 bits of its
// hash with bit 151 set, which keeps it apart from UTXO positions.
func inFlightExitID(tx []byte) *uint256.Int {
	id := new(uint256.Int).SetBytes(crypto.Keccak256(tx))
	id.Rsh(id, 105)
	return id.Or(id, new(uint256.Int).Lsh(uint256.NewInt(1), 151))
}

func (r *RootChain) GetInFlightExitID(_ context.Context, tx []byte) (*big.Int, error) {
	return inFlightExitID(tx).ToBig(), nil
}

func (r *RootChain) period(e *inFlightExit) uint64 {
	return (r.now()-e.exitStart)/(r.cfg.MinExitPeriod/2) + 1
}

func (r *RootChain) activeExit(tx []byte) (*inFlightExit, error) {
	e, ok := r.inFlightExits[*inFlightExitID(tx)]
	if !ok || e.exitStart == 0 {
		return nil, reject("no active in-flight exit")
	}
	return e, nil
}

func (r *RootChain) StartInFlightExit(opts *bind.TransactOpts, inFlightTx, inputTxs, inputTxsInclusionProofs, inFlightTxSigs []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := inFlightExitID(inFlightTx)
	prev, exists := r.inFlightExits[*id]
	if exists && prev.exitStart != 0 {
		return reject("in-flight exit already active")
	}
	tx, err := transaction.Decode(inFlightTx)
	if err != nil {
		return reject("malformed in-flight tx: %v", err)
	}
	inputs, err := transaction.DecodeList(inputTxs)
	if err != nil {
		return reject("malformed input txs: %v", err)
	}
	live := tx.LiveInputs()
	switch {
	case len(live) == 0:
		return reject("in-flight tx spends nothing")
	case len(inputs) != len(live):
		return reject("got %d input txs for %d inputs", len(inputs), len(live))
	case len(inputTxsInclusionProofs) != len(live)*proofLength:
		return reject("invalid proofs length %d", len(inputTxsInclusionProofs))
	case len(inFlightTxSigs) != len(live)*signature.Length:
		return reject("invalid signatures length %d", len(inFlightTxSigs))
	}

	var slots [numSlots]transaction.Output
	for i := range slots {
		slots[i] = transaction.Output{Amount: new(big.Int)}
	}
	inSums := make(map[common.Address]*big.Int)
	var youngest uint64
	for k, slot := range live {
		pos := tx.Inputs[slot]
		if pos.OutputIndex >= transaction.NumTxos {
			return reject("invalid output index of input %d", slot)
		}
		proof := inputTxsInclusionProofs[k*proofLength : (k+1)*proofLength]
		if err := r.checkInclusion(inputs[k].Encode(), pos.BlockNumber, pos.TxIndex, proof); err != nil {
			return err
		}
		out := inputs[k].Outputs[pos.OutputIndex]
		sig, _ := signature.FromBytes(inFlightTxSigs[k*signature.Length : (k+1)*signature.Length])
		if !sig.SignedBy(tx.Hash(), out.Owner) {
			return reject("input %d not signed by its owner", slot)
		}
		slots[slot] = transaction.NewOutput(out.Owner, out.Token, out.Amount)
		if inSums[out.Token] == nil {
			inSums[out.Token] = new(big.Int)
		}
		inSums[out.Token].Add(inSums[out.Token], out.Amount)
		youngest = max(youngest, pos.ID())
	}
	outSums := make(map[common.Address]*big.Int)
	for i, out := range tx.Outputs {
		slots[transaction.NumTxos+i] = transaction.NewOutput(out.Owner, out.Token, out.Amount)
		if outSums[out.Token] == nil {
			outSums[out.Token] = new(big.Int)
		}
		outSums[out.Token].Add(outSums[out.Token], out.Amount)
	}
	for token, sum := range outSums {
		if sum.Sign() == 0 {
			continue
		}
		if in := inSums[token]; in == nil || sum.Cmp(in) > 0 {
			return reject("outputs exceed inputs for token %s", token)
		}
	}
	if err := exactValue(opts, r.cfg.InFlightExitBond); err != nil {
		return err
	}
	if err := r.collect(opts); err != nil {
		return err
	}

	var exited uint64
	if exists {
		exited = prev.exitMap &^ (1<<exitedOffset - 1)
	}
	r.inFlightExits[*id] = &inFlightExit{
		tx:            tx,
		exitStart:     r.now(),
		exitMap:       exited,
		bondOwner:     opts.From,
		youngestInput: youngest,
		slots:         slots,
		queued:        make(map[common.Address]bool),
		bond:          new(big.Int).Set(r.cfg.InFlightExitBond),
		piggybackBond: new(big.Int).Set(r.cfg.PiggybackBond),
	}
	r.log.Debug("Started in-flight exit", "id", id, "inputs", len(live), "bondOwner", opts.From)
	return nil
}

func (r *RootChain) PiggybackInFlightExit(opts *bind.TransactOpts, inFlightTx []byte, outputIndex uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.activeExit(inFlightTx)
	if err != nil {
		return err
	}
	i := int(outputIndex)
	switch {
	case i >= numSlots:
		return reject("invalid piggyback index %d", i)
	case r.period(e) != 1:
		return reject("piggyback outside of first period")
	case e.piggybacked(i):
		return reject("slot %d already piggybacked", i)
	case e.exited(i):
		return reject("slot %d already exited", i)
	case e.slots[i].Owner != opts.From || opts.From == (common.Address{}):
		return reject("sender %s does not own slot %d", opts.From, i)
	}
	if err := exactValue(opts, r.cfg.PiggybackBond); err != nil {
		return err
	}
	if err := r.collect(opts); err != nil {
		return err
	}
	e.exitMap |= 1 << i
	token := e.slots[i].Token
	if !e.queued[token] {
		e.queued[token] = true
		exitableAt := r.exitableAt(utxo.Decode(e.youngestInput).BlockNumber)
		r.enqueue(token, exitableAt, e.youngestInput, inFlightExitID(inFlightTx), true)
	}
	r.log.Debug("Piggybacked in-flight exit", "slot", i, "owner", opts.From)
	return nil
}

func (r *RootChain) ChallengeInFlightExitNotCanonical(opts *bind.TransactOpts, inFlightTx []byte, inFlightTxInputIndex uint8, competingTx []byte, competingTxInputIndex uint8, competingTxID uint64, competingTxInclusionProof, competingTxSig []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := nonPayable(opts); err != nil {
		return err
	}
	e, err := r.activeExit(inFlightTx)
	if err != nil {
		return err
	}
	if r.period(e) != 1 {
		return reject("canonicity challenge outside of first period")
	}
	competitor, err := transaction.Decode(competingTx)
	if err != nil {
		return reject("malformed competing tx: %v", err)
	}
	if competitor.Hash() == e.tx.Hash() {
		return reject("competing tx is the in-flight tx")
	}
	if err := sharedInput(e.tx, inFlightTxInputIndex, competitor, competingTxInputIndex); err != nil {
		return err
	}
	pos := utxo.Decode(competingTxID)
	if err := r.checkInclusion(competingTx, pos.BlockNumber, pos.TxIndex, competingTxInclusionProof); err != nil {
		return err
	}
	sig, err := signature.FromBytes(competingTxSig)
	if err != nil || !sig.SignedBy(competitor.Hash(), e.slots[inFlightTxInputIndex].Owner) {
		return reject("competing tx not signed by input owner")
	}
	if e.oldestCompetitor != 0 && competingTxID >= e.oldestCompetitor {
		return reject("competitor %d is not older than %d", competingTxID, e.oldestCompetitor)
	}
	e.challenged = true
	e.oldestCompetitor = competingTxID
	e.bondOwner = opts.From
	r.log.Debug("Challenged in-flight exit canonicity", "competitor", competingTxID, "challenger", opts.From)
	return nil
}

func sharedInput(a *transaction.Transaction, ai uint8, b *transaction.Transaction, bi uint8) error {
	if int(ai) >= transaction.NumTxos || int(bi) >= transaction.NumTxos {
		return reject("input index out of range")
	}
	if a.Inputs[ai].IsNull() || a.Inputs[ai] != b.Inputs[bi] {
		return reject("transactions do not share input %d/%d", ai, bi)
	}
	return nil
}

func (r *RootChain) RespondToNonCanonicalChallenge(opts *bind.TransactOpts, inFlightTx []byte, inFlightTxPos uint64, inFlightTxInclusionProof []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := nonPayable(opts); err != nil {
		return err
	}
	e, err := r.activeExit(inFlightTx)
	if err != nil {
		return err
	}
	if e.oldestCompetitor == 0 || inFlightTxPos >= e.oldestCompetitor {
		return reject("in-flight tx %d is not older than competitor %d", inFlightTxPos, e.oldestCompetitor)
	}
	pos := utxo.Decode(inFlightTxPos)
	if err := r.checkInclusion(inFlightTx, pos.BlockNumber, pos.TxIndex, inFlightTxInclusionProof); err != nil {
		return err
	}
	e.challenged = false
	e.oldestCompetitor = inFlightTxPos
	e.bondOwner = opts.From
	r.log.Debug("Responded to canonicity challenge", "position", inFlightTxPos)
	return nil
}

func (r *RootChain) ChallengeInFlightExitInputSpent(opts *bind.TransactOpts, inFlightTx []byte, inFlightTxInputIndex uint8, spendingTx []byte, spendingTxInputIndex uint8, spendingTxSig []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := nonPayable(opts); err != nil {
		return err
	}
	e, err := r.activeExit(inFlightTx)
	if err != nil {
		return err
	}
	i := int(inFlightTxInputIndex)
	if i >= transaction.NumTxos || !e.piggybacked(i) {
		return reject("input %d not piggybacked", i)
	}
	spend, err := transaction.Decode(spendingTx)
	if err != nil {
		return reject("malformed spending tx: %v", err)
	}
	if spend.Hash() == e.tx.Hash() {
		return reject("spending tx is the in-flight tx")
	}
	if err := sharedInput(e.tx, inFlightTxInputIndex, spend, spendingTxInputIndex); err != nil {
		return err
	}
	sig, err := signature.FromBytes(spendingTxSig)
	if err != nil || !sig.SignedBy(spend.Hash(), e.slots[i].Owner) {
		return reject("spending tx not signed by input owner")
	}
	return r.removePiggyback(opts, e, i)
}

func (r *RootChain) ChallengeInFlightExitOutputSpent(opts *bind.TransactOpts, inFlightTx []byte, inFlightTxOutputID uint64, inFlightTxInclusionProof, spendingTx []byte, spendingTxInputIndex uint8, spendingTxSig []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := nonPayable(opts); err != nil {
		return err
	}
	e, err := r.activeExit(inFlightTx)
	if err != nil {
		return err
	}
	pos := utxo.Decode(inFlightTxOutputID)
	if pos.OutputIndex >= transaction.NumTxos {
		return reject("invalid output index %d", pos.OutputIndex)
	}
	i := transaction.NumTxos + int(pos.OutputIndex)
	if !e.piggybacked(i) {
		return reject("output %d not piggybacked", pos.OutputIndex)
	}
	if err := r.checkInclusion(inFlightTx, pos.BlockNumber, pos.TxIndex, inFlightTxInclusionProof); err != nil {
		return err
	}
	spend, err := transaction.Decode(spendingTx)
	if err != nil {
		return reject("malformed spending tx: %v", err)
	}
	if int(spendingTxInputIndex) >= transaction.NumTxos || spend.Inputs[spendingTxInputIndex].ID() != inFlightTxOutputID {
		return reject("spending tx input %d does not spend %d", spendingTxInputIndex, inFlightTxOutputID)
	}
	sig, err := signature.FromBytes(spendingTxSig)
	if err != nil || !sig.SignedBy(spend.Hash(), e.slots[i].Owner) {
		return reject("spending tx not signed by output owner")
	}
	return r.removePiggyback(opts, e, i)
}

// removePiggyback clears a slot proven spent and awards its bond to the challenger.
func (r *RootChain) removePiggyback(opts *bind.TransactOpts, e *inFlightExit, i int) error {
	if r.holdings(transaction.NullAddress).Cmp(e.piggybackBond) < 0 {
		return reject("insufficient contract balance")
	}
	e.exitMap &^= 1 << i
	r.payout(transaction.NullAddress, opts.From, e.piggybackBond)
	r.log.Debug("Removed piggyback", "slot", i, "challenger", opts.From)
	return nil
}

func (r *RootChain) InFlightExits(_ context.Context, id *big.Int) (rootchain.InFlightExit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := rootchain.InFlightExit{ExitStartTimestamp: new(big.Int), ExitMap: new(big.Int)}
	key, overflow := uint256.FromBig(id)
	if overflow {
		return out, nil
	}
	e, ok := r.inFlightExits[*key]
	if !ok {
		return out, nil
	}
	if e.challenged {
		out.ExitStartTimestamp = rootchain.SetFlag(e.exitStart)
	} else {
		out.ExitStartTimestamp.SetUint64(e.exitStart)
	}
	out.ExitMap.SetUint64(e.exitMap)
	out.BondOwner = e.bondOwner
	out.OldestCompetitor = e.oldestCompetitor
	return out, nil
}

func (r *RootChain) GetInFlightExitOutput(_ context.Context, tx []byte, outputIndex uint8) (transaction.Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.inFlightExits[*inFlightExitID(tx)]
	if !ok || int(outputIndex) >= numSlots {
		return transaction.Output{Amount: new(big.Int)}, nil
	}
	s := e.slots[outputIndex]
	return transaction.NewOutput(s.Owner, s.Token, s.Amount), nil
}
