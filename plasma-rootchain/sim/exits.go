package sim

import (
	"container/heap"
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mantlenetworkio/plasma/plasma-core/block"
	"github.com/mantlenetworkio/plasma/plasma-core/merkle"
	"github.com/mantlenetworkio/plasma/plasma-core/signature"
	"github.com/mantlenetworkio/plasma/plasma-core/transaction"
	"github.com/mantlenetworkio/plasma/plasma-core/utxo"
	"github.com/mantlenetworkio/plasma/plasma-rootchain/rootchain"
)

func (r *RootChain) StartStandardExit(opts *bind.TransactOpts, outputID uint64, outputTx []byte, proof []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos := utxo.Decode(outputID)
	if pos.OutputIndex >= transaction.NumTxos {
		return reject("invalid output index %d", pos.OutputIndex)
	}
	tx, err := transaction.Decode(outputTx)
	if err != nil {
		return reject("malformed output tx: %v", err)
	}
	out := tx.Outputs[pos.OutputIndex]
	if out.Owner != opts.From {
		return reject("sender %s does not own output %s", opts.From, pos)
	}
	if out.Amount.Sign() <= 0 {
		return reject("output %s has no value", pos)
	}
	if e, ok := r.exits[outputID]; ok && e.amount.Sign() != 0 {
		return reject("exit %d already started", outputID)
	}
	if err := r.checkInclusion(outputTx, pos.BlockNumber, pos.TxIndex, proof); err != nil {
		return err
	}
	if err := exactValue(opts, r.cfg.StandardExitBond); err != nil {
		return err
	}
	if err := r.collect(opts); err != nil {
		return err
	}
	r.startExit(outputID, pos.BlockNumber, out)
	return nil
}

func (r *RootChain) startExit(id, blknum uint64, out transaction.Output) {
	r.exits[id] = &standardExit{owner: out.Owner, token: out.Token, amount: new(big.Int).Set(out.Amount)}
	r.enqueue(out.Token, r.exitableAt(blknum), id, uint256.NewInt(id), false)
	r.log.Debug("Started standard exit", "id", id, "owner", out.Owner, "amount", out.Amount)
}

func (r *RootChain) StartDepositExit(opts *bind.TransactOpts, depositID uint64, token common.Address, amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos := utxo.Decode(depositID)
	if !block.IsDepositNumber(pos.BlockNumber) || pos.TxIndex != 0 || pos.OutputIndex != 0 {
		return reject("%s is not a deposit output", pos)
	}
	b, ok := r.blocks[pos.BlockNumber]
	if !ok {
		return reject("unknown deposit block %d", pos.BlockNumber)
	}
	deposit, err := transaction.New(nil, []transaction.Output{transaction.NewOutput(opts.From, token, amount)})
	if err != nil {
		return reject("invalid deposit: %v", err)
	}
	depositTx := deposit.Encode()
	if merkle.SingleLeafRoot(merkle.DefaultDepth, depositTx) != b.Root {
		return reject("deposit %d does not match owner, token and amount", depositID)
	}
	if e, ok := r.exits[depositID]; ok && e.amount.Sign() != 0 {
		return reject("exit %d already started", depositID)
	}
	if err := exactValue(opts, r.cfg.StandardExitBond); err != nil {
		return err
	}
	if err := r.collect(opts); err != nil {
		return err
	}
	r.startExit(depositID, pos.BlockNumber, transaction.NewOutput(opts.From, token, amount))
	return nil
}

func (r *RootChain) StartFeeExit(opts *bind.TransactOpts, token common.Address, amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if opts.From != r.cfg.Operator {
		return reject("sender %s is not the operator", opts.From)
	}
	if amount.Sign() <= 0 {
		return reject("fee exit must have value")
	}
	if err := exactValue(opts, r.cfg.StandardExitBond); err != nil {
		return err
	}
	if err := r.collect(opts); err != nil {
		return err
	}
	id := r.currentFeeExit
	r.currentFeeExit++
	r.exits[id] = &standardExit{owner: opts.From, token: token, amount: new(big.Int).Set(amount)}
	r.enqueue(token, r.now()+r.cfg.MinExitPeriod, id, uint256.NewInt(id), false)
	r.log.Debug("Started fee exit", "id", id, "amount", amount)
	return nil
}

func (r *RootChain) CurrentFeeExit(context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentFeeExit, nil
}

func (r *RootChain) ChallengeStandardExit(opts *bind.TransactOpts, outputID uint64, challengeTx []byte, inputIndex uint8, sig []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := nonPayable(opts); err != nil {
		return err
	}
	e, ok := r.exits[outputID]
	if !ok || e.owner == (common.Address{}) {
		return reject("no active exit %d", outputID)
	}
	tx, err := transaction.Decode(challengeTx)
	if err != nil {
		return reject("malformed challenge tx: %v", err)
	}
	if int(inputIndex) >= transaction.NumTxos || tx.Inputs[inputIndex].IsNull() || tx.Inputs[inputIndex].ID() != outputID {
		return reject("challenge tx input %d does not spend %d", inputIndex, outputID)
	}
	s, err := signature.FromBytes(sig)
	if err != nil || !s.SignedBy(tx.Hash(), e.owner) {
		return reject("challenge tx not signed by exit owner")
	}
	if r.holdings(transaction.NullAddress).Cmp(r.cfg.StandardExitBond) < 0 {
		return reject("insufficient contract balance")
	}
	e.owner = common.Address{}
	e.token = common.Address{}
	r.payout(transaction.NullAddress, opts.From, r.cfg.StandardExitBond)
	r.log.Debug("Challenged standard exit", "id", outputID, "challenger", opts.From)
	return nil
}

func (r *RootChain) Exits(_ context.Context, id uint64) (rootchain.StandardExit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exits[id]
	if !ok {
		return rootchain.StandardExit{Amount: new(big.Int)}, nil
	}
	return rootchain.StandardExit{Owner: e.owner, Token: e.token, Amount: new(big.Int).Set(e.amount)}, nil
}

type transfer struct {
	token  common.Address
	to     common.Address
	amount *big.Int
}

func (r *RootChain) ProcessExits(opts *bind.TransactOpts, token common.Address, topExitID *big.Int, count uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := nonPayable(opts); err != nil {
		return err
	}
	q, ok := r.queues[token]
	if !ok || q.Len() == 0 {
		return reject("no exits queued for token %s", token)
	}
	if topExitID != nil && topExitID.Sign() != 0 {
		top, overflow := uint256.FromBig(topExitID)
		if overflow || !top.Eq(q.peek().exitID) {
			return reject("top exit %s is not at the head of the queue", topExitID)
		}
	}
	entries := q.matured(r.now(), count)

	var transfers []transfer
	for _, e := range entries {
		transfers = append(transfers, r.settlement(token, e)...)
	}
	due := make(map[common.Address]*big.Int)
	for _, t := range transfers {
		if due[t.token] == nil {
			due[t.token] = new(big.Int)
		}
		due[t.token].Add(due[t.token], t.amount)
	}
	for tok, amount := range due {
		if r.holdings(tok).Cmp(amount) < 0 {
			return reject("insufficient contract balance of %s", tok)
		}
	}

	for range entries {
		e := heap.Pop(q).(*queueEntry)
		r.finalize(token, e)
	}
	for _, t := range transfers {
		r.payout(t.token, t.to, t.amount)
	}
	r.log.Debug("Processed exits", "token", token, "count", len(entries))
	return nil
}

// settlement lists the payouts finalizing e would make, without changing state.
func (r *RootChain) settlement(token common.Address, e *queueEntry) []transfer {
	if e.inFlight {
		ife, ok := r.inFlightExits[*e.exitID]
		if !ok || ife.exitStart == 0 {
			return nil
		}
		return ife.settlement(token, r.cfg)
	}
	ex := r.exits[e.exitID.Uint64()]
	if ex == nil || ex.owner == (common.Address{}) {
		return nil
	}
	return []transfer{
		{token: ex.token, to: ex.owner, amount: new(big.Int).Set(ex.amount)},
		{token: transaction.NullAddress, to: ex.owner, amount: new(big.Int).Set(r.cfg.StandardExitBond)},
	}
}

func (r *RootChain) finalize(token common.Address, e *queueEntry) {
	if e.inFlight {
		if ife, ok := r.inFlightExits[*e.exitID]; ok && ife.exitStart != 0 {
			ife.finalize(token)
		}
		return
	}
	if ex := r.exits[e.exitID.Uint64()]; ex != nil {
		ex.owner = common.Address{}
		ex.token = common.Address{}
	}
}
