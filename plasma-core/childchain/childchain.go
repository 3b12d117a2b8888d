// Package childchain mirrors the blocks the root chain has accepted so that proofs over
// their transactions can be derived locally.
package childchain

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mantlenetworkio/plasma/plasma-core/block"
	"github.com/mantlenetworkio/plasma/plasma-core/transaction"
	"github.com/mantlenetworkio/plasma/plasma-core/utxo"
)

const DefaultProofCacheSize = 1024

var (
	ErrNotFound           = fmt.Errorf("child chain %w", ethereum.NotFound)
	ErrUnexpectedNumber   = errors.New("unexpected block number")
	ErrInvalidBlockSigner = errors.New("block not signed by operator")
	ErrUnknownInput       = fmt.Errorf("input %w", ethereum.NotFound)
	ErrInputSpent         = errors.New("input already spent")
	ErrDuplicateInput     = errors.New("input spent twice in transaction")
	ErrInvalidSignature   = errors.New("input signature does not match owner")
	ErrAmountMismatch     = errors.New("outputs exceed inputs")
)

// Metrics records mirror activity.
type Metrics interface {
	RecordBlockAdded(deposit bool)
	RecordBlockRejected()
	RecordProofCache(hit bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordBlockAdded(bool) {}
func (noopMetrics) RecordBlockRejected() {}
func (noopMetrics) RecordProofCache(bool) {}

// ChildChain is the local mirror of submitted plasma blocks. Child block numbers advance by
// block.ChildBlockInterval; deposit blocks take the numbers in between.
type ChildChain struct {
	log      log.Logger
	m        Metrics
	operator common.Address

	mu               sync.Mutex
	blocks           map[uint64]*block.Block
	order            []uint64
	spent            map[uint64]struct{}
	nextChildBlock   uint64
	nextDepositBlock uint64
	proofs           *lru.Cache[uint64, []byte]
}

// New creates an empty mirror. A zero operator address disables the block signer check.
func New(logger log.Logger, m Metrics, operator common.Address, proofCacheSize int) (*ChildChain, error) {
	if m == nil {
		m = noopMetrics{}
	}
	if proofCacheSize <= 0 {
		proofCacheSize = DefaultProofCacheSize
	}
	proofs, err := lru.New[uint64, []byte](proofCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create proof cache: %w", err)
	}
	return &ChildChain{
		log:              logger,
		m:                m,
		operator:         operator,
		blocks:           make(map[uint64]*block.Block),
		spent:            make(map[uint64]struct{}),
		nextChildBlock:   block.ChildBlockInterval,
		nextDepositBlock: 1,
		proofs:           proofs,
	}, nil
}

func (c *ChildChain) NextChildBlock() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextChildBlock
}

func (c *ChildChain) NextDepositBlock() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextDepositBlock
}

// AddBlock validates and records b. It returns false, leaving the mirror untouched, when
// b is not the next block of its category or one of its transactions is invalid.
func (c *ChildChain) AddBlock(b *block.Block) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.validateBlock(b); err != nil {
		c.log.Warn("Rejected block", "blknum", b.Number, "err", err)
		c.m.RecordBlockRejected()
		return false
	}
	for _, tx := range b.Transactions {
		for _, in := range tx.Inputs {
			if !in.IsNull() {
				c.spent[in.ID()] = struct{}{}
			}
		}
	}
	c.insert(b)
	c.log.Debug("Added block", "blknum", b.Number, "txs", len(b.Transactions), "root", b.Root())
	return true
}

// ForceAddBlock records b at its number without any validation and advances the counters
// as if it were accepted. Inputs it spends stay spendable in the mirror.
func (c *ChildChain) ForceAddBlock(b *block.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proofs.Purge()
	c.insert(b)
	c.log.Debug("Forced block", "blknum", b.Number, "txs", len(b.Transactions))
}

func (c *ChildChain) insert(b *block.Block) {
	if _, ok := c.blocks[b.Number]; !ok {
		c.order = append(c.order, b.Number)
	}
	c.blocks[b.Number] = b
	if b.IsDeposit() {
		c.nextDepositBlock = b.Number + 1
	} else {
		c.nextDepositBlock = b.Number + 1
		c.nextChildBlock = b.Number + block.ChildBlockInterval
	}
	c.m.RecordBlockAdded(b.IsDeposit())
}

func (c *ChildChain) validateBlock(b *block.Block) error {
	if b.IsDeposit() {
		if b.Number != c.nextDepositBlock || b.Number >= c.nextChildBlock {
			return fmt.Errorf("%w: deposit block %d, expected %d", ErrUnexpectedNumber, b.Number, c.nextDepositBlock)
		}
		return nil
	}
	if b.Number != c.nextChildBlock {
		return fmt.Errorf("%w: child block %d, expected %d", ErrUnexpectedNumber, b.Number, c.nextChildBlock)
	}
	if c.operator != (common.Address{}) {
		if signer, err := b.Signer(); err != nil || signer != c.operator {
			return ErrInvalidBlockSigner
		}
	}
	spentInBlock := make(map[uint64]struct{})
	for i, tx := range b.Transactions {
		if err := c.validateTransaction(tx, spentInBlock); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}
	return nil
}

// ValidateTransaction checks tx against the mirrored UTXO set.
func (c *ChildChain) ValidateTransaction(tx *transaction.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateTransaction(tx, make(map[uint64]struct{}))
}

func (c *ChildChain) validateTransaction(tx *transaction.Transaction, spentInBlock map[uint64]struct{}) error {
	inSums := make(map[common.Address]*big.Int)
	seen := make(map[uint64]struct{})
	for i, in := range tx.Inputs {
		if in.IsNull() {
			continue
		}
		id := in.ID()
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateInput, in)
		}
		seen[id] = struct{}{}
		out, err := c.output(in)
		if err != nil {
			return err
		}
		if _, ok := c.spent[id]; ok {
			return fmt.Errorf("%w: %s", ErrInputSpent, in)
		}
		if _, ok := spentInBlock[id]; ok {
			return fmt.Errorf("%w: %s", ErrInputSpent, in)
		}
		if !tx.Signatures[i].SignedBy(tx.Hash(), out.Owner) {
			return fmt.Errorf("%w: input %d", ErrInvalidSignature, i)
		}
		sum, ok := inSums[out.Token]
		if !ok {
			sum = new(big.Int)
			inSums[out.Token] = sum
		}
		sum.Add(sum, out.Amount)
	}
	outSums := make(map[common.Address]*big.Int)
	for _, out := range tx.Outputs {
		if out.Amount == nil || out.Amount.Sign() == 0 {
			continue
		}
		sum, ok := outSums[out.Token]
		if !ok {
			sum = new(big.Int)
			outSums[out.Token] = sum
		}
		sum.Add(sum, out.Amount)
	}
	for token, out := range outSums {
		in, ok := inSums[token]
		if !ok || out.Cmp(in) > 0 {
			return fmt.Errorf("%w: token %s", ErrAmountMismatch, token)
		}
	}
	for id := range seen {
		spentInBlock[id] = struct{}{}
	}
	return nil
}

// Block returns the mirrored block with the given number.
func (c *ChildChain) Block(number uint64) (*block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block(number)
}

func (c *ChildChain) block(number uint64) (*block.Block, error) {
	b, ok := c.blocks[number]
	if !ok {
		return nil, fmt.Errorf("%w: block %d", ErrNotFound, number)
	}
	return b, nil
}

// Blocks returns the mirrored blocks in insertion order.
func (c *ChildChain) Blocks() []*block.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*block.Block, len(c.order))
	for i, n := range c.order {
		out[i] = c.blocks[n]
	}
	return out
}

// Transaction returns the transaction holding the output identified by id.
func (c *ChildChain) Transaction(id uint64) (*transaction.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transaction(utxo.Decode(id))
}

func (c *ChildChain) transaction(pos utxo.Position) (*transaction.Transaction, error) {
	b, err := c.block(pos.BlockNumber)
	if err != nil {
		return nil, err
	}
	tx, err := b.Transaction(pos.TxIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: tx %s", ErrNotFound, pos)
	}
	return tx, nil
}

// Output returns the output identified by id.
func (c *ChildChain) Output(id uint64) (transaction.Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output(utxo.Decode(id))
}

func (c *ChildChain) output(pos utxo.Position) (transaction.Output, error) {
	tx, err := c.transaction(pos)
	if err != nil {
		return transaction.Output{}, fmt.Errorf("%w: %s", ErrUnknownInput, pos)
	}
	if pos.OutputIndex >= transaction.NumTxos {
		return transaction.Output{}, fmt.Errorf("%w: %s", ErrUnknownInput, pos)
	}
	return tx.Outputs[pos.OutputIndex], nil
}

// IsSpent reports whether an accepted block spends the output identified by id.
func (c *ChildChain) IsSpent(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.spent[id]
	return ok
}

// MembershipProof proves the transaction holding id against its block root.
func (c *ChildChain) MembershipProof(id uint64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos := utxo.Decode(id)
	key := pos.TxID()
	if proof, ok := c.proofs.Get(key); ok {
		c.m.RecordProofCache(true)
		return append([]byte(nil), proof...), nil
	}
	c.m.RecordProofCache(false)
	b, err := c.block(pos.BlockNumber)
	if err != nil {
		return nil, err
	}
	proof, err := b.MembershipProof(pos.TxIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: tx %s", ErrNotFound, pos)
	}
	c.proofs.Add(key, proof)
	return append([]byte(nil), proof...), nil
}
