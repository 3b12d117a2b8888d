// Package block holds plasma blocks: ordered transactions committed to by a Merkle root
// and signed by the operator.
package block

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/plasma/plasma-core/merkle"
	"github.com/mantlenetworkio/plasma/plasma-core/signature"
	"github.com/mantlenetworkio/plasma/plasma-core/transaction"
)

// ChildBlockInterval separates operator-submitted block numbers. Deposit blocks fill the gaps.
const ChildBlockInterval = 1000

var ErrNotFound = fmt.Errorf("block transaction %w", ethereum.NotFound)

type Block struct {
	Number       uint64
	Timestamp    uint64
	Transactions []*transaction.Transaction
	Signature    signature.Signature

	tree *merkle.FixedMerkle
}

// New builds the block tree over the canonical encodings of txs.
func New(number uint64, txs []*transaction.Transaction, timestamp uint64) (*Block, error) {
	leaves := make([]common.Hash, len(txs))
	for i, tx := range txs {
		leaves[i] = tx.MerkleLeafHash()
	}
	tree, err := merkle.NewFromHashes(merkle.DefaultDepth, leaves)
	if err != nil {
		return nil, fmt.Errorf("failed to build tree for block %d: %w", number, err)
	}
	return &Block{
		Number:       number,
		Timestamp:    timestamp,
		Transactions: append([]*transaction.Transaction(nil), txs...),
		tree:         tree,
	}, nil
}

func (b *Block) Root() common.Hash {
	return b.tree.Root()
}

// Tree exposes the Merkle structure for proof generation.
func (b *Block) Tree() *merkle.FixedMerkle {
	return b.tree
}

// IsDeposit reports whether the number falls between child block numbers.
func (b *Block) IsDeposit() bool {
	return IsDepositNumber(b.Number)
}

func IsDepositNumber(n uint64) bool {
	return n%ChildBlockInterval != 0
}

// Sign signs the root with the operator key.
func (b *Block) Sign(key *ecdsa.PrivateKey) error {
	sig, err := signature.Sign(b.Root(), key)
	if err != nil {
		return fmt.Errorf("failed to sign block %d: %w", b.Number, err)
	}
	b.Signature = sig
	return nil
}

// Signer recovers the operator address from the block signature.
func (b *Block) Signer() (common.Address, error) {
	return b.Signature.Recover(b.Root())
}

func (b *Block) Transaction(index uint64) (*transaction.Transaction, error) {
	if index >= uint64(len(b.Transactions)) {
		return nil, fmt.Errorf("%w: block %d index %d", ErrNotFound, b.Number, index)
	}
	return b.Transactions[index], nil
}

// MembershipProof proves the transaction at index against the block root.
func (b *Block) MembershipProof(index uint64) ([]byte, error) {
	if index >= uint64(len(b.Transactions)) {
		return nil, fmt.Errorf("%w: block %d index %d", ErrNotFound, b.Number, index)
	}
	return b.tree.ProveIndex(index)
}

// ProveTransaction proves the first occurrence of tx in the block.
func (b *Block) ProveTransaction(tx *transaction.Transaction) ([]byte, error) {
	return b.tree.ProveHash(tx.MerkleLeafHash())
}
