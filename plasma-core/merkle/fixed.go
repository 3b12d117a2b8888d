// Package merkle builds fixed-depth keccak256 Merkle trees over child chain transactions
// and produces the sibling-path proofs the root chain verifies.
package merkle

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultDepth is the tree depth used for plasma blocks, i.e. up to 65536 transactions.
const DefaultDepth = 16

// MaxDepth bounds the depth of a tree so that leaf indices fit a uint64.
const MaxDepth = 63

var (
	ErrNotFound       = fmt.Errorf("merkle leaf %w", ethereum.NotFound)
	ErrTooManyLeaves  = errors.New("too many leaves for tree depth")
	ErrInvalidDepth   = errors.New("invalid tree depth")
	ErrIndexOutOfTree = errors.New("leaf index outside of tree")
)

// EmptyLeaf is the hash padding unused leaf slots.
var EmptyLeaf = crypto.Keccak256Hash(make([]byte, 32))

// ZeroHashes returns the roots of empty subtrees, indexed by height. The slice has depth+1 entries.
func ZeroHashes(depth int) []common.Hash {
	out := make([]common.Hash, depth+1)
	out[0] = EmptyLeaf
	for i := 1; i <= depth; i++ {
		out[i] = hashPair(out[i-1], out[i-1])
	}
	return out
}

func hashPair(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash(left[:], right[:])
}

// FixedMerkle is an immutable binary tree of fixed depth. Only populated nodes are stored;
// the remainder of each level is implied by the empty subtree hashes.
type FixedMerkle struct {
	depth  int
	zero   []common.Hash
	levels [][]common.Hash
	index  map[common.Hash]uint64
}

// New hashes each leaf with keccak256 and builds a tree of the given depth.
func New(depth int, leaves [][]byte) (*FixedMerkle, error) {
	hashes := make([]common.Hash, len(leaves))
	for i, l := range leaves {
		hashes[i] = crypto.Keccak256Hash(l)
	}
	return NewFromHashes(depth, hashes)
}

// NewFromHashes builds a tree over already hashed leaves.
func NewFromHashes(depth int, leaves []common.Hash) (*FixedMerkle, error) {
	if depth < 1 || depth > MaxDepth {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	if uint64(len(leaves)) > uint64(1)<<depth {
		return nil, fmt.Errorf("%w: %d leaves, depth %d", ErrTooManyLeaves, len(leaves), depth)
	}
	t := &FixedMerkle{
		depth:  depth,
		zero:   ZeroHashes(depth),
		levels: make([][]common.Hash, depth+1),
		index:  make(map[common.Hash]uint64, len(leaves)),
	}
	t.levels[0] = append([]common.Hash(nil), leaves...)
	for i, l := range leaves {
		// duplicates resolve to their first position
		if _, ok := t.index[l]; !ok {
			t.index[l] = uint64(i)
		}
	}
	for h := 0; h < depth; h++ {
		cur := t.levels[h]
		next := make([]common.Hash, (len(cur)+1)/2)
		for j := range next {
			right := t.zero[h]
			if 2*j+1 < len(cur) {
				right = cur[2*j+1]
			}
			next[j] = hashPair(cur[2*j], right)
		}
		t.levels[h+1] = next
	}
	return t, nil
}

func (t *FixedMerkle) Depth() int {
	return t.depth
}

// Leaves returns the number of populated leaves.
func (t *FixedMerkle) Leaves() int {
	return len(t.levels[0])
}

func (t *FixedMerkle) Root() common.Hash {
	if top := t.levels[t.depth]; len(top) > 0 {
		return top[0]
	}
	return t.zero[t.depth]
}

// Leaf returns the leaf hash at index.
func (t *FixedMerkle) Leaf(index uint64) (common.Hash, error) {
	if index >= uint64(len(t.levels[0])) {
		return common.Hash{}, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return t.levels[0][index], nil
}

// IndexOf returns the position of the first leaf with the given hash.
func (t *FixedMerkle) IndexOf(leafHash common.Hash) (uint64, error) {
	i, ok := t.index[leafHash]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, leafHash)
	}
	return i, nil
}

// CreateMembershipProof returns the proof for the unhashed leaf.
func (t *FixedMerkle) CreateMembershipProof(leaf []byte) ([]byte, error) {
	return t.ProveHash(crypto.Keccak256Hash(leaf))
}

// ProveHash returns the proof for the first leaf with the given hash.
func (t *FixedMerkle) ProveHash(leafHash common.Hash) ([]byte, error) {
	i, err := t.IndexOf(leafHash)
	if err != nil {
		return nil, err
	}
	return t.ProveIndex(i)
}

// ProveIndex returns the sibling hashes from the leaf level up to the children of the root,
// concatenated into depth*32 bytes. Indices of unpopulated slots prove the empty leaf.
func (t *FixedMerkle) ProveIndex(index uint64) ([]byte, error) {
	if index >= uint64(1)<<t.depth {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfTree, index)
	}
	proof := make([]byte, 0, t.depth*common.HashLength)
	for h := 0; h < t.depth; h++ {
		sibling := t.zero[h]
		if s := index ^ 1; s < uint64(len(t.levels[h])) {
			sibling = t.levels[h][s]
		}
		proof = append(proof, sibling[:]...)
		index >>= 1
	}
	return proof, nil
}

// CheckMembership verifies a proof the way the root chain does: at each level the running
// hash is the left operand when the index is even.
func CheckMembership(leafHash common.Hash, index uint64, root common.Hash, proof []byte) bool {
	if len(proof) == 0 || len(proof)%common.HashLength != 0 {
		return false
	}
	computed := leafHash
	for i := 0; i < len(proof); i += common.HashLength {
		sibling := common.BytesToHash(proof[i : i+common.HashLength])
		if index%2 == 0 {
			computed = hashPair(computed, sibling)
		} else {
			computed = hashPair(sibling, computed)
		}
		index /= 2
	}
	return computed == root
}

// SingleLeafRoot is the root of a tree whose only leaf is at index zero. The root chain
// computes deposit block roots this way.
func SingleLeafRoot(depth int, leaf []byte) common.Hash {
	zero := ZeroHashes(depth)
	root := crypto.Keccak256Hash(leaf)
	for h := 0; h < depth; h++ {
		root = hashPair(root, zero[h])
	}
	return root
}
