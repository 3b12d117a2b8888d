// Package transaction models child chain transfers: four input slots, four output slots
// and one detached signature per live input.
package transaction

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/mantlenetworkio/plasma/plasma-core/signature"
	"github.com/mantlenetworkio/plasma/plasma-core/utxo"
)

// NumTxos is the number of input and output slots of every transaction.
const NumTxos = 4

var (
	ErrIndexOutOfRange = errors.New("transaction slot out of range")
	ErrTooManyTxos     = fmt.Errorf("%w: more than %d inputs or outputs", ErrIndexOutOfRange, NumTxos)
	// ErrNegativeAmount is returned for outputs RLP cannot encode.
	ErrNegativeAmount = errors.New("negative output amount")
)

// NullAddress is the owner and token of empty outputs, and the token of ETH.
var NullAddress common.Address

// Output is a value assigned to an owner. The zero token address denotes ETH.
type Output struct {
	Owner  common.Address
	Token  common.Address
	Amount *big.Int
}

func NewOutput(owner, token common.Address, amount *big.Int) Output {
	return Output{Owner: owner, Token: token, Amount: new(big.Int).Set(amount)}
}

func (o Output) IsNull() bool {
	return o.Owner == NullAddress && o.Token == NullAddress && (o.Amount == nil || o.Amount.Sign() == 0)
}

func (o Output) normalized() Output {
	if o.Amount == nil {
		o.Amount = new(big.Int)
	}
	return o
}

type unsigned struct {
	Inputs  [NumTxos]utxo.Position
	Outputs [NumTxos]Output
}

// Transaction is a child chain transfer. Slots beyond the supplied inputs and outputs
// hold null entries.
type Transaction struct {
	Inputs     [NumTxos]utxo.Position
	Outputs    [NumTxos]Output
	Signatures [NumTxos]signature.Signature
}

// New pads inputs and outputs to NumTxos slots. Every call allocates fresh slots.
func New(inputs []utxo.Position, outputs []Output) (*Transaction, error) {
	if len(inputs) > NumTxos || len(outputs) > NumTxos {
		return nil, fmt.Errorf("%w: %d inputs, %d outputs", ErrTooManyTxos, len(inputs), len(outputs))
	}
	for i, o := range outputs {
		if o.Amount != nil && o.Amount.Sign() < 0 {
			return nil, fmt.Errorf("%w: output %d is %s", ErrNegativeAmount, i, o.Amount)
		}
	}
	tx := new(Transaction)
	copy(tx.Inputs[:], inputs)
	for i := range tx.Outputs {
		if i < len(outputs) {
			tx.Outputs[i] = outputs[i].normalized()
		} else {
			tx.Outputs[i] = Output{Amount: new(big.Int)}
		}
	}
	return tx, nil
}

// NewFromIDs is New with inputs given as encoded position identifiers.
func NewFromIDs(inputIDs []uint64, outputs []Output) (*Transaction, error) {
	inputs := make([]utxo.Position, len(inputIDs))
	for i, id := range inputIDs {
		inputs[i] = utxo.Decode(id)
	}
	return New(inputs, outputs)
}

// NewDeposit creates the single-output transaction recorded for a root chain deposit.
// It panics on a negative amount.
func NewDeposit(owner, token common.Address, amount *big.Int) *Transaction {
	tx, err := New(nil, []Output{NewOutput(owner, token, amount)})
	if err != nil {
		panic(err)
	}
	return tx
}

func (tx *Transaction) unsigned() *unsigned {
	return &unsigned{Inputs: tx.Inputs, Outputs: tx.Outputs}
}

// Encode returns the canonical RLP encoding, which excludes signatures.
func (tx *Transaction) Encode() []byte {
	b, err := rlp.EncodeToBytes(tx.unsigned())
	if err != nil {
		panic(fmt.Errorf("failed to encode transaction: %w", err))
	}
	return b
}

// Hash is keccak256 of the canonical encoding. Input owners sign it.
func (tx *Transaction) Hash() common.Hash {
	return crypto.Keccak256Hash(tx.Encode())
}

// MerkleLeafHash is the leaf a block tree holds for tx.
func (tx *Transaction) MerkleLeafHash() common.Hash {
	return tx.Hash()
}

// Sign stores the signature of key at the input slot index.
func (tx *Transaction) Sign(index int, key *ecdsa.PrivateKey) error {
	if index < 0 || index >= NumTxos {
		return fmt.Errorf("%w: input %d", ErrIndexOutOfRange, index)
	}
	if tx.Inputs[index].IsNull() {
		return fmt.Errorf("%w: input %d is empty", ErrIndexOutOfRange, index)
	}
	sig, err := signature.Sign(tx.Hash(), key)
	if err != nil {
		return err
	}
	tx.Signatures[index] = sig
	return nil
}

// Signer recovers the address that signed input slot index.
func (tx *Transaction) Signer(index int) (common.Address, error) {
	if index < 0 || index >= NumTxos {
		return common.Address{}, fmt.Errorf("%w: input %d", ErrIndexOutOfRange, index)
	}
	return tx.Signatures[index].Recover(tx.Hash())
}

// IsDeposit reports whether tx spends nothing.
func (tx *Transaction) IsDeposit() bool {
	for _, in := range tx.Inputs {
		if !in.IsNull() {
			return false
		}
	}
	return true
}

// LiveInputs returns the slots holding a non-null input, in order.
func (tx *Transaction) LiveInputs() []int {
	var out []int
	for i, in := range tx.Inputs {
		if in.BlockNumber != 0 {
			out = append(out, i)
		}
	}
	return out
}

// InputIndex returns the first slot spending the output identified by id.
func (tx *Transaction) InputIndex(id uint64) (int, bool) {
	for i, in := range tx.Inputs {
		if !in.IsNull() && in.ID() == id {
			return i, true
		}
	}
	return 0, false
}

func (tx *Transaction) Output(index int) (Output, error) {
	if index < 0 || index >= NumTxos {
		return Output{}, fmt.Errorf("%w: output %d", ErrIndexOutOfRange, index)
	}
	return tx.Outputs[index], nil
}

// Copy returns a deep copy of tx.
func (tx *Transaction) Copy() *Transaction {
	cpy := *tx
	for i, o := range tx.Outputs {
		cpy.Outputs[i] = Output{Owner: o.Owner, Token: o.Token, Amount: new(big.Int).Set(o.normalized().Amount)}
	}
	return &cpy
}

// Decode parses a canonical encoding. The result carries null signatures.
func Decode(b []byte) (*Transaction, error) {
	var u unsigned
	if err := rlp.DecodeBytes(b, &u); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return &Transaction{Inputs: u.Inputs, Outputs: u.Outputs}, nil
}

// EncodeList encodes transactions as an RLP list of canonical encodings,
// the form the root chain takes for in-flight exit inputs.
func EncodeList(txs []*Transaction) []byte {
	list := make([]*unsigned, len(txs))
	for i, tx := range txs {
		list[i] = tx.unsigned()
	}
	b, err := rlp.EncodeToBytes(list)
	if err != nil {
		panic(fmt.Errorf("failed to encode transaction list: %w", err))
	}
	return b
}

// DecodeList is the inverse of EncodeList.
func DecodeList(b []byte) ([]*Transaction, error) {
	var list []unsigned
	if err := rlp.DecodeBytes(b, &list); err != nil {
		return nil, fmt.Errorf("failed to decode transaction list: %w", err)
	}
	out := make([]*Transaction, len(list))
	for i := range list {
		out[i] = &Transaction{Inputs: list[i].Inputs, Outputs: list[i].Outputs}
	}
	return out, nil
}
