// Package signature produces and checks the 65 byte r||s||v signatures used on the child chain.
package signature

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const Length = crypto.SignatureLength

// Signature is a recoverable secp256k1 signature with v in {27, 28}.
// The zero value is the null signature and marks an unsigned slot.
type Signature [Length]byte

var Null Signature

var ErrInvalidSignature = errors.New("invalid signature")

// Sign signs a 32 byte digest.
func Sign(digest common.Hash, key *ecdsa.PrivateKey) (Signature, error) {
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return Null, fmt.Errorf("failed to sign digest: %w", err)
	}
	if sig[crypto.RecoveryIDOffset] < 27 {
		sig[crypto.RecoveryIDOffset] += 27
	}
	var out Signature
	copy(out[:], sig)
	return out, nil
}

// FromBytes copies a 65 byte signature.
func FromBytes(b []byte) (Signature, error) {
	var out Signature
	if len(b) != Length {
		return out, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(b))
	}
	copy(out[:], b)
	return out, nil
}

func (s Signature) IsNull() bool {
	return s == Null
}

func (s Signature) Bytes() []byte {
	return append([]byte(nil), s[:]...)
}

// Recover returns the address that produced the signature over digest.
func (s Signature) Recover(digest common.Hash) (common.Address, error) {
	if s.IsNull() {
		return common.Address{}, fmt.Errorf("%w: null signature", ErrInvalidSignature)
	}
	sig := s.Bytes()
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignedBy reports whether s is a valid signature of digest by owner.
func (s Signature) SignedBy(digest common.Hash, owner common.Address) bool {
	signer, err := s.Recover(digest)
	return err == nil && signer == owner
}
