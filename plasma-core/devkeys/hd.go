// Package devkeys derives the numbered test accounts the harness signs with.
package devkeys

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/base/go-bip39"
	hdwallet "github.com/ethereum-optimism/go-ethereum-hdwallet"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	TestMnemonic = "test test test test test test test test test test test junk"

	// DefaultAccounts is the number of accounts a harness derives.
	DefaultAccounts = 10
)

// Account is a numbered dev account.
type Account struct {
	Index   int
	Address common.Address
	Key     *ecdsa.PrivateKey
}

func (a Account) String() string {
	return fmt.Sprintf("account %d (%s)", a.Index, a.Address)
}

// HDPath is the BIP-44 path of the i-th dev account.
func HDPath(i int) string {
	return fmt.Sprintf("m/44'/60'/0'/0/%d", i)
}

type MnemonicDevKeys struct {
	w *hdwallet.Wallet
}

func NewMnemonicDevKeys(mnemonic string) (*MnemonicDevKeys, error) {
	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}
	return &MnemonicDevKeys{w: w}, nil
}

// NewSaltedDevKeys derives the wallet from the mnemonic seeded with a passphrase.
func NewSaltedDevKeys(mnemonic string, salt string) (*MnemonicDevKeys, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to create seed: %w", err)
	}
	w, err := hdwallet.NewFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return &MnemonicDevKeys{w: w}, nil
}

func (d *MnemonicDevKeys) Secret(i int) (*ecdsa.PrivateKey, error) {
	account := accounts.Account{URL: accounts.URL{Path: HDPath(i)}}
	priv, err := d.w.PrivateKey(account)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key of path %s: %w", account.URL.Path, err)
	}
	return priv, nil
}

func (d *MnemonicDevKeys) Address(i int) (common.Address, error) {
	secret, err := d.Secret(i)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(secret.PublicKey), nil
}

// Accounts derives the first n accounts in index order.
func (d *MnemonicDevKeys) Accounts(n int) ([]Account, error) {
	out := make([]Account, n)
	for i := range out {
		key, err := d.Secret(i)
		if err != nil {
			return nil, err
		}
		out[i] = Account{Index: i, Address: crypto.PubkeyToAddress(key.PublicKey), Key: key}
	}
	return out, nil
}
