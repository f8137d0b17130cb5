package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

// TxSigner signs legacy transactions for one chain with replay protection
// (EIP-155).
type TxSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	signer     types.Signer
}

// NewTxSigner creates a TxSigner from a secp256k1 key and the target chain ID
// (97 for BSC testnet).
func NewTxSigner(pk *ecdsa.PrivateKey, chainID int64) *TxSigner {
	return &TxSigner{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		signer:     types.NewEIP155Signer(big.NewInt(chainID)),
	}
}

// Address returns the address derived from the signer's private key.
func (s *TxSigner) Address() common.Address {
	return s.address
}

// ChainID returns the chain the signer targets.
func (s *TxSigner) ChainID() *big.Int {
	return s.signer.ChainID()
}

// SignTx returns a signed copy of tx.
func (s *TxSigner) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, s.signer, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: %w: %v", domain.ErrSigningFailed, err)
	}
	return signed, nil
}

// Sender recovers the address that signed tx.
func (s *TxSigner) Sender(tx *types.Transaction) (common.Address, error) {
	return types.Sender(s.signer, tx)
}
