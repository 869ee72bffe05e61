package confidential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"github.com/roach88/pnftm/internal/ir"
)

// KeySize is the AES-256 key length.
const KeySize = 32

var (
	sealAAD      = []byte("pnftm/price/v1")
	handleDomain = []byte("pnftm/handle/v1")
)

// GenerateKey returns a fresh random sealing key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

type sealer struct {
	gcm cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("sealing key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &sealer{gcm: gcm}, nil
}

// seal returns nonce || ciphertext for amount.
func (s *sealer) seal(amount ir.Amount) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	var plain [8]byte
	binary.BigEndian.PutUint64(plain[:], uint64(amount))
	return s.gcm.Seal(nonce, nonce, plain[:], sealAAD), nil
}

func (s *sealer) open(sealed []byte) (ir.Amount, error) {
	ns := s.gcm.NonceSize()
	if len(sealed) < ns {
		return 0, fmt.Errorf("sealed price too short")
	}
	plain, err := s.gcm.Open(nil, sealed[:ns], sealed[ns:], sealAAD)
	if err != nil {
		return 0, fmt.Errorf("open sealed price: %w", err)
	}
	if len(plain) != 8 {
		return 0, fmt.Errorf("sealed price has %d bytes, want 8", len(plain))
	}
	return ir.Amount(binary.BigEndian.Uint64(plain)), nil
}

// DeriveHandle computes the public handle of a sealed price: a MiMC digest
// over the domain tag and the SHA-256 of the sealed bytes, each reduced
// into the BN254 scalar field.
func DeriveHandle(sealed []byte) (ir.Handle, error) {
	h := mimc.NewMiMC()
	for _, part := range [][]byte{handleDomain, sealed} {
		sum := sha256.Sum256(part)
		var e fr.Element
		e.SetBytes(sum[:])
		b := e.Bytes()
		if _, err := h.Write(b[:]); err != nil {
			return nil, fmt.Errorf("derive handle: %w", err)
		}
	}
	return ir.Handle(h.Sum(nil)), nil
}
