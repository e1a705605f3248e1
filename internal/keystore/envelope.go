package keystore

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	encryptedBlockType = "ENCRYPTED PRIVATE KEY"
	envelopeVersion    = 1
)

var errEnvelope = errors.New("keystore: malformed key envelope")

// Upper bounds on the KDF parameters accepted from a stored envelope. The
// memory scrypt needs is 128*N*R bytes, so an unchecked header can exhaust it.
const (
	maxScryptN = 1 << 20
	maxScryptR = 32
	maxScryptP = 16
)

// scryptParams are the KDF tunables recorded alongside the sealed key so that
// Unlock does not depend on the generator's settings.
type scryptParams struct {
	N, R, P int
}

func defaultScryptParams() scryptParams { return scryptParams{N: 1 << 15, R: 8, P: 1} }

func (p scryptParams) valid() bool {
	return p.N > 1 && p.N <= maxScryptN && p.N&(p.N-1) == 0 &&
		p.R > 0 && p.R <= maxScryptR &&
		p.P > 0 && p.P <= maxScryptP
}

// seal derives a key from passphrase and seals the PKCS8 DER into a PEM block.
func seal(passphrase string, der []byte, kp scryptParams) (string, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return "", err
	}
	key, err := scrypt.Key([]byte(passphrase), salt[:], kp.N, kp.R, kp.P, chacha20poly1305.KeySize)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}
	// Zero nonce; the per-envelope salt makes the key unique.
	var nonce [chacha20poly1305.NonceSize]byte
	ct := aead.Seal(nil, nonce[:], der, salt[:])

	block := &pem.Block{
		Type: encryptedBlockType,
		Headers: map[string]string{
			"Version":  strconv.Itoa(envelopeVersion),
			"Cipher":   "chacha20poly1305",
			"KDF":      "scrypt",
			"Salt":     hex.EncodeToString(salt[:]),
			"Scrypt-N": strconv.Itoa(kp.N),
			"Scrypt-R": strconv.Itoa(kp.R),
			"Scrypt-P": strconv.Itoa(kp.P),
		},
		Bytes: ct,
	}
	return string(pem.EncodeToMemory(block)), nil
}

// open reverses seal. Any failure, including a wrong passphrase, is an error;
// callers map it to ErrWrongPassphrase.
func open(passphrase, encoded string) ([]byte, error) {
	block, _ := pem.Decode([]byte(encoded))
	if block == nil || block.Type != encryptedBlockType {
		return nil, errEnvelope
	}
	v, err := strconv.Atoi(block.Headers["Version"])
	if err != nil || v > envelopeVersion {
		return nil, fmt.Errorf("%w: unsupported version %q", errEnvelope, block.Headers["Version"])
	}
	salt, err := hex.DecodeString(block.Headers["Salt"])
	if err != nil || len(salt) == 0 {
		return nil, errEnvelope
	}
	var kp scryptParams
	for _, f := range []struct {
		name string
		dst  *int
	}{{"Scrypt-N", &kp.N}, {"Scrypt-R", &kp.R}, {"Scrypt-P", &kp.P}} {
		if *f.dst, err = strconv.Atoi(block.Headers[f.name]); err != nil {
			return nil, errEnvelope
		}
	}
	if !kp.valid() {
		return nil, fmt.Errorf("%w: scrypt parameters out of range", errEnvelope)
	}

	key, err := scrypt.Key([]byte(passphrase), salt, kp.N, kp.R, kp.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	return aead.Open(nil, nonce[:], block.Bytes, salt)
}
