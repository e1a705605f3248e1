// Package keystore holds the user's asymmetric identity: a passphrase-protected
// RSA key pair used to sign protocol requests and to decrypt message content.
package keystore

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

// DefaultKeyBits is the modulus size of generated identity keys.
const DefaultKeyBits = 4096

var (
	// ErrWrongPassphrase is returned by Unlock when the passphrase does not
	// open the stored key or the stored material is malformed.
	ErrWrongPassphrase = errors.New("keystore: wrong passphrase or corrupted key")
	// ErrContentTooLarge is returned by EncryptFor when the plaintext does not
	// fit in a single OAEP block for the recipient's key.
	ErrContentTooLarge = errors.New("keystore: content too large")
	// ErrDecryptionFailed is returned when ciphertext is malformed or was not
	// encrypted for this key.
	ErrDecryptionFailed = errors.New("keystore: decryption failed")
	// ErrInvalidPublicKey is returned when a PEM public key cannot be parsed.
	ErrInvalidPublicKey = errors.New("keystore: invalid public key")
)

// KeyPair is the persisted form of an identity. The passphrase that protects
// EncryptedPrivateKey is never part of it.
type KeyPair struct {
	PublicKey           string
	EncryptedPrivateKey string
}

// Key is an unlocked private key. It only exists after a successful unlock.
type Key struct {
	priv      *rsa.PrivateKey
	publicPEM string
}

type Option func(*Generator)

// WithKeyBits overrides the RSA modulus size.
func WithKeyBits(bits int) Option {
	return func(g *Generator) {
		g.bits = bits
	}
}

// WithScryptCost overrides the scrypt N parameter used to seal new keys.
func WithScryptCost(n int) Option {
	return func(g *Generator) {
		g.kdf.N = n
	}
}

// Generator creates new key pairs.
type Generator struct {
	bits int
	kdf  scryptParams
}

func New(opts ...Option) *Generator {
	g := &Generator{bits: DefaultKeyBits, kdf: defaultScryptParams()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// GenerateKeyPair generates a key pair with the default generator.
func GenerateKeyPair(passphrase string) (KeyPair, *Key, error) {
	return New().GenerateKeyPair(passphrase)
}

// GenerateKeyPair creates a fresh RSA key pair, seals the private half under
// passphrase and unlocks it again to produce the in-memory key.
func (g *Generator) GenerateKeyPair(passphrase string) (KeyPair, *Key, error) {
	priv, err := rsa.GenerateKey(rand.Reader, g.bits)
	if err != nil {
		return KeyPair{}, nil, fmt.Errorf("keystore: generate: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return KeyPair{}, nil, fmt.Errorf("keystore: marshal private key: %w", err)
	}
	pub, err := encodePublicKey(&priv.PublicKey)
	if err != nil {
		return KeyPair{}, nil, err
	}
	sealed, err := seal(passphrase, der, g.kdf)
	if err != nil {
		return KeyPair{}, nil, fmt.Errorf("keystore: seal private key: %w", err)
	}

	kp := KeyPair{PublicKey: pub, EncryptedPrivateKey: sealed}
	key, err := Unlock(sealed, passphrase)
	if err != nil {
		// A key we just sealed must open; anything else is a bug here.
		return KeyPair{}, nil, fmt.Errorf("keystore: unlock of generated key failed: %v", err)
	}
	return kp, key, nil
}

// Unlock opens an encrypted private key. It never panics; every failure is
// reported as ErrWrongPassphrase and no key is returned.
func Unlock(encryptedPrivateKey, passphrase string) (key *Key, err error) {
	defer func() {
		if r := recover(); r != nil {
			key, err = nil, ErrWrongPassphrase
		}
	}()

	der, err := open(passphrase, encryptedPrivateKey)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrWrongPassphrase
	}
	pub, err := encodePublicKey(&priv.PublicKey)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return &Key{priv: priv, publicPEM: pub}, nil
}

// PublicKey returns the PEM encoded public half.
func (k *Key) PublicKey() string {
	return k.publicPEM
}

// Sign signs SHA-256(payload) and returns the base64 encoded signature.
func (k *Key) Sign(payload []byte) (string, error) {
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, k.priv, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("keystore: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Decrypt opens base64 ciphertext produced by EncryptFor for this key.
func (k *Key) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), nil, k.priv, raw, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(pt), nil
}

// Verify reports whether signature is a valid base64 signature of payload
// under the PEM encoded public key.
func Verify(publicKey string, payload []byte, signature string) bool {
	pub, err := ParsePublicKey(publicKey)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(payload)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil
}

// EncryptFor encrypts plaintext for the holder of publicKey.
func EncryptFor(publicKey, plaintext string) (string, error) {
	pub, err := ParsePublicKey(publicKey)
	if err != nil {
		return "", err
	}
	if max := maxPlaintext(pub); len(plaintext) > max {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrContentTooLarge, len(plaintext), max)
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, []byte(plaintext), nil)
	if err != nil {
		return "", fmt.Errorf("keystore: encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// MaxPlaintextSize returns the largest plaintext EncryptFor accepts for publicKey.
func MaxPlaintextSize(publicKey string) (int, error) {
	pub, err := ParsePublicKey(publicKey)
	if err != nil {
		return 0, err
	}
	return maxPlaintext(pub), nil
}

// ParsePublicKey decodes a PEM "PUBLIC KEY" block holding an RSA key.
func ParsePublicKey(publicKey string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKey))
	if block == nil {
		return nil, ErrInvalidPublicKey
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key (%T)", ErrInvalidPublicKey, parsed)
	}
	return pub, nil
}

func maxPlaintext(pub *rsa.PublicKey) int {
	return pub.Size() - 2*sha256.Size - 2
}

func encodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("keystore: marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}
