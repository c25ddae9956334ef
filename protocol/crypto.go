package protocol

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of the shared link key.
const KeySize = 16

// SealOverhead is the number of bytes Seal adds to a plaintext.
const SealOverhead = chacha20poly1305.NonceSize + chacha20poly1305.Overhead

const hkdfInfo = "mdrelay-link-v1"

// Key is the pre-shared key both ends of a link are built with.
type Key [KeySize]byte

// DefaultKey must be replaced on real deployments: the band is shared.
var DefaultKey = Key{
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
	0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F,
}

// ParseKey decodes a 32 character hex string.
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(b) != KeySize {
		return k, ErrInvalidKey
	}
	copy(k[:], b)
	return k, nil
}

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// Cipher seals datagram payloads with ChaCha20-Poly1305 under a key
// expanded from the 16-byte link key with HKDF-SHA256.
type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(key Key) (*Cipher, error) {
	r := hkdf.New(sha256.New, key[:], nil, []byte(hkdfInfo))
	expanded := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, expanded); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(expanded)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext, binding it to header.
// Output format: nonce(12) || ciphertext+tag
func (c *Cipher) Seal(header, plaintext []byte) ([]byte, error) {
	out := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, fmt.Errorf("seal: nonce: %w", err)
	}
	return c.aead.Seal(out, out[:c.aead.NonceSize()], plaintext, header), nil
}

// Open reverses Seal. A wrong key, a tampered header or a corrupt body all
// yield ErrDecrypt.
func (c *Cipher) Open(header, sealed []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(sealed) < ns+c.aead.Overhead() {
		return nil, ErrDecrypt
	}
	pt, err := c.aead.Open(nil, sealed[:ns], sealed[ns:], header)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}
