package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // required for on-disk compatibility, see DESIGN.md
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltMagic    = "Salted__"
	saltLen      = 8
	headerLen    = len(saltMagic) + saltLen
	kdfKeyBytes  = 32
	kdfIVBytes   = 16
	kdfOutBytes  = kdfKeyBytes + kdfIVBytes
	kdfIterCount = 1 // preserves on-disk compatibility; see DESIGN.md open question
)

// AESCipher is AES-256-CBC with a PBKDF2-HMAC-SHA1 key derivation and an
// OpenSSL-style "Salted__" envelope (spec §4.2/§6.4).
type AESCipher struct{}

func deriveKeyIV(passphrase string, salt []byte) (key, iv []byte) {
	keyIV := pbkdf2.Key([]byte(passphrase), salt, kdfIterCount, kdfOutBytes, sha1.New)
	return keyIV[:kdfKeyBytes], keyIV[kdfKeyBytes:]
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("crypto: ciphertext is not a multiple of the block size")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("crypto: invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("crypto: invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}

// Encrypt derives a fresh random 8-byte salt, derives key+IV, and writes
// "Salted__" || salt || AES-256-CBC(PKCS7(plaintext)).
func (AESCipher) Encrypt(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to read salt: %w", err)
	}

	key, iv := deriveKeyIV(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create AES cipher: %w", err)
	}

	padded := pkcs7Pad(append([]byte(nil), plaintext...), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, headerLen+len(ciphertext))
	out = append(out, []byte(saltMagic)...)
	out = append(out, salt...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decrypt validates the "Salted__" magic, recovers the salt, re-derives
// key+IV, and reverses the CBC+PKCS7 envelope.
func (AESCipher) Decrypt(ciphertext []byte, passphrase string) ([]byte, error) {
	if len(ciphertext) < headerLen {
		return nil, errDecryptFailed("ciphertext shorter than envelope header")
	}
	if string(ciphertext[:len(saltMagic)]) != saltMagic {
		return nil, errDecryptFailed("missing Salted__ magic")
	}
	salt := ciphertext[len(saltMagic):headerLen]
	body := ciphertext[headerLen:]

	key, iv := deriveKeyIV(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errDecryptFailed("failed to create AES cipher")
	}
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return nil, errDecryptFailed("ciphertext body is not block-aligned")
	}

	plainPadded := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plainPadded, body)

	plain, err := pkcs7Unpad(plainPadded, aes.BlockSize)
	if err != nil {
		return nil, errDecryptFailed(err.Error())
	}
	return plain, nil
}

func (AESCipher) NeedsPassphrase() bool { return true }

func (AESCipher) Name() string { return "aes" }
