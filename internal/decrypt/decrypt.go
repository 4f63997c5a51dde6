package decrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"unicode/utf8"
)

// The payload key and zero IV are fixed for compatibility with the external
// encoder that produces the QR payloads. CBC with a zero IV is deterministic
// and leaks patterns across messages; it cannot be changed here without
// breaking every payload already in circulation.
var (
	payloadKey = []byte("d41c8a2f70b35e96")
	zeroIV     = make([]byte, aes.BlockSize)
)

var errBadPadding = errors.New("invalid pkcs7 padding")

// Decrypt decodes a base64 AES-128-CBC ciphertext with the fixed payload key.
// Any input that does not decrypt to non-empty, valid UTF-8 plaintext is
// treated as "not encrypted" and returned unchanged. Decrypt never fails and
// never returns partial output.
func Decrypt(cipherText string) string {
	raw, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil || len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return cipherText
	}

	block, err := aes.NewCipher(payloadKey)
	if err != nil {
		return cipherText
	}

	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, zeroIV).CryptBlocks(plain, raw)

	plain, err = pkcs7Unpad(plain)
	if err != nil || len(plain) == 0 || !utf8.Valid(plain) {
		return cipherText
	}

	return string(plain)
}

// Encrypt is the paired encoder: PKCS#7 pad, AES-128-CBC with the fixed key
// and zero IV, base64 encode. It exists for round-trip verification and the
// decode CLI; production payloads are produced by the external encoder.
func Encrypt(plainText string) (string, error) {
	block, err := aes.NewCipher(payloadKey)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(plainText), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, zeroIV).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// pkcs7Pad appends PKCS#7 padding up to the next block boundary
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

// pkcs7Unpad strips and validates PKCS#7 padding
func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errBadPadding
	}

	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, errBadPadding
	}

	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errBadPadding
		}
	}

	return data[:len(data)-padLen], nil
}
