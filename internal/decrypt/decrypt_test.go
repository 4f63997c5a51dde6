package decrypt

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
	}{
		{"typical payload", "81749,PQM250375"},
		{"single char", "x"},
		{"exact block", "0123456789abcdef"},
		{"multi block", "81749,PQM250375,extra-field,another"},
		{"unicode", "étiquette-81749,PQM"},
		{"whitespace", "  81749 , PQM250375  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := Encrypt(tt.plaintext)
			require.NoError(t, err)
			require.NotEqual(t, tt.plaintext, encrypted)

			assert.Equal(t, tt.plaintext, Decrypt(encrypted))
		})
	}
}

func TestEncryptIsDeterministic(t *testing.T) {
	// Zero-IV CBC is deterministic; the external encoder depends on it
	first, err := Encrypt("81749,PQM250375")
	require.NoError(t, err)
	second, err := Encrypt("81749,PQM250375")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDecryptFallsBackToInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not base64", "definitely not base64!!!"},
		{"plain payload", "81749,PQM250375"},
		{"base64 of partial block", base64.StdEncoding.EncodeToString([]byte("short"))},
		{"base64 of empty", base64.StdEncoding.EncodeToString(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.input, Decrypt(tt.input))
		})
	}
}

func TestDecryptEmptyPlaintextFallsBack(t *testing.T) {
	// An encrypted empty string decrypts to nothing; empty results are
	// treated as "not encrypted" and the input passes through unchanged.
	encrypted, err := Encrypt("")
	require.NoError(t, err)

	assert.Equal(t, encrypted, Decrypt(encrypted))
}

func TestPKCS7Padding(t *testing.T) {
	padded := pkcs7Pad([]byte("abc"), 16)
	assert.Len(t, padded, 16)
	assert.Equal(t, byte(13), padded[len(padded)-1])

	unpadded, err := pkcs7Unpad(padded)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), unpadded)

	// Full-block padding for block-aligned input
	padded = pkcs7Pad([]byte("0123456789abcdef"), 16)
	assert.Len(t, padded, 32)

	unpadded, err = pkcs7Unpad(padded)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcdef"), unpadded)
}

func TestPKCS7UnpadRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"zero pad byte", []byte{1, 2, 3, 0}},
		{"pad longer than data", []byte{5}},
		{"pad over block size", append(make([]byte, 15), 17)},
		{"inconsistent padding", []byte{1, 2, 3, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pkcs7Unpad(tt.data)
			assert.Error(t, err)
		})
	}
}
