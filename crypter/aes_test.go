package crypter

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func randomKeyMaterial(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return string(b)
}

func TestAes_pkcs7Pad(t *testing.T) {
	aesKey := randomKeyMaterial(32)
	aesIv := randomKeyMaterial(16)

	aes := Aes{aesKey: []byte(aesKey), aesIv: []byte(aesIv)}

	tests := []struct {
		name     string
		input    []byte
		expected []byte
	}{
		{
			name:     "empty input",
			input:    []byte{},
			expected: bytes.Repeat([]byte{16}, 16),
		},
		{
			name:     "one byte",
			input:    []byte{0xFF},
			expected: append([]byte{0xFF}, bytes.Repeat([]byte{15}, 15)...),
		},
		{
			name:     "block size minus one",
			input:    bytes.Repeat([]byte{0xAA}, 15),
			expected: append(bytes.Repeat([]byte{0xAA}, 15), byte(1)),
		},
		{
			name:     "exactly one block",
			input:    bytes.Repeat([]byte{0xBB}, 16),
			expected: append(bytes.Repeat([]byte{0xBB}, 16), bytes.Repeat([]byte{16}, 16)...),
		},
		{
			name:     "block size plus one",
			input:    bytes.Repeat([]byte{0xCC}, 17),
			expected: append(bytes.Repeat([]byte{0xCC}, 17), bytes.Repeat([]byte{15}, 15)...),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := aes.pkcs7Pad(tt.input)

			assert.Equal(t, 0, len(result)%16)
			assert.Equal(t, tt.expected, result)

			paddingLength := int(result[len(result)-1])
			assert.True(t, paddingLength > 0 && paddingLength <= 16)

			padding := result[len(result)-paddingLength:]
			for _, b := range padding {
				assert.Equal(t, byte(paddingLength), b)
			}
		})
	}
}

func TestAes_pkcs7RemovePad(t *testing.T) {
	aesKey := randomKeyMaterial(32)
	aesIv := randomKeyMaterial(16)

	aes := Aes{aesKey: []byte(aesKey), aesIv: []byte(aesIv)}

	tests := []struct {
		name        string
		input       []byte
		expected    []byte
		expectError string
	}{
		{
			name:        "empty input",
			input:       []byte{},
			expectError: "invalid padding length",
		},
		{
			name:        "invalid padding length (0)",
			input:       append(bytes.Repeat([]byte{170}, 15), byte(0)),
			expectError: "invalid padding length",
		},
		{
			name:        "invalid padding length (17)",
			input:       append(bytes.Repeat([]byte{170}, 15), byte(17)),
			expectError: "invalid padding length",
		},
		{
			name:        "mismatched padding bytes",
			input:       append(bytes.Repeat([]byte{170}, 14), []byte{170, 2}...),
			expectError: "invalid padding",
		},
		{
			name:     "valid padding (15 bytes)",
			input:    append([]byte{170}, bytes.Repeat([]byte{15}, 15)...),
			expected: []byte{170},
		},
		{
			name:     "valid padding (1 byte)",
			input:    append(bytes.Repeat([]byte{170}, 15), byte(1)),
			expected: bytes.Repeat([]byte{170}, 15),
		},
		{
			name:     "valid padding (16 bytes)",
			input:    append(bytes.Repeat([]byte{0xBB}, 16), bytes.Repeat([]byte{16}, 16)...),
			expected: bytes.Repeat([]byte{0xBB}, 16),
		},
		{
			name:        "all padding, no data",
			input:       bytes.Repeat([]byte{16}, 16),
			expectError: "padding less of len 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := aes.pkcs7RemovePad(tt.input)

			if tt.expectError != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestAes_EnCrypt(t *testing.T) {
	aesKey := randomKeyMaterial(32)
	aesIv := randomKeyMaterial(16)

	aes, err := NewAes(aesKey, aesIv)
	assert.NoError(t, err)

	tests := []struct {
		name        string
		input       []byte
		expectError string
	}{
		{
			name:        "empty input",
			input:       []byte{},
			expectError: "encrypt val is empty",
		},
		{
			name:  "one byte",
			input: []byte{0xFF},
		},
		{
			name:  "fifteen bytes",
			input: bytes.Repeat([]byte{0xAA}, 15),
		},
		{
			name:  "one block",
			input: bytes.Repeat([]byte{0xBB}, 16),
		},
		{
			name:  "block plus one",
			input: bytes.Repeat([]byte{0xCC}, 17),
		},
		{
			name:  "two blocks",
			input: bytes.Repeat([]byte{0xDD}, 32),
		},
		{
			name:  "ascii string",
			input: []byte("Hello, World!"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := aes.EnCrypt(tt.input)

			if tt.expectError != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}

			assert.NoError(t, err)
			assert.NotNil(t, result)
			assert.Equal(t, 0, len(result)%16)
			assert.NotEqual(t, tt.input, result)
			assert.GreaterOrEqual(t, len(result), len(tt.input))

			result2, err := aes.EnCrypt(tt.input)
			assert.NoError(t, err)
			assert.Equal(t, result, result2)
		})
	}
}

func TestAes_DeCrypt(t *testing.T) {
	aesKey := randomKeyMaterial(32)
	aesIv := randomKeyMaterial(16)

	aes, err := NewAes(aesKey, aesIv)
	assert.NoError(t, err)

	tests := []struct {
		name        string
		input       []byte
		expectError string
	}{
		{
			name:        "empty input",
			input:       []byte{},
			expectError: "decrypt val is empty",
		},
		{
			name:        "not block-aligned",
			input:       bytes.Repeat([]byte{0xAA}, 15),
			expectError: "input is not block-aligned",
		},
		{
			name:  "one block of unpadded garbage",
			input: bytes.Repeat([]byte{0xBB}, 16),
		},
		{
			name:  "two blocks of unpadded garbage",
			input: bytes.Repeat([]byte{0xCC}, 32),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := aes.DeCrypt(tt.input)

			if tt.expectError != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}

			assert.Error(t, err)
		})
	}

	encryptDecryptTests := []struct {
		name  string
		input []byte
	}{
		{name: "one byte", input: []byte{0xFF}},
		{name: "fifteen bytes", input: bytes.Repeat([]byte{0xAA}, 15)},
		{name: "one block", input: bytes.Repeat([]byte{0xBB}, 16)},
		{name: "block plus one", input: bytes.Repeat([]byte{0xCC}, 17)},
		{name: "ascii string", input: []byte("Hello, World!")},
		{name: "utf-8 string", input: []byte("こんにちは世界")},
	}

	for _, tt := range encryptDecryptTests {
		t.Run(tt.name+"_roundtrip", func(t *testing.T) {
			encrypted, err := aes.EnCrypt(tt.input)
			assert.NoError(t, err)
			assert.NotNil(t, encrypted)

			decrypted, err := aes.DeCrypt(encrypted)
			assert.NoError(t, err)
			assert.Equal(t, tt.input, decrypted)
		})
	}

	t.Run("different IV fails to decrypt correctly", func(t *testing.T) {
		original := []byte("Test Message")
		encrypted, err := aes.EnCrypt(original)
		assert.NoError(t, err)

		differentIv := randomKeyMaterial(16)
		aes2, err := NewAes(aesKey, differentIv)
		assert.NoError(t, err)

		decrypted, err := aes2.DeCrypt(encrypted)
		if err == nil {
			assert.NotEqual(t, original, decrypted)
		}
	})

	t.Run("different key fails to decrypt correctly", func(t *testing.T) {
		original := []byte("Test Message")
		encrypted, err := aes.EnCrypt(original)
		assert.NoError(t, err)

		differentKey := randomKeyMaterial(32)
		aes2, err := NewAes(differentKey, aesIv)
		assert.NoError(t, err)

		decrypted, err := aes2.DeCrypt(encrypted)
		if err == nil {
			assert.NotEqual(t, original, decrypted)
		}
	})
}
