package crypter

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "crypter")

type Crypter interface {
	EnCrypt(plainText []byte) ([]byte, error)
	DeCrypt(cipherText []byte) ([]byte, error)
}

// Aes implements Crypter with AES-CBC and PKCS#7 padding, used to
// optionally encrypt the cid cookie value (spec.md §4.6).
type Aes struct {
	aesKey []byte
	aesIv  []byte
}

// NewAes builds an Aes crypter from a key (16/24/32 bytes) and a
// block-sized IV.
func NewAes(aesKey string, aesIv string) (Crypter, error) {
	if aesKey == "" || aesIv == "" {
		return nil, errors.New("key and IV must not be empty")
	}

	key := []byte(aesKey)
	iv := []byte(aesIv)

	validKeyLengths := map[int]bool{16: true, 24: true, 32: true}
	if !validKeyLengths[len(key)] {
		return nil, fmt.Errorf("invalid key length: %d bytes; must be 16, 24, or 32 bytes", len(key))
	}

	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("invalid IV length: %d bytes; must be %d bytes", len(iv), aes.BlockSize)
	}

	return &Aes{
		aesKey: key,
		aesIv:  iv,
	}, nil
}

func (ae *Aes) pkcs7Pad(cipherText []byte) []byte {
	remain := len(cipherText) % aes.BlockSize
	length := aes.BlockSize - remain
	trailing := bytes.Repeat([]byte{byte(length)}, length)
	return append(cipherText, trailing...)
}

func (ae *Aes) pkcs7RemovePad(src []byte) ([]byte, error) {
	length := len(src)
	if length == 0 {
		return nil, errors.New("invalid padding length")
	}

	paddingLen := int(src[length-1])
	if paddingLen == 0 || paddingLen > aes.BlockSize {
		return nil, errors.New("invalid padding length")
	}

	for i := length - paddingLen; i < length; i++ {
		if src[i] != byte(paddingLen) {
			return nil, errors.New("invalid padding")
		}
	}

	end := length - paddingLen
	if end < 1 {
		return nil, errors.New("padding less of len 1")
	}

	return src[:end], nil
}

// EnCrypt pads and AES-CBC encrypts plainText.
func (ae *Aes) EnCrypt(plainText []byte) ([]byte, error) {
	if len(plainText) < 1 {
		return nil, errors.New("encrypt val is empty")
	}

	pkPlainText := ae.pkcs7Pad(plainText)

	block, err := aes.NewCipher(ae.aesKey)
	if err != nil {
		log.WithError(err).Errorf("new cipher failed (%d byte key)", len(ae.aesKey))
		return nil, err
	}

	cipherText := make([]byte, len(pkPlainText))

	cbc := cipher.NewCBCEncrypter(block, ae.aesIv)
	cbc.CryptBlocks(cipherText, pkPlainText)
	return cipherText, nil
}

// DeCrypt AES-CBC decrypts cipherText and strips its PKCS#7 padding.
func (ae *Aes) DeCrypt(cipherText []byte) ([]byte, error) {
	if len(cipherText) < 1 {
		return nil, errors.New("decrypt val is empty")
	}

	if len(cipherText)%aes.BlockSize != 0 {
		return nil, errors.New("input is not block-aligned")
	}

	block, err := aes.NewCipher(ae.aesKey)
	if err != nil {
		log.WithError(err).Error("new cipher failed")
		return nil, err
	}

	plainText := make([]byte, len(cipherText))

	cbc := cipher.NewCBCDecrypter(block, ae.aesIv)
	cbc.CryptBlocks(plainText, cipherText)
	return ae.pkcs7RemovePad(plainText)
}
