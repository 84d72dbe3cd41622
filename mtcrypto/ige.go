package mtcrypto

import (
	"crypto/aes"

	"github.com/go-faster/errors"
	"github.com/gotd/ige"
)

// EncryptIGE encrypts data (which must already be a multiple of the AES
// block size) in-place-equivalent, returning a new slice.
func EncryptIGE(key, iv [32]byte, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "new cipher")
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("data is not a multiple of the AES block size")
	}
	dst := make([]byte, len(data))
	ige.EncryptBlocks(block, iv[:], dst, data)
	return dst, nil
}

// DecryptIGE decrypts data encrypted by EncryptIGE.
func DecryptIGE(key, iv [32]byte, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "new cipher")
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("data is not a multiple of the AES block size")
	}
	dst := make([]byte, len(data))
	ige.DecryptBlocks(block, iv[:], dst, data)
	return dst, nil
}
