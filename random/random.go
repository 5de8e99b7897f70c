package random

import (
	crand "crypto/rand"
	"math/big"
)

const charset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// DownloadTokenLength is the size of the opaque token stored on a purchase.
const DownloadTokenLength = 32

// StringSecure draws length characters from charset using crypto/rand.
func StringSecure(length int) (string, error) {
	b := make([]byte, length)
	l := big.NewInt(int64(len(charset)))
	for i := range b {
		num, err := crand.Int(crand.Reader, l)
		if err != nil {
			return "", err
		}
		b[i] = charset[num.Int64()]
	}
	return string(b), nil
}

// DownloadToken returns a fresh opaque token for a purchase.
func DownloadToken() (string, error) {
	return StringSecure(DownloadTokenLength)
}
