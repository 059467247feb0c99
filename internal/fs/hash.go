package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/pkg/errors"
)

// HashFile returns the lowercase hex SHA-256 digest of the file at path.
func HashFile(path string) (hash string, err error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "cannot Open")
	}
	defer func() {
		if er := fh.Close(); err == nil && er != nil {
			err = errors.Wrap(er, "cannot Close")
		}
	}()

	h := sha256.New()
	if _, err = io.Copy(h, fh); err != nil {
		return "", errors.Wrap(err, "cannot Copy")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the lowercase hex SHA-256 digest of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// IsSHA256Hex reports whether s is exactly 64 lowercase hexadecimal digits.
func IsSHA256Hex(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}
