package block

import (
	"crypto/rand"
	"encoding/hex"

	bucseerrors "github.com/bchodorowski/bucse/pkg/errors"
)

// storageNameBytes is 160 random bits (20 bytes), rendered as 40 hex
// characters, per spec §6.1.
const storageNameBytes = 20

// NewStorageName generates a fresh random 40-hex-character storage object
// name. Object names are never reused (spec §6.1).
func NewStorageName() (string, error) {
	buf := make([]byte, storageNameBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", bucseerrors.New(bucseerrors.ErrCodeInternal, "failed to read randomness for storage name").
			WithComponent("block").WithCause(err)
	}
	return hex.EncodeToString(buf), nil
}
