package crypto

import (
	"fmt"

	bucseerrors "github.com/bchodorowski/bucse/pkg/errors"
)

// ErrUnknownCipher reports a cipher name in repository.json this build
// doesn't recognize (§7 Unsupported: "cipher unknown in control blob").
func ErrUnknownCipher(name string) error {
	return bucseerrors.New(bucseerrors.ErrCodeUnknownCipher, fmt.Sprintf("unknown cipher %q", name)).
		WithComponent("crypto")
}

func errDecryptFailed(reason string) error {
	return bucseerrors.New(bucseerrors.ErrCodeDecryptFailed, reason).WithComponent("crypto")
}
