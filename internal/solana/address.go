package solana

import (
	"fmt"

	"github.com/mr-tron/base58"

	"solana-wallet-tracker/internal/domain"
)

// Address length bounds in base58 characters.
const (
	minAddressLen = 32
	maxAddressLen = 44
)

// ValidateAddress checks that s is a base58 string decoding to a 32-byte public key.
func ValidateAddress(s string) error {
	if len(s) < minAddressLen || len(s) > maxAddressLen {
		return fmt.Errorf("%w: %q has length %d", domain.ErrInvalidAddress, s, len(s))
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", domain.ErrInvalidAddress, s, err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("%w: %q decodes to %d bytes", domain.ErrInvalidAddress, s, len(decoded))
	}
	return nil
}
