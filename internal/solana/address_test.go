package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"solana-wallet-tracker/internal/domain"
)

func TestValidateAddress(t *testing.T) {
	valid := []string{
		"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		"So11111111111111111111111111111111111111112",
		MetaplexProgramID,
	}
	for _, a := range valid {
		assert.NoError(t, ValidateAddress(a), a)
	}

	invalid := []string{
		"",
		"short",
		"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt10",         // '0' is not base58
		"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1vEPjFWdd5", // too long
		"11111111111111111111111111111111111",                  // decodes to 35 zero bytes
	}
	for _, a := range invalid {
		assert.ErrorIs(t, ValidateAddress(a), domain.ErrInvalidAddress, a)
	}
}

func TestMetadataPDA(t *testing.T) {
	pda, err := MetadataPDA("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	assert.NoError(t, err)
	assert.Equal(t, "5x38Kp4hvdomTCnCrAny4UtMUt5rQBdB6px2K1Ui45Wq", pda)

	_, err = MetadataPDA("not-a-mint")
	assert.Error(t, err)
}
