package solana

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMint(t *testing.T) {
	raw := make([]byte, 82)
	binary.LittleEndian.PutUint64(raw[36:44], 1_000_000_000_000)
	raw[44] = 6
	raw[45] = 1

	info, err := ParseMint(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000_000), info.Supply)
	assert.Equal(t, 6, info.Decimals)

	_, err = ParseMint(base64.StdEncoding.EncodeToString(raw[:40]))
	assert.Error(t, err)

	_, err = ParseMint("%%%")
	assert.Error(t, err)
}

func borshString(s string, padTo int) []byte {
	b := make([]byte, 4, 4+padTo)
	binary.LittleEndian.PutUint32(b, uint32(padTo))
	body := make([]byte, padTo)
	copy(body, s)
	return append(b, body...)
}

func TestParseMetaplexMetadata(t *testing.T) {
	raw := []byte{4}
	raw = append(raw, make([]byte, 64)...)
	raw = append(raw, borshString("Bonk", 32)...)
	raw = append(raw, borshString("BONK", 10)...)
	raw = append(raw, borshString("https://example.com/bonk.json", 200)...)

	meta, err := ParseMetaplexMetadata(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, "Bonk", meta.Name)
	assert.Equal(t, "BONK", meta.Symbol)
	assert.Equal(t, "https://example.com/bonk.json", meta.URI)

	raw[0] = 1
	_, err = ParseMetaplexMetadata(base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)
}
