package solana

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
)

// MintInfo is the decoded part of an SPL Token mint account.
type MintInfo struct {
	Supply   uint64
	Decimals int
}

// ParseMint decodes base64 SPL Token mint account data.
// Layout (82 bytes):
// - mintAuthority: Option<Pubkey> (36 bytes)
// - supply: u64 (8 bytes)
// - decimals: u8 (1 byte)
// - isInitialized: bool (1 byte)
// - freezeAuthority: Option<Pubkey> (36 bytes)
func ParseMint(data string) (*MintInfo, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode mint data: %w", err)
	}
	if len(decoded) < 82 {
		return nil, fmt.Errorf("mint data too short: %d", len(decoded))
	}
	return &MintInfo{
		Supply:   binary.LittleEndian.Uint64(decoded[36:44]),
		Decimals: int(decoded[44]),
	}, nil
}

// TokenMetadata is the name/symbol/uri triple of a Metaplex metadata account.
type TokenMetadata struct {
	Name   string
	Symbol string
	URI    string
}

// ParseMetaplexMetadata decodes base64 Metaplex metadata account data.
// Layout: key u8 (4 = MetadataV1), updateAuthority [32], mint [32],
// then borsh strings name, symbol, uri.
func ParseMetaplexMetadata(data string) (*TokenMetadata, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if len(decoded) < 69 || decoded[0] != 4 {
		return nil, fmt.Errorf("not a metadata v1 account")
	}

	r := borshReader{buf: decoded, off: 65}
	name, err := r.string(200)
	if err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	symbol, err := r.string(50)
	if err != nil {
		return nil, fmt.Errorf("symbol: %w", err)
	}
	uri, err := r.string(400)
	if err != nil {
		// Name and symbol are enough for display.
		uri = ""
	}
	return &TokenMetadata{Name: name, Symbol: symbol, URI: uri}, nil
}

type borshReader struct {
	buf []byte
	off int
}

func (r *borshReader) string(maxLen int) (string, error) {
	if r.off+4 > len(r.buf) {
		return "", fmt.Errorf("truncated length at %d", r.off)
	}
	n := int(binary.LittleEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	if n > maxLen || r.off+n > len(r.buf) {
		return "", fmt.Errorf("bad string length %d", n)
	}
	s := strings.TrimRight(string(r.buf[r.off:r.off+n]), "\x00")
	r.off += n
	return s, nil
}
