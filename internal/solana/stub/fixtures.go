package stub

import (
	"strconv"

	"solana-wallet-tracker/internal/solana"
)

// Party is one wallet's balances in a fixture transaction.
type Party struct {
	Owner        string
	PreToken     uint64 // base units
	PostToken    uint64
	LamportDelta int64
}

// TokenTx builds a parsed transaction moving mint between parties. Each party
// gets a system account key (for lamports) and a token account key.
func TokenTx(sig string, blockTime int64, mint string, decimals int, parties ...Party) *solana.Transaction {
	const startLamports = 10_000_000_000

	n := len(parties)
	keys := make([]string, 2*n)
	pre := make([]uint64, 2*n)
	post := make([]uint64, 2*n)
	var preTB, postTB []solana.TokenBalance

	for i, p := range parties {
		keys[i] = p.Owner
		keys[n+i] = p.Owner + "-ata"
		pre[i] = startLamports
		post[i] = uint64(startLamports + p.LamportDelta)

		preTB = append(preTB, tokenBalance(n+i, mint, p.Owner, p.PreToken, decimals))
		postTB = append(postTB, tokenBalance(n+i, mint, p.Owner, p.PostToken, decimals))
	}

	return &solana.Transaction{
		Signature: sig,
		BlockTime: blockTime,
		Meta: &solana.TransactionMeta{
			PreBalances:       pre,
			PostBalances:      post,
			PreTokenBalances:  preTB,
			PostTokenBalances: postTB,
		},
		Message: &solana.TransactionMessage{AccountKeys: keys},
	}
}

func tokenBalance(idx int, mint, owner string, amount uint64, decimals int) solana.TokenBalance {
	return solana.TokenBalance{
		AccountIndex: idx,
		Mint:         mint,
		Owner:        owner,
		UITokenAmount: solana.UITokenAmount{
			Amount:   strconv.FormatUint(amount, 10),
			Decimals: decimals,
		},
	}
}

// Sig builds a signature entry with a block time in seconds.
func Sig(signature string, blockTime int64) solana.SignatureInfo {
	bt := blockTime
	return solana.SignatureInfo{Signature: signature, BlockTime: &bt}
}

// AddTokenTx stores tx and prepends its signature to every party's signature list.
func (c *RPCClient) AddTokenTx(tx *solana.Transaction, owners ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
	for _, o := range owners {
		c.Signatures[o] = append([]solana.SignatureInfo{Sig(tx.Signature, tx.BlockTime)}, c.Signatures[o]...)
	}
}
