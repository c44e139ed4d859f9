package stub

import (
	"context"
	"sync"
	"sync/atomic"

	"solana-wallet-tracker/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
// Signatures are served newest-first with before/until/limit applied.
type RPCClient struct {
	mu            sync.RWMutex
	Transactions  map[string]*solana.Transaction
	Signatures    map[string][]solana.SignatureInfo
	TokenAccounts map[string][]solana.TokenAccount // keyed by owner+"/"+mint
	Accounts      map[string]*solana.AccountInfo

	// Failures maps a signature, owner or pubkey to the error its call returns.
	// A "method key" entry fails only that method.
	Failures map[string]error

	// OnCall, if set, runs before every call.
	OnCall func(method, key string)

	calls sync.Map // method -> *atomic.Int64
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions:  make(map[string]*solana.Transaction),
		Signatures:    make(map[string][]solana.SignatureInfo),
		TokenAccounts: make(map[string][]solana.TokenAccount),
		Accounts:      make(map[string]*solana.AccountInfo),
		Failures:      make(map[string]error),
	}
}

func (c *RPCClient) record(method, key string) error {
	v, _ := c.calls.LoadOrStore(method, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
	if c.OnCall != nil {
		c.OnCall(method, key)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err, ok := c.Failures[method+" "+key]; ok {
		return err
	}
	return c.Failures[key]
}

// Calls returns how many times method was invoked.
func (c *RPCClient) Calls(method string) int64 {
	v, ok := c.calls.Load(method)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	if err := c.record("getTransaction", signature); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Transactions[signature], nil
}

// GetSignaturesForAddress pages the stub signature list like the real node.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	if err := c.record("getSignaturesForAddress", address); err != nil {
		return nil, err
	}
	c.mu.RLock()
	sigs := c.Signatures[address]
	c.mu.RUnlock()

	start := 0
	if opts != nil && opts.Before != "" {
		start = len(sigs)
		for i, s := range sigs {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}

	var out []solana.SignatureInfo
	for _, s := range sigs[start:] {
		if opts != nil && opts.Until != "" && s.Signature == opts.Until {
			break
		}
		out = append(out, s)
		if opts != nil && opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// GetTokenAccountsByOwner returns the stub token accounts for owner and mint.
func (c *RPCClient) GetTokenAccountsByOwner(_ context.Context, owner, mint string) ([]solana.TokenAccount, error) {
	if err := c.record("getTokenAccountsByOwner", owner); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TokenAccounts[owner+"/"+mint], nil
}

// GetAccountInfo returns the stub account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	if err := c.record("getAccountInfo", pubkey); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Accounts[pubkey], nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddSignatures sets the newest-first signature list for an address.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

// SetTokenBalance sets a single token account holding amount for owner.
func (c *RPCClient) SetTokenBalance(owner, mint, amount string, decimals int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TokenAccounts[owner+"/"+mint] = []solana.TokenAccount{{
		Pubkey:   owner + "-ata",
		Mint:     mint,
		Owner:    owner,
		Amount:   amount,
		Decimals: decimals,
	}}
}

// Fail makes every call keyed by key return err. A nil err clears it.
func (c *RPCClient) Fail(key string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.Failures, key)
		return
	}
	c.Failures[key] = err
}

// FailMethod makes only method calls keyed by key return err. A nil err clears it.
func (c *RPCClient) FailMethod(method, key string, err error) {
	c.Fail(method+" "+key, err)
}

var _ solana.RPCClient = (*RPCClient)(nil)
