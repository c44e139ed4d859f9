package domain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// AddressValidator checks the format of a ledger address.
type AddressValidator func(address string) error

// WatchList is the bounded set of watched accounts.
// Addresses are unique within the list.
type WatchList struct {
	mu       sync.RWMutex
	validate AddressValidator
	accounts []WatchedAccount
	byAddr   map[string]int
}

// NewWatchList creates an empty watch list.
// A nil validator accepts any non-empty address.
func NewWatchList(validate AddressValidator) *WatchList {
	return &WatchList{
		validate: validate,
		byAddr:   make(map[string]int),
	}
}

// NormalizeAddress trims surrounding whitespace.
// Base58 is case-sensitive, so case is preserved.
func NormalizeAddress(address string) string {
	return strings.TrimSpace(address)
}

// Add validates and appends a new account, assigning it an ID.
func (l *WatchList) Add(address, displayName, group string) (WatchedAccount, error) {
	address = NormalizeAddress(address)
	if address == "" {
		return WatchedAccount{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if l.validate != nil {
		if err := l.validate(address); err != nil {
			return WatchedAccount{}, err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byAddr[address]; exists {
		return WatchedAccount{}, fmt.Errorf("%w: %s", ErrDuplicateAccount, address)
	}

	if displayName == "" {
		displayName = ShortAddress(address)
	}
	acc := WatchedAccount{
		ID:          uuid.NewString(),
		Address:     address,
		DisplayName: displayName,
		Group:       group,
	}
	l.byAddr[address] = len(l.accounts)
	l.accounts = append(l.accounts, acc)
	return acc, nil
}

// Remove deletes an account by address. Returns false if it was not watched.
func (l *WatchList) Remove(address string) bool {
	address = NormalizeAddress(address)

	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.byAddr[address]
	if !ok {
		return false
	}
	l.accounts = append(l.accounts[:idx], l.accounts[idx+1:]...)
	l.reindex()
	return true
}

// Replace swaps the whole list. Invalid or duplicate entries fail the call
// and leave the list unchanged.
func (l *WatchList) Replace(accounts []WatchedAccount) error {
	next := make([]WatchedAccount, 0, len(accounts))
	seen := make(map[string]bool, len(accounts))
	for _, acc := range accounts {
		acc.Address = NormalizeAddress(acc.Address)
		if l.validate != nil {
			if err := l.validate(acc.Address); err != nil {
				return err
			}
		}
		if seen[acc.Address] {
			return fmt.Errorf("%w: %s", ErrDuplicateAccount, acc.Address)
		}
		seen[acc.Address] = true
		if acc.ID == "" {
			acc.ID = uuid.NewString()
		}
		if acc.DisplayName == "" {
			acc.DisplayName = ShortAddress(acc.Address)
		}
		next = append(next, acc)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts = next
	l.reindex()
	return nil
}

// Accounts returns a copy of the watched accounts in insertion order.
func (l *WatchList) Accounts() []WatchedAccount {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]WatchedAccount, len(l.accounts))
	copy(out, l.accounts)
	return out
}

// Addresses returns the watched addresses in insertion order.
func (l *WatchList) Addresses() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(l.accounts))
	for i, acc := range l.accounts {
		out[i] = acc.Address
	}
	return out
}

// Len returns the number of watched accounts.
func (l *WatchList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.accounts)
}

func (l *WatchList) reindex() {
	l.byAddr = make(map[string]int, len(l.accounts))
	for i, acc := range l.accounts {
		l.byAddr[acc.Address] = i
	}
}

// ShortAddress abbreviates an address as "abcd...wxyz".
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:4] + "..." + address[len(address)-4:]
}
