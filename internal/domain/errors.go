package domain

import (
	"errors"
	"fmt"
)

// Sync engine errors.
var (
	// ErrInvalidAddress is returned when an account or asset identifier is not a
	// well-formed ledger address. No network call is made.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrRemoteUnavailable is returned when the ledger provider or price
	// aggregator could not serve a request.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrRateLimited is a RemoteUnavailable caused by provider throttling.
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrRemoteUnavailable)

	// ErrCancelled marks a cooperatively aborted refresh cycle.
	ErrCancelled = errors.New("cancelled")

	// ErrParseFailure is returned for malformed raw transactions.
	ErrParseFailure = errors.New("parse failure")

	// ErrEmptyWatchList is returned when a refresh is requested with no accounts.
	ErrEmptyWatchList = errors.New("watch list is empty")

	// ErrDuplicateAccount is returned when an address is already watched.
	ErrDuplicateAccount = errors.New("account already watched")

	// ErrRefreshInProgress is returned when a non-forced refresh finds another cycle running.
	ErrRefreshInProgress = errors.New("refresh already in progress")
)
