package domain

import "errors"

// Sentinel errors used throughout the application.
// The orchestrator decides which of these end a run and which only drop
// a single item or recipient.
var (
	ErrNoContent          = errors.New("no items could be fetched")
	ErrInvalidSender      = errors.New("sender is not a valid mail address")
	ErrInvalidRecipient   = errors.New("recipient is not a valid mail address")
	ErrItemNotFound       = errors.New("item not found")
	ErrIncompleteItem     = errors.New("item record is missing required fields")
	ErrSessionUnavailable = errors.New("mail session unavailable")
	ErrStoreRead          = errors.New("failed to read recipients from store")
	ErrTemplate           = errors.New("failed to load digest template")
	ErrRunInProgress      = errors.New("a digest run is already in progress")
	ErrNoRunYet           = errors.New("no digest run has finished yet")
)
