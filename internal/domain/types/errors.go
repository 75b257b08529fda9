package types

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDriverNotFound = errors.New("driver not found")

	ErrDriverNotAvailable = errors.New("driver is not available")
	ErrDriverNotVerified  = errors.New("driver is not verified")
	ErrDriverBlocked      = errors.New("driver is blocked")

	ErrOfferNotFound  = errors.New("offer not found or expired")
	ErrOfferNotOpen   = errors.New("offer is no longer open")
	ErrOfferTaken     = errors.New("offer already accepted by another driver")
	ErrNotRecipient   = errors.New("driver is not a recipient of this offer")
	ErrRiderMismatch  = errors.New("offer belongs to another rider")
	ErrNoCandidates   = errors.New("no reachable driver found")
	ErrEmptyRecipients = errors.New("recipient list is empty")

	ErrSyncInProgress = errors.New("sync run already in progress")

	ErrTransientStore     = errors.New("transient store failure")
	ErrRoutingUnavailable = errors.New("routing provider unavailable")
	ErrSystemUnavailable  = errors.New("system temporarily unavailable")

	ErrNotFound = errors.New("requested item not found")
)
