package types

// Enum для статуса оффера
type OfferState string

const (
	OfferOpen     OfferState = "OPEN"
	OfferAccepted OfferState = "ACCEPTED"
	OfferExpired  OfferState = "EXPIRED"
)

func (s OfferState) String() string {
	return string(s)
}

// Terminal reports whether the state admits no further transitions.
func (s OfferState) Terminal() bool {
	return s == OfferAccepted || s == OfferExpired
}

// Enum для роли пользователя
type UserRole string

func (r UserRole) String() string {
	return string(r)
}

const (
	RiderRole  UserRole = "RIDER"
	DriverRole UserRole = "DRIVER"
	AdminRole  UserRole = "ADMIN"
)

// Enum для типов пользователей
type EntityType string

const (
	Driver EntityType = "driver"
	Rider  EntityType = "rider"
)

// CancelReason values sent with ride:request:cancelled.
const (
	ReasonAcceptedByOther = "accepted_by_other"
	ReasonRiderCancelled  = "rider_cancelled"
)

// Accept failure reasons sent with ride:accept:failed.
const (
	ReasonTaken             = "taken"
	ReasonExpiredOrGone     = "expired_or_gone"
	ReasonSystemUnavailable = "system_unavailable"
)
