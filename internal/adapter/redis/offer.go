package redisadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/pkg/redis"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

const (
	offerKeyPrefix = "dispatch:offer:"
	winnerSuffix   = ":winner"

	// noWinner marks an offer closed without an accepting driver
	// (expiry or rider cancel). A driver id never equals it.
	noWinner = "-"

	// Terminal offers stay readable for reconciliation after the
	// offer TTL has passed.
	terminalRetention = time.Hour
)

func offerKey(id uuid.UUID) string  { return offerKeyPrefix + id.String() }
func winnerKey(id uuid.UUID) string { return offerKeyPrefix + id.String() + winnerSuffix }

// OfferStore persists offers in the ephemeral store. The winner key is
// the arbitration point: the single conditional write that moves an
// offer out of OPEN, whoever gets there first.
type OfferStore struct {
	client redis.Client
}

func NewOfferStore(client redis.Client) *OfferStore {
	return &OfferStore{client: client}
}

// Create writes a fresh OPEN offer. The record outlives the offer TTL
// so late accepts resolve to a definitive answer instead of a miss.
func (s *OfferStore) Create(ctx context.Context, offer *models.Offer) error {
	const op = "OfferStore.Create"

	data, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.client.Set(ctx, offerKey(offer.ID), data, terminalRetention); err != nil {
		return transient(op, err)
	}
	return nil
}

// Get returns the offer, or types.ErrOfferNotFound when it is unknown.
func (s *OfferStore) Get(ctx context.Context, offerID uuid.UUID) (*models.Offer, error) {
	const op = "OfferStore.Get"

	data, err := s.client.Get(ctx, offerKey(offerID))
	if err != nil {
		if errors.Is(err, redis.ErrKeyNotFound) {
			return nil, types.ErrOfferNotFound
		}
		return nil, transient(op, err)
	}

	var offer models.Offer
	if err := json.Unmarshal(data, &offer); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &offer, nil
}

// ClaimWinner tries the conditional write that closes the offer. It
// returns the id that holds the claim and whether this call won it.
// Accepts pass the driver id; expiry and cancel pass CloseNoWinner.
func (s *OfferStore) ClaimWinner(ctx context.Context, offerID uuid.UUID, claimant string) (holder string, won bool, err error) {
	const op = "OfferStore.ClaimWinner"

	won, err = s.client.SetNX(ctx, winnerKey(offerID), []byte(claimant), terminalRetention)
	if err != nil {
		return "", false, transient(op, err)
	}
	if won {
		return claimant, true, nil
	}

	existing, err := s.client.Get(ctx, winnerKey(offerID))
	if err != nil {
		return "", false, transient(op, err)
	}
	return string(existing), false, nil
}

// CloseNoWinner is the claimant value for expiry and rider cancel.
func (s *OfferStore) CloseNoWinner() string { return noWinner }

// Winner returns the driver that holds the claim, or nil when the
// offer is still open or was closed without a winner.
func (s *OfferStore) Winner(ctx context.Context, offerID uuid.UUID) (*uuid.UUID, error) {
	const op = "OfferStore.Winner"

	data, err := s.client.Get(ctx, winnerKey(offerID))
	if err != nil {
		if errors.Is(err, redis.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, transient(op, err)
	}
	if string(data) == noWinner {
		return nil, nil
	}
	id, err := uuid.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &id, nil
}

// UpdateRecipients rewrites the recipient set of a live offer without
// touching its retention TTL.
func (s *OfferStore) UpdateRecipients(ctx context.Context, offer *models.Offer) error {
	const op = "OfferStore.UpdateRecipients"

	data, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.client.Set(ctx, offerKey(offer.ID), data, redis.KeepTTL); err != nil {
		return transient(op, err)
	}
	return nil
}

// SaveTerminal rewrites the offer record in its terminal state. The
// winner key already settled the outcome; this write is the readable
// projection of it.
func (s *OfferStore) SaveTerminal(ctx context.Context, offer *models.Offer) error {
	const op = "OfferStore.SaveTerminal"

	if !offer.State.Terminal() {
		return fmt.Errorf("%s: state %s is not terminal", op, offer.State)
	}
	data, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.client.Set(ctx, offerKey(offer.ID), data, terminalRetention); err != nil {
		return transient(op, err)
	}
	return nil
}
