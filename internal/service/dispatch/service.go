// Package dispatch is the offer state machine: fan-out, first-accept
// arbitration, expiry and rider cancel.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/metrics"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

const serviceName = "dispatch"

type Service struct {
	offers    OfferStore
	positions PositionStore
	drivers   DriverRepo
	notifier  Notifier
	producer  MatchPublisher

	offerTTL time.Duration
	log      logger.Logger
	now      func() time.Time

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

func New(offers OfferStore, positions PositionStore, drivers DriverRepo, notifier Notifier, producer MatchPublisher, offerTTL time.Duration, log logger.Logger) *Service {
	return &Service{
		offers:    offers,
		positions: positions,
		drivers:   drivers,
		notifier:  notifier,
		producer:  producer,
		offerTTL:  offerTTL,
		log:       log,
		now:       time.Now,
		timers:    make(map[uuid.UUID]*time.Timer),
	}
}

// OpenOffer creates an OPEN offer and fans it out to every candidate
// that is still reachable and available. The nearby query produced the
// candidates, but reachability is re-checked here: the list may be
// seconds old.
func (s *Service) OpenOffer(ctx context.Context, riderID uuid.UUID, pickup, destination models.GeoPoint, fare, distanceKm float64, candidates []uuid.UUID) (*models.Offer, error) {
	ctx = wrap.WithAction(ctx, types.ActionOfferOpened)

	offerID, err := uuid.New()
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	ctx = wrap.WithOfferID(ctx, offerID.String())

	recipients := s.filterRecipients(ctx, candidates)
	if len(recipients) == 0 {
		if err := s.notifier.RideRequestFailed(ctx, riderID, offerID, "no drivers available"); err != nil {
			s.log.Warn(ctx, "failed to notify rider about empty dispatch", "err", err.Error())
		}
		return nil, wrap.Error(ctx, types.ErrNoCandidates)
	}

	now := s.now().UTC()
	offer := &models.Offer{
		ID:          offerID,
		RiderID:     riderID,
		Pickup:      pickup,
		Destination: destination,
		Fare:        fare,
		DistanceKm:  distanceKm,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.offerTTL),
		Recipients:  recipients,
		State:       types.OfferOpen,
	}

	if err := s.offers.Create(ctx, offer); err != nil {
		return nil, wrap.Error(ctx, err)
	}

	for _, driverID := range recipients {
		if err := s.notifier.RideRequest(ctx, driverID, offer); err != nil {
			// Best effort: the recipient stays in the set and the
			// 15s clock keeps running either way.
			s.log.Warn(ctx, "ride request delivery failed", "driver_id", driverID, "err", err.Error())
		}
	}

	metrics.OpenOffersGauge.WithLabelValues(serviceName).Inc()
	s.scheduleExpiry(offer)

	s.log.Info(ctx, "offer opened",
		"rider_id", riderID,
		"recipients", len(recipients),
		"expires_at", offer.ExpiresAt,
	)
	return offer, nil
}

// filterRecipients keeps candidates that hold a live channel and an
// unexpired, available position record.
func (s *Service) filterRecipients(ctx context.Context, candidates []uuid.UUID) []uuid.UUID {
	recipients := make([]uuid.UUID, 0, len(candidates))
	for _, id := range candidates {
		if !s.notifier.Reachable(id) {
			continue
		}
		rec, err := s.positions.Get(ctx, id)
		if err != nil || !rec.IsOnline || !rec.IsAvailable {
			continue
		}
		recipients = append(recipients, id)
	}
	return recipients
}

// Accept runs the first-accept-wins arbitration for one driver.
// The notifications it emits are terminal for the driver: either
// accept:success or accept:failed with a reason. State always takes
// precedence over notification delivery.
func (s *Service) Accept(ctx context.Context, offerID, driverID uuid.UUID) error {
	ctx = wrap.WithAction(ctx, "accept_offer")
	ctx = wrap.WithOfferID(ctx, offerID.String())

	offer, err := s.loadOfferRetry(ctx, offerID)
	if err != nil {
		if errors.Is(err, types.ErrOfferNotFound) {
			s.failAccept(ctx, driverID, offerID, types.ReasonExpiredOrGone)
			return wrap.Error(ctx, types.ErrOfferNotFound)
		}
		s.failAccept(ctx, driverID, offerID, types.ReasonSystemUnavailable)
		return wrap.Error(ctx, fmt.Errorf("%w: %w", types.ErrSystemUnavailable, err))
	}

	// Recovery path: the winner re-requests an offer it already holds,
	// e.g. after missing its accept:success frame.
	if offer.State == types.OfferAccepted && offer.Winner != nil && *offer.Winner == driverID {
		if err := s.notifier.AcceptSuccess(ctx, driverID, offer); err != nil {
			s.log.Warn(ctx, "accept success redelivery failed", "driver_id", driverID, "err", err.Error())
		}
		return nil
	}

	// Another driver already won and the projection caught up before
	// this accept landed.
	if offer.State == types.OfferAccepted {
		s.failAccept(ctx, driverID, offerID, types.ReasonTaken)
		return wrap.Error(ctx, types.ErrOfferTaken)
	}

	if offer.State.Terminal() || !offer.HasRecipient(driverID) {
		s.failAccept(ctx, driverID, offerID, types.ReasonExpiredOrGone)
		return wrap.Error(ctx, types.ErrOfferNotOpen)
	}

	holder, won, err := s.claimRetry(ctx, offerID, driverID.String())
	if err != nil {
		metrics.RecordAcceptAttempt(serviceName, "error")
		s.failAccept(ctx, driverID, offerID, types.ReasonSystemUnavailable)
		return wrap.Error(ctx, fmt.Errorf("%w: %w", types.ErrSystemUnavailable, err))
	}

	if !won {
		if holder == s.offers.CloseNoWinner() {
			metrics.RecordAcceptAttempt(serviceName, "expired")
			s.failAccept(ctx, driverID, offerID, types.ReasonExpiredOrGone)
			return wrap.Error(ctx, types.ErrOfferNotOpen)
		}
		metrics.RecordAcceptAttempt(serviceName, "taken")
		s.failAccept(ctx, driverID, offerID, types.ReasonTaken)
		return wrap.Error(ctx, types.ErrOfferTaken)
	}

	// This driver owns the offer from here on. Everything below is
	// best-effort follow-up; failures are logged, never rolled back.
	s.cancelTimer(offerID)
	metrics.RecordAcceptAttempt(serviceName, "won")
	metrics.RecordOfferOutcome(serviceName, "accepted")

	if err := s.positions.SetAvailability(ctx, driverID, false); err != nil {
		s.log.Warn(ctx, "failed to mark winner busy", "driver_id", driverID, "err", err.Error())
	}

	winner := driverID
	offer.State = types.OfferAccepted
	offer.Winner = &winner
	if err := s.offers.SaveTerminal(ctx, offer); err != nil {
		s.log.Warn(ctx, "failed to persist accepted offer projection", "err", err.Error())
	}

	driverName := ""
	if driver, err := s.drivers.GetByID(ctx, driverID); err == nil {
		driverName = driver.Name
	}

	// Rider offline is fine: the acceptance is authoritative and the
	// rider reconciles by querying the offer on reconnect.
	if err := s.notifier.RideAccepted(ctx, offer.RiderID, offerID, driverID, driverName); err != nil {
		s.log.Warn(ctx, "ride accepted delivery failed", "rider_id", offer.RiderID, "err", err.Error())
	}
	if err := s.notifier.AcceptSuccess(ctx, driverID, offer); err != nil {
		s.log.Warn(ctx, "accept success delivery failed", "driver_id", driverID, "err", err.Error())
	}
	for _, loser := range offer.Recipients {
		if loser == driverID {
			continue
		}
		if err := s.notifier.RideRequestCancelled(ctx, loser, offerID, types.ReasonAcceptedByOther); err != nil {
			s.log.Warn(ctx, "loser cancellation delivery failed", "driver_id", loser, "err", err.Error())
		}
	}

	s.publishMatched(ctx, offer, driverID, driverName)

	s.log.Info(wrap.WithAction(ctx, types.ActionOfferAccepted), "offer accepted", "driver_id", driverID)
	return nil
}

// Reject removes the driver from the recipient set. The offer state is
// untouched: even the last rejection leaves the rider's timer running.
func (s *Service) Reject(ctx context.Context, offerID, driverID uuid.UUID) error {
	ctx = wrap.WithAction(ctx, "reject_offer")
	ctx = wrap.WithOfferID(ctx, offerID.String())

	offer, err := s.loadOfferRetry(ctx, offerID)
	if err != nil {
		if errors.Is(err, types.ErrOfferNotFound) {
			return nil
		}
		return wrap.Error(ctx, err)
	}
	if offer.State.Terminal() || !offer.HasRecipient(driverID) {
		return nil
	}

	offer.RemoveRecipient(driverID)
	if err := s.offers.UpdateRecipients(ctx, offer); err != nil {
		return wrap.Error(ctx, err)
	}

	s.log.Info(ctx, "offer rejected", "driver_id", driverID, "recipients_left", len(offer.Recipients))
	return nil
}

// Cancel lets the originating rider close an OPEN offer. Current
// recipients are told; the rider gets no further events.
func (s *Service) Cancel(ctx context.Context, offerID, riderID uuid.UUID) error {
	ctx = wrap.WithAction(ctx, "cancel_offer")
	ctx = wrap.WithOfferID(ctx, offerID.String())

	offer, err := s.loadOfferRetry(ctx, offerID)
	if err != nil {
		return wrap.Error(ctx, err)
	}
	if offer.RiderID != riderID {
		return wrap.Error(ctx, types.ErrRiderMismatch)
	}
	if offer.State.Terminal() {
		return wrap.Error(ctx, types.ErrOfferNotOpen)
	}

	holder, won, err := s.offers.ClaimWinner(ctx, offerID, s.offers.CloseNoWinner())
	if err != nil {
		return wrap.Error(ctx, err)
	}
	if !won {
		// Someone accepted (or expiry fired) between load and claim.
		if holder != s.offers.CloseNoWinner() {
			return wrap.Error(ctx, types.ErrOfferTaken)
		}
		return wrap.Error(ctx, types.ErrOfferNotOpen)
	}

	s.cancelTimer(offerID)
	metrics.RecordOfferOutcome(serviceName, "cancelled")

	offer.State = types.OfferExpired
	if err := s.offers.SaveTerminal(ctx, offer); err != nil {
		s.log.Warn(ctx, "failed to persist cancelled offer projection", "err", err.Error())
	}

	for _, driverID := range offer.Recipients {
		if err := s.notifier.RideRequestCancelled(ctx, driverID, offerID, types.ReasonRiderCancelled); err != nil {
			s.log.Warn(ctx, "cancel delivery failed", "driver_id", driverID, "err", err.Error())
		}
	}

	s.log.Info(ctx, "offer cancelled by rider", "rider_id", riderID)
	return nil
}

// GetOffer returns the current view of an offer, reconciled against
// the arbitration key. Used by riders and drivers to recover state
// after a reconnect.
func (s *Service) GetOffer(ctx context.Context, offerID uuid.UUID) (*models.Offer, error) {
	ctx = wrap.WithOfferID(ctx, offerID.String())

	offer, err := s.loadOfferRetry(ctx, offerID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	if offer.State == types.OfferOpen {
		// The winner key settles before the projection is rewritten.
		winner, err := s.offers.Winner(ctx, offerID)
		if err == nil && winner != nil {
			offer.State = types.OfferAccepted
			offer.Winner = winner
		} else if s.now().UTC().After(offer.ExpiresAt) {
			offer.State = types.OfferExpired
		}
	}
	return offer, nil
}

// Close stops every pending expiry timer.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

/* ================= expiry ================= */

func (s *Service) scheduleExpiry(offer *models.Offer) {
	offerID := offer.ID
	riderID := offer.RiderID

	s.mu.Lock()
	s.timers[offerID] = time.AfterFunc(time.Until(offer.ExpiresAt), func() {
		s.expire(offerID, riderID)
	})
	s.mu.Unlock()
}

func (s *Service) cancelTimer(offerID uuid.UUID) {
	s.mu.Lock()
	if timer, ok := s.timers[offerID]; ok {
		timer.Stop()
		delete(s.timers, offerID)
	}
	s.mu.Unlock()
}

// expire closes an offer that outlived its TTL. It races accepts
// through the same claim key, so a concurrent accept either beats the
// expiry or observes it; an offer never goes out both ways. Only the
// rider is told; non-responding drivers get nothing further.
func (s *Service) expire(offerID, riderID uuid.UUID) {
	ctx := wrap.WithAction(context.Background(), types.ActionOfferExpired)
	ctx = wrap.WithOfferID(ctx, offerID.String())

	s.cancelTimer(offerID)

	_, won, err := s.claimRetry(ctx, offerID, s.offers.CloseNoWinner())
	if err != nil {
		s.log.Error(ctx, "expiry claim failed", err)
		return
	}
	if !won {
		// Accepted or cancelled first.
		return
	}

	metrics.RecordOfferOutcome(serviceName, "expired")

	offer, err := s.loadOfferRetry(ctx, offerID)
	if err == nil {
		offer.State = types.OfferExpired
		if err := s.offers.SaveTerminal(ctx, offer); err != nil {
			s.log.Warn(ctx, "failed to persist expired offer projection", "err", err.Error())
		}
	}

	if err := s.notifier.RideRequestExpired(ctx, riderID, offerID); err != nil {
		s.log.Warn(ctx, "expiry delivery failed", "rider_id", riderID, "err", err.Error())
	}

	s.log.Info(ctx, "offer expired", "rider_id", riderID)
}

/* ================= helpers ================= */

// loadOfferRetry reads the offer, retrying once on a transient store
// failure.
func (s *Service) loadOfferRetry(ctx context.Context, offerID uuid.UUID) (*models.Offer, error) {
	offer, err := s.offers.Get(ctx, offerID)
	if err != nil && errors.Is(err, types.ErrTransientStore) {
		offer, err = s.offers.Get(ctx, offerID)
	}
	return offer, err
}

// claimRetry attempts the arbitration write, retrying once on a
// transient store failure. Safe: SetNX is idempotent for the same
// claimant.
func (s *Service) claimRetry(ctx context.Context, offerID uuid.UUID, claimant string) (string, bool, error) {
	holder, won, err := s.offers.ClaimWinner(ctx, offerID, claimant)
	if err != nil && errors.Is(err, types.ErrTransientStore) {
		holder, won, err = s.offers.ClaimWinner(ctx, offerID, claimant)
	}
	return holder, won, err
}

func (s *Service) failAccept(ctx context.Context, driverID, offerID uuid.UUID, reason string) {
	if err := s.notifier.AcceptFailed(ctx, driverID, offerID, reason); err != nil {
		s.log.Warn(ctx, "accept failed delivery failed", "driver_id", driverID, "err", err.Error())
	}
}

func (s *Service) publishMatched(ctx context.Context, offer *models.Offer, driverID uuid.UUID, driverName string) {
	if s.producer == nil {
		return
	}

	msg := models.RideMatchedMessage{
		OfferID:     offer.ID,
		RiderID:     offer.RiderID,
		DriverID:    driverID,
		DriverName:  driverName,
		Pickup:      offer.Pickup,
		Destination: offer.Destination,
		Fare:        offer.Fare,
		DistanceKm:  offer.DistanceKm,
		MatchedAt:   s.now().UTC(),
	}
	if lc, ok := ctx.Value(wrap.LogCtxKey).(wrap.LogCtx); ok {
		msg.CorrelationID = lc.RequestID
	}

	err := s.producer.PublishRideMatched(ctx, msg)
	metrics.RecordRabbitMQPublish(serviceName, "ride.matched", err)
	if err != nil {
		s.log.Error(ctx, "ride.matched publish failed", err)
	}
}
