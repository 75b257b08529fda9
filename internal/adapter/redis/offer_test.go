package redisadapter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/pkg/redis"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

func testOffer(t *testing.T, recipients ...uuid.UUID) *models.Offer {
	t.Helper()
	id := newUUID(t)
	rider := newUUID(t)
	now := time.Now().UTC()
	return &models.Offer{
		ID:          id,
		RiderID:     rider,
		Pickup:      models.GeoPoint{Lng: 76.889709, Lat: 43.238949},
		Destination: models.GeoPoint{Lng: 76.945465, Lat: 43.226081},
		Fare:        1200,
		DistanceKm:  4.7,
		CreatedAt:   now,
		ExpiresAt:   now.Add(15 * time.Second),
		Recipients:  recipients,
		State:       types.OfferOpen,
	}
}

func TestOfferStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewOfferStore(redis.NewInMem())

	offer := testOffer(t, newUUID(t), newUUID(t))
	if err := store.Create(ctx, offer); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, offer.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != types.OfferOpen || len(got.Recipients) != 2 {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestOfferStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	store := NewOfferStore(redis.NewInMem())

	if _, err := store.Get(ctx, newUUID(t)); !errors.Is(err, types.ErrOfferNotFound) {
		t.Fatalf("missing offer: got %v, want ErrOfferNotFound", err)
	}
}

func TestOfferStore_ClaimWinner_FirstWins(t *testing.T) {
	ctx := context.Background()
	store := NewOfferStore(redis.NewInMem())

	offer := testOffer(t)
	d1 := newUUID(t)
	d2 := newUUID(t)

	holder, won, err := store.ClaimWinner(ctx, offer.ID, d1.String())
	if err != nil || !won || holder != d1.String() {
		t.Fatalf("first claim: holder=%q won=%v err=%v", holder, won, err)
	}

	holder, won, err = store.ClaimWinner(ctx, offer.ID, d2.String())
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if won {
		t.Fatal("second claim must lose")
	}
	if holder != d1.String() {
		t.Fatalf("loser must learn the holder: got %q, want %q", holder, d1)
	}
}

func TestOfferStore_ClaimWinner_ExpiryBeatsAccept(t *testing.T) {
	ctx := context.Background()
	store := NewOfferStore(redis.NewInMem())

	offer := testOffer(t)

	// The expiry path closed the offer first.
	holder, won, err := store.ClaimWinner(ctx, offer.ID, store.CloseNoWinner())
	if err != nil || !won || holder != store.CloseNoWinner() {
		t.Fatalf("expiry claim: holder=%q won=%v err=%v", holder, won, err)
	}

	driver := newUUID(t)
	holder, won, err = store.ClaimWinner(ctx, offer.ID, driver.String())
	if err != nil || won {
		t.Fatalf("late accept must lose: won=%v err=%v", won, err)
	}
	if holder != store.CloseNoWinner() {
		t.Fatalf("late accept must see the no-winner marker, got %q", holder)
	}

	winner, err := store.Winner(ctx, offer.ID)
	if err != nil {
		t.Fatalf("winner: %v", err)
	}
	if winner != nil {
		t.Fatalf("no-winner close must read as nil, got %v", winner)
	}
}

func TestOfferStore_ClaimWinner_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewOfferStore(redis.NewInMem())

	offer := testOffer(t)

	const n = 16
	drivers := make([]uuid.UUID, n)
	for i := range drivers {
		drivers[i] = newUUID(t)
	}

	var wg sync.WaitGroup
	wins := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(d uuid.UUID) {
			defer wg.Done()
			if _, won, err := store.ClaimWinner(ctx, offer.ID, d.String()); err == nil && won {
				wins <- d.String()
			}
		}(drivers[i])
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("exactly one claimant must win, got %d", len(winners))
	}

	got, err := store.Winner(ctx, offer.ID)
	if err != nil || got == nil {
		t.Fatalf("winner: %v %v", got, err)
	}
	if got.String() != winners[0] {
		t.Fatalf("winner key mismatch: %v vs %v", got, winners[0])
	}
}

func TestOfferStore_WinnerOpenOffer(t *testing.T) {
	ctx := context.Background()
	store := NewOfferStore(redis.NewInMem())

	winner, err := store.Winner(ctx, newUUID(t))
	if err != nil {
		t.Fatalf("winner: %v", err)
	}
	if winner != nil {
		t.Fatalf("open offer has no winner, got %v", winner)
	}
}

func TestOfferStore_SaveTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewOfferStore(redis.NewInMem())

	offer := testOffer(t, newUUID(t))
	if err := store.Create(ctx, offer); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.SaveTerminal(ctx, offer); err == nil {
		t.Fatal("saving an OPEN offer as terminal must fail")
	}

	winner := offer.Recipients[0]
	offer.State = types.OfferAccepted
	offer.Winner = &winner
	if err := store.SaveTerminal(ctx, offer); err != nil {
		t.Fatalf("save terminal: %v", err)
	}

	got, err := store.Get(ctx, offer.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != types.OfferAccepted || got.Winner == nil || *got.Winner != winner {
		t.Fatalf("terminal projection mismatch: %+v", got)
	}
}

func TestOfferStore_UpdateRecipients(t *testing.T) {
	ctx := context.Background()
	store := NewOfferStore(redis.NewInMem())

	d1 := newUUID(t)
	d2 := newUUID(t)
	offer := testOffer(t, d1, d2)
	if err := store.Create(ctx, offer); err != nil {
		t.Fatalf("create: %v", err)
	}

	offer.RemoveRecipient(d1)
	if err := store.UpdateRecipients(ctx, offer); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.Get(ctx, offer.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Recipients) != 1 || got.Recipients[0] != d2 {
		t.Fatalf("recipients after reject: %v", got.Recipients)
	}
	if got.State != types.OfferOpen {
		t.Fatalf("reject must not change state: %v", got.State)
	}
}
