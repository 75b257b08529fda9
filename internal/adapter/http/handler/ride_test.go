package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/service/nearby"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

type fakeDispatch struct {
	gotCandidates []uuid.UUID
	gotFare       float64
	openErr       error
	cancelErr     error
	offer         *models.Offer
}

func (f *fakeDispatch) OpenOffer(_ context.Context, riderID uuid.UUID, pickup, destination models.GeoPoint, fare, distanceKm float64, candidates []uuid.UUID) (*models.Offer, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.gotCandidates = candidates
	f.gotFare = fare

	id, err := uuid.New()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &models.Offer{
		ID:          id,
		RiderID:     riderID,
		Pickup:      pickup,
		Destination: destination,
		Fare:        fare,
		DistanceKm:  distanceKm,
		CreatedAt:   now,
		ExpiresAt:   now.Add(15 * time.Second),
		Recipients:  candidates,
		State:       types.OfferOpen,
	}, nil
}

func (f *fakeDispatch) Cancel(context.Context, uuid.UUID, uuid.UUID) error {
	return f.cancelErr
}

func (f *fakeDispatch) GetOffer(context.Context, uuid.UUID) (*models.Offer, error) {
	if f.offer == nil {
		return nil, types.ErrOfferNotFound
	}
	return f.offer, nil
}

type fakeNearby struct {
	candidates []models.Candidate
	err        error
}

func (f *fakeNearby) FindNearby(context.Context, float64, float64, nearby.Constraints) (*models.NearbyResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.NearbyResult{Candidates: f.candidates, SearchRadius: 1}, nil
}

func newRideFixture(t *testing.T) (*Ride, *fakeDispatch, *fakeNearby) {
	t.Helper()
	dispatch := &fakeDispatch{}
	near := &fakeNearby{}
	h := NewRide(dispatch, near, 5, logger.InitLogger("ride-test", logger.LevelError))
	return h, dispatch, near
}

func riderCtx(t *testing.T) (context.Context, uuid.UUID) {
	t.Helper()
	id, err := uuid.New()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	user := &models.User{ID: id, Role: types.RiderRole}
	return models.WithUser(context.Background(), user), id
}

func candidateList(t *testing.T, n int) []models.Candidate {
	t.Helper()
	out := make([]models.Candidate, 0, n)
	for range n {
		id, err := uuid.New()
		if err != nil {
			t.Fatalf("uuid: %v", err)
		}
		out = append(out, models.Candidate{DriverID: id})
	}
	return out
}

func createRideBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]float64{
		"pickup_latitude":       51.0909,
		"pickup_longitude":      71.4187,
		"destination_latitude":  51.1605,
		"destination_longitude": 71.4704,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewBuffer(body)
}

func TestCreateRideCapsFanout(t *testing.T) {
	h, dispatch, near := newRideFixture(t)
	near.candidates = candidateList(t, 8)

	ctx, _ := riderCtx(t)
	r := httptest.NewRequest(http.MethodPost, "/rides", createRideBody(t)).WithContext(ctx)
	w := httptest.NewRecorder()

	h.CreateRide(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	if len(dispatch.gotCandidates) != 5 {
		t.Fatalf("fanout: got %d candidates, want 5", len(dispatch.gotCandidates))
	}

	var resp struct {
		RideRequest struct {
			Status          string  `json:"status"`
			DriversNotified int     `json:"drivers_notified"`
			EstimatedFare   float64 `json:"estimated_fare"`
		} `json:"ride_request"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RideRequest.Status != "OPEN" {
		t.Fatalf("status: got %q", resp.RideRequest.Status)
	}
	if resp.RideRequest.DriversNotified != 5 {
		t.Fatalf("drivers_notified: got %d", resp.RideRequest.DriversNotified)
	}
	if resp.RideRequest.EstimatedFare != dispatch.gotFare {
		t.Fatalf("fare mismatch: response %v, dispatched %v", resp.RideRequest.EstimatedFare, dispatch.gotFare)
	}
}

func TestCreateRideFareGrowsWithDistance(t *testing.T) {
	h, dispatch, near := newRideFixture(t)
	near.candidates = candidateList(t, 1)

	ctx, _ := riderCtx(t)
	r := httptest.NewRequest(http.MethodPost, "/rides", createRideBody(t)).WithContext(ctx)
	w := httptest.NewRecorder()

	h.CreateRide(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d", w.Code)
	}
	// ~8.5km across town must cost more than the flat base.
	if dispatch.gotFare <= baseFare {
		t.Fatalf("fare %v must exceed base %v", dispatch.gotFare, baseFare)
	}
}

func TestCreateRideRejectsBadCoordinates(t *testing.T) {
	h, _, _ := newRideFixture(t)

	body, _ := json.Marshal(map[string]float64{
		"pickup_latitude":       200,
		"pickup_longitude":      71.4187,
		"destination_latitude":  51.1605,
		"destination_longitude": 71.4704,
	})
	ctx, _ := riderCtx(t)
	r := httptest.NewRequest(http.MethodPost, "/rides", bytes.NewBuffer(body)).WithContext(ctx)
	w := httptest.NewRecorder()

	h.CreateRide(w, r)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want 422", w.Code)
	}
}

func TestCreateRideNoCandidates(t *testing.T) {
	h, _, _ := newRideFixture(t)

	ctx, _ := riderCtx(t)
	r := httptest.NewRequest(http.MethodPost, "/rides", createRideBody(t)).WithContext(ctx)
	w := httptest.NewRecorder()

	h.CreateRide(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", w.Code)
	}
}

func TestCancelRideAfterAcceptConflicts(t *testing.T) {
	h, dispatch, _ := newRideFixture(t)
	dispatch.cancelErr = types.ErrOfferTaken

	ctx, _ := riderCtx(t)
	offerID, err := uuid.New()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/rides/%s/cancel", offerID), nil).WithContext(ctx)
	r.SetPathValue("ride_id", offerID.String())
	w := httptest.NewRecorder()

	h.CancelRide(w, r)

	if w.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want 409", w.Code)
	}
}

func TestGetRideHidesForeignOffers(t *testing.T) {
	h, dispatch, _ := newRideFixture(t)

	otherRider, err := uuid.New()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	offerID, err := uuid.New()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	dispatch.offer = &models.Offer{ID: offerID, RiderID: otherRider, State: types.OfferOpen}

	ctx, _ := riderCtx(t)
	r := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/rides/%s", offerID), nil).WithContext(ctx)
	r.SetPathValue("ride_id", offerID.String())
	w := httptest.NewRecorder()

	h.GetRide(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", w.Code)
	}
}
