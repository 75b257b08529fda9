package wshandler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	redisadapter "github.com/Temutjin2k/dispatch-core/internal/adapter/redis"
	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/service/auth"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	"github.com/Temutjin2k/dispatch-core/pkg/redis"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
	ws "github.com/Temutjin2k/dispatch-core/pkg/wsHub"
)

type fakeResolver struct {
	mu     sync.Mutex
	byUser map[uuid.UUID]*models.Driver
}

func (f *fakeResolver) FindByUser(_ context.Context, userID uuid.UUID) (*models.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.byUser[userID]; ok {
		return d, nil
	}
	return nil, types.ErrDriverNotFound
}

type offerAction struct {
	offerID  uuid.UUID
	driverID uuid.UUID
}

type fakeDispatcher struct {
	mu      sync.Mutex
	accepts []offerAction
	rejects []offerAction
}

func (f *fakeDispatcher) Accept(_ context.Context, offerID, driverID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepts = append(f.accepts, offerAction{offerID, driverID})
	return nil
}

func (f *fakeDispatcher) Reject(_ context.Context, offerID, driverID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects = append(f.rejects, offerAction{offerID, driverID})
	return nil
}

func (f *fakeDispatcher) accepted() []offerAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]offerAction(nil), f.accepts...)
}

func (f *fakeDispatcher) rejected() []offerAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]offerAction(nil), f.rejects...)
}

type gwFixture struct {
	srv        *httptest.Server
	tokens     *auth.TokenService
	store      *redisadapter.PositionStore
	resolver   *fakeResolver
	dispatcher *fakeDispatcher
}

func newGatewayFixture(t *testing.T) *gwFixture {
	t.Helper()
	log := logger.InitLogger("gateway-test", logger.LevelError)

	f := &gwFixture{
		tokens:     auth.NewTokenService("test-secret", log),
		store:      redisadapter.NewPositionStore(redis.NewInMem(), 5*time.Minute),
		resolver:   &fakeResolver{byUser: make(map[uuid.UUID]*models.Driver)},
		dispatcher: &fakeDispatcher{},
	}

	hub := ws.NewConnHub(log)
	gateway := NewGateway(hub, f.tokens, f.resolver, f.store, f.dispatcher, log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", gateway.HandleWS)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	return f
}

func (f *gwFixture) signToken(t *testing.T, userID uuid.UUID, role types.UserRole) string {
	t.Helper()
	token, err := f.tokens.Sign(&models.User{ID: userID, Name: "test", Role: role}, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// newDriver registers a driver profile and returns its token and driver id.
func (f *gwFixture) newDriver(t *testing.T) (string, uuid.UUID) {
	t.Helper()
	userID := mustID(t)
	driverID := mustID(t)
	f.resolver.mu.Lock()
	f.resolver.byUser[userID] = &models.Driver{ID: driverID, UserID: userID, Name: "test", IsVerified: true}
	f.resolver.mu.Unlock()
	return f.signToken(t, userID, types.DriverRole), driverID
}

func (f *gwFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + token}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type clientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) clientFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame clientFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestGateway_RejectsBadToken(t *testing.T) {
	f := newGatewayFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer garbage"}})
	if err == nil {
		t.Fatal("dial must fail without a valid token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("resp: %+v", resp)
	}
}

func TestGateway_RejectsAdminChannel(t *testing.T) {
	f := newGatewayFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	token := f.signToken(t, mustID(t), types.AdminRole)
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + token}})
	if err == nil {
		t.Fatal("admins must not attach channels")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp: %+v", resp)
	}
}

func TestGateway_DriverRegisterCreatesPresence(t *testing.T) {
	f := newGatewayFixture(t)
	token, driverID := f.newDriver(t)

	conn := f.dial(t, token)
	sendFrame(t, conn, "user:register", map[string]any{
		"role":        "DRIVER",
		"coordinates": []float64{76.889709, 43.238949},
	})

	frame := readFrame(t, conn)
	if frame.Event != "user:registered" {
		t.Fatalf("event: %s", frame.Event)
	}
	var resp struct {
		Success   bool   `json:"success"`
		ChannelID string `json:"channelId"`
	}
	if err := json.Unmarshal(frame.Data, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success || resp.ChannelID != driverID.String() {
		t.Fatalf("resp: %+v", resp)
	}

	rec, err := f.store.Get(context.Background(), driverID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if !rec.IsOnline || !rec.IsAvailable || !rec.Connected {
		t.Fatalf("record: %+v", rec)
	}
}

func TestGateway_LocationUpdatePreservesAvailability(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	token, driverID := f.newDriver(t)

	conn := f.dial(t, token)
	sendFrame(t, conn, "user:register", map[string]any{
		"role":        "DRIVER",
		"coordinates": []float64{76.889709, 43.238949},
	})
	readFrame(t, conn)

	// Driver goes busy mid-session (offer accepted).
	if err := f.store.SetAvailability(ctx, driverID, false); err != nil {
		t.Fatalf("set availability: %v", err)
	}

	sendFrame(t, conn, "location:update", map[string]any{
		"coordinates": []float64{76.945465, 43.256949},
	})

	waitFor(t, func() bool {
		rec, err := f.store.Get(ctx, driverID)
		return err == nil && rec.Location.Lng == 76.945465
	})
	rec, _ := f.store.Get(ctx, driverID)
	if rec.IsAvailable {
		t.Fatal("location update must not reset busy state")
	}
}

func TestGateway_OfferActionsRouted(t *testing.T) {
	f := newGatewayFixture(t)
	token, driverID := f.newDriver(t)

	conn := f.dial(t, token)
	offerA := mustID(t)
	offerB := mustID(t)

	sendFrame(t, conn, "ride:accept", map[string]any{"requestId": offerA.String()})
	sendFrame(t, conn, "ride:reject", map[string]any{"requestId": offerB.String()})

	waitFor(t, func() bool {
		return len(f.dispatcher.accepted()) == 1 && len(f.dispatcher.rejected()) == 1
	})
	if got := f.dispatcher.accepted()[0]; got.offerID != offerA || got.driverID != driverID {
		t.Fatalf("accept: %+v", got)
	}
	if got := f.dispatcher.rejected()[0]; got.offerID != offerB || got.driverID != driverID {
		t.Fatalf("reject: %+v", got)
	}
}

func TestGateway_UnknownEventClosesChannel(t *testing.T) {
	f := newGatewayFixture(t)
	token, _ := f.newDriver(t)

	conn := f.dial(t, token)
	sendFrame(t, conn, "ride:teleport", map[string]any{})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("server must close the channel on an unknown event")
	}
}

func TestGateway_RiderCannotUpdateLocation(t *testing.T) {
	f := newGatewayFixture(t)
	token := f.signToken(t, mustID(t), types.RiderRole)

	conn := f.dial(t, token)
	sendFrame(t, conn, "user:register", map[string]any{"role": "RIDER"})
	readFrame(t, conn)

	sendFrame(t, conn, "location:update", map[string]any{
		"coordinates": []float64{76.889709, 43.238949},
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("rider location update is a protocol violation")
	}
}

func TestGateway_DisconnectFlipsPresence(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	token, driverID := f.newDriver(t)

	conn := f.dial(t, token)
	sendFrame(t, conn, "user:register", map[string]any{
		"role":        "DRIVER",
		"coordinates": []float64{76.889709, 43.238949},
	})
	readFrame(t, conn)

	_ = conn.Close()

	// Presence flips, the position itself survives until TTL.
	waitFor(t, func() bool {
		rec, err := f.store.Get(ctx, driverID)
		return err == nil && !rec.Connected
	})
	rec, _ := f.store.Get(ctx, driverID)
	if rec.Location.Lng != 76.889709 {
		t.Fatalf("position must survive disconnect: %+v", rec)
	}
}
