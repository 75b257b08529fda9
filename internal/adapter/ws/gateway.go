// Package wshandler is the bidirectional channel adapter: it
// authenticates clients, registers their channel in the connection hub
// and translates wire events into core calls. Each channel is read
// sequentially, so events from one client never reorder; distinct
// channels run concurrently.
package wshandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Temutjin2k/dispatch-core/internal/adapter/ws/dto"
	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/geo"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/metrics"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
	ws "github.com/Temutjin2k/dispatch-core/pkg/wsHub"
)

const serviceName = "gateway"

// maxFrameSize bounds a single inbound frame.
const maxFrameSize = 4 << 10

var errProtocolViolation = errors.New("protocol violation")

type TokenValidator interface {
	Validate(ctx context.Context, token string) (*models.User, error)
}

type DriverResolver interface {
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Driver, error)
}

type PositionStore interface {
	Get(ctx context.Context, driverID uuid.UUID) (*models.PositionRecord, error)
	Upsert(ctx context.Context, rec models.PositionRecord) error
	SetConnection(ctx context.Context, driverID uuid.UUID, connected bool) error
	ClearOnDisconnect(ctx context.Context, driverID uuid.UUID) error
}

type Dispatcher interface {
	Accept(ctx context.Context, offerID, driverID uuid.UUID) error
	Reject(ctx context.Context, offerID, driverID uuid.UUID) error
}

type Gateway struct {
	connections *ws.ConnectionHub
	tokens      TokenValidator
	drivers     DriverResolver
	positions   PositionStore
	dispatch    Dispatcher

	upgrader websocket.Upgrader
	log      logger.Logger
}

func NewGateway(connections *ws.ConnectionHub, tokens TokenValidator, drivers DriverResolver, positions PositionStore, dispatch Dispatcher, log logger.Logger) *Gateway {
	return &Gateway{
		connections: connections,
		tokens:      tokens,
		drivers:     drivers,
		positions:   positions,
		dispatch:    dispatch,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Токен уже аутентифицирует канал, origin не проверяем.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// HandleWS upgrades the request and runs the channel until the client
// goes away. Identity is extracted once at connection time, not
// revalidated per message.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "ws_connect")

	user, err := g.authenticate(ctx, r)
	if err != nil {
		wsErrorResponse(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	ctx = wrap.WithUserID(ctx, user.ID.String())

	sess, err := g.newSession(ctx, user)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrDriverNotFound):
			wsErrorResponse(w, http.StatusForbidden, "no driver profile for this account")
		case errors.Is(err, types.ErrDriverBlocked):
			wsErrorResponse(w, http.StatusForbidden, "driver is blocked")
		default:
			wsErrorResponse(w, http.StatusForbidden, err.Error())
		}
		return
	}

	transport, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn(ctx, "websocket upgrade failed", "err", err.Error())
		return
	}
	transport.SetReadLimit(maxFrameSize)

	// Conn lifetime is decoupled from the request context: the hub owns
	// shutdown.
	conn := ws.NewConn(context.Background(), sess.entityID, transport)
	if err := g.connections.Add(conn); err != nil {
		_ = conn.Close()
		return
	}
	sess.conn = conn

	role := string(user.Role)
	metrics.WebSocketConnectionsGauge.WithLabelValues(serviceName, role).Inc()
	g.log.Info(ctx, "channel attached", "entity_id", sess.entityID, "role", role)

	g.readLoop(ctx, sess, transport)

	// Disconnect: presence flips immediately, the position record
	// survives until its TTL so a quick reconnect keeps history.
	if sess.isDriver() {
		if err := g.positions.ClearOnDisconnect(ctx, sess.entityID); err != nil {
			g.log.Warn(ctx, "clear on disconnect failed", "err", err.Error())
		}
	}
	g.connections.Detach(conn)
	metrics.WebSocketConnectionsGauge.WithLabelValues(serviceName, role).Dec()
	g.log.Info(ctx, "channel detached", "entity_id", sess.entityID)
}

func (g *Gateway) authenticate(ctx context.Context, r *http.Request) (*models.User, error) {
	token := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		var err error
		if token, err = extractBearerToken(header); err != nil {
			return nil, err
		}
	}
	if token == "" {
		return nil, errors.New("missing token")
	}
	return g.tokens.Validate(ctx, token)
}

// session is the per-channel state fixed at attach time.
type session struct {
	user     *models.User
	entityID uuid.UUID
	conn     *ws.Conn
}

func (s *session) isDriver() bool { return s.user.HasRole(types.DriverRole) }

// newSession resolves the channel identity. Drivers attach under their
// driver id, which is what dispatch fan-out and the position store key
// on; riders attach under their user id.
func (g *Gateway) newSession(ctx context.Context, user *models.User) (*session, error) {
	if !user.HasRole(types.DriverRole) && !user.HasRole(types.RiderRole) {
		return nil, fmt.Errorf("role %s cannot attach a channel", user.Role)
	}

	entityID := user.ID
	if user.HasRole(types.DriverRole) {
		driver, err := g.drivers.FindByUser(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if driver.IsBlocked {
			return nil, types.ErrDriverBlocked
		}
		entityID = driver.ID
	}
	return &session{user: user, entityID: entityID}, nil
}

// readLoop processes inbound frames one at a time. A malformed frame
// or an event outside the protocol closes the channel.
func (g *Gateway) readLoop(ctx context.Context, sess *session, transport *websocket.Conn) {
	for {
		_, data, err := transport.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.log.Debug(ctx, "read loop ended", "err", err.Error())
			}
			return
		}

		var frame dto.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			g.log.Warn(ctx, "malformed frame", "err", err.Error())
			return
		}

		if err := g.handleFrame(ctx, sess, frame); err != nil {
			if errors.Is(err, errProtocolViolation) {
				g.log.Warn(ctx, "protocol violation, closing channel", "event", frame.Event)
				return
			}
			// Core-level failures were already delivered to the client
			// by the offer manager; nothing more to do here.
			g.log.Debug(ctx, "event handling failed", "event", frame.Event, "err", err.Error())
		}
	}
}

func (g *Gateway) handleFrame(ctx context.Context, sess *session, frame dto.Frame) error {
	if !types.KnownInbound(frame.Event) {
		return fmt.Errorf("%w: unknown event %q", errProtocolViolation, frame.Event)
	}

	switch frame.Event {
	case types.EventUserRegister:
		return g.handleRegister(ctx, sess, frame.Data)
	case types.EventLocationUpdate:
		return g.handleLocationUpdate(ctx, sess, frame.Data)
	case types.EventRideAccept:
		return g.handleOfferAction(ctx, sess, frame.Data, g.dispatch.Accept)
	case types.EventRideReject:
		return g.handleOfferAction(ctx, sess, frame.Data, g.dispatch.Reject)
	}
	return nil
}

func (g *Gateway) handleRegister(ctx context.Context, sess *session, data json.RawMessage) error {
	ctx = wrap.WithAction(ctx, "ws_user_register")

	var req dto.RegisterReq
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("%w: %s", errProtocolViolation, err)
		}
	}

	if sess.isDriver() {
		if req.Coordinates != nil {
			if err := g.upsertPosition(ctx, sess, *req.Coordinates); err != nil {
				return err
			}
		} else if err := g.positions.SetConnection(ctx, sess.entityID, true); err != nil && !errors.Is(err, types.ErrDriverNotFound) {
			return wrap.Error(ctx, err)
		}
	}

	return sess.conn.Send(dto.Push{
		Event: types.EventUserRegistered,
		Data:  dto.RegisteredResp{Success: true, ChannelID: sess.entityID.String()},
	})
}

func (g *Gateway) handleLocationUpdate(ctx context.Context, sess *session, data json.RawMessage) error {
	ctx = wrap.WithAction(ctx, "ws_location_update")

	if !sess.isDriver() {
		return fmt.Errorf("%w: location:update from a non-driver", errProtocolViolation)
	}

	var req dto.LocationUpdateReq
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: %s", errProtocolViolation, err)
	}
	if !req.Coordinates.Valid() {
		return fmt.Errorf("%w: coordinates out of range", errProtocolViolation)
	}

	return g.upsertPosition(ctx, sess, req.Coordinates)
}

// upsertPosition refreshes the driver's ephemeral record, preserving
// availability across updates. A brand-new record starts available.
func (g *Gateway) upsertPosition(ctx context.Context, sess *session, pt models.GeoPoint) error {
	cell, err := geo.CellOf(pt.Lat, pt.Lng)
	if err != nil {
		return fmt.Errorf("%w: %s", errProtocolViolation, err)
	}

	available := true
	if prev, err := g.positions.Get(ctx, sess.entityID); err == nil {
		available = prev.IsAvailable
	}

	rec := models.PositionRecord{
		DriverID:    sess.entityID,
		UserID:      sess.user.ID,
		Location:    pt,
		Cell:        cell,
		LastSeenAt:  time.Now().UTC(),
		IsOnline:    true,
		IsAvailable: available,
		Connected:   true,
	}
	if err := g.positions.Upsert(ctx, rec); err != nil {
		return wrap.Error(ctx, err)
	}
	return nil
}

func (g *Gateway) handleOfferAction(ctx context.Context, sess *session, data json.RawMessage, action func(ctx context.Context, offerID, driverID uuid.UUID) error) error {
	if !sess.isDriver() {
		return fmt.Errorf("%w: offer response from a non-driver", errProtocolViolation)
	}

	var req dto.OfferActionReq
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: %s", errProtocolViolation, err)
	}
	if req.RequestID.IsZero() {
		return fmt.Errorf("%w: missing requestId", errProtocolViolation)
	}

	return action(ctx, req.RequestID, sess.entityID)
}

// --- pre-upgrade helpers ---

func extractBearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", errors.New("invalid Authorization header format")
	}
	return header[len(prefix):], nil
}

func wsErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}
