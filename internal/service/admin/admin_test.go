package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/service/locationsync"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

type passthroughTx struct{}

func (passthroughTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeDrivers struct {
	drivers  map[uuid.UUID]*models.Driver
	flipErr  error
	verified map[uuid.UUID]bool
	blocked  map[uuid.UUID]bool
}

func newFakeDrivers() *fakeDrivers {
	return &fakeDrivers{
		drivers:  make(map[uuid.UUID]*models.Driver),
		verified: make(map[uuid.UUID]bool),
		blocked:  make(map[uuid.UUID]bool),
	}
}

func (f *fakeDrivers) GetByID(_ context.Context, id uuid.UUID) (*models.Driver, error) {
	if d, ok := f.drivers[id]; ok {
		return d, nil
	}
	return nil, types.ErrDriverNotFound
}

func (f *fakeDrivers) ListPendingVerifications(context.Context, int) ([]models.Driver, error) {
	var out []models.Driver
	for _, d := range f.drivers {
		if !d.IsVerified && !d.IsBlocked {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDrivers) SetVerified(_ context.Context, id uuid.UUID, v bool) error {
	if f.flipErr != nil {
		return f.flipErr
	}
	f.verified[id] = v
	return nil
}

func (f *fakeDrivers) SetBlocked(_ context.Context, id uuid.UUID, b bool) error {
	if f.flipErr != nil {
		return f.flipErr
	}
	f.blocked[id] = b
	return nil
}

type fakeAudit struct {
	events []models.VerificationEvent
}

func (f *fakeAudit) InsertVerificationEvent(_ context.Context, ev models.VerificationEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeAudit) ListByDriver(_ context.Context, driverID uuid.UUID, _ int) ([]models.VerificationEvent, error) {
	var out []models.VerificationEvent
	for _, ev := range f.events {
		if ev.DriverID == driverID {
			out = append(out, ev)
		}
	}
	return out, nil
}

type fakeSync struct {
	report locationsync.RunReport
	err    error
}

func (f *fakeSync) TriggerNow(context.Context) (locationsync.RunReport, error) {
	return f.report, f.err
}

func (f *fakeSync) Status() locationsync.Status {
	return locationsync.Status{CadenceActive: true}
}

func newService(t *testing.T) (*AdminService, *fakeDrivers, *fakeAudit, *fakeSync) {
	t.Helper()
	drivers := newFakeDrivers()
	audit := &fakeAudit{}
	sync := &fakeSync{}
	svc := NewAdminService(drivers, audit, passthroughTx{}, sync,
		logger.InitLogger("admin-test", logger.LevelError))
	return svc, drivers, audit, sync
}

func mustID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.New()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	return id
}

func TestSetVerified_WritesAudit(t *testing.T) {
	svc, drivers, audit, _ := newService(t)
	adminID := mustID(t)
	driverID := mustID(t)

	if err := svc.SetVerified(context.Background(), adminID, driverID, true); err != nil {
		t.Fatalf("set verified: %v", err)
	}

	if !drivers.verified[driverID] {
		t.Fatal("flag not flipped")
	}
	if len(audit.events) != 1 {
		t.Fatalf("audit rows: %d, want 1", len(audit.events))
	}
	ev := audit.events[0]
	if ev.Action != AuditVerified || ev.AdminID != adminID || ev.DriverID != driverID {
		t.Fatalf("audit row: %+v", ev)
	}
}

func TestSetBlocked_AuditAction(t *testing.T) {
	svc, _, audit, _ := newService(t)

	driverID := mustID(t)
	if err := svc.SetBlocked(context.Background(), mustID(t), driverID, true); err != nil {
		t.Fatalf("set blocked: %v", err)
	}
	if err := svc.SetBlocked(context.Background(), mustID(t), driverID, false); err != nil {
		t.Fatalf("unblock: %v", err)
	}

	if len(audit.events) != 2 || audit.events[0].Action != AuditBlocked || audit.events[1].Action != AuditUnblocked {
		t.Fatalf("audit actions: %+v", audit.events)
	}
}

func TestSetVerified_FlipFailureSkipsAudit(t *testing.T) {
	svc, drivers, audit, _ := newService(t)
	drivers.flipErr = types.ErrDriverNotFound

	err := svc.SetVerified(context.Background(), mustID(t), mustID(t), true)
	if !errors.Is(err, types.ErrDriverNotFound) {
		t.Fatalf("got %v, want ErrDriverNotFound", err)
	}
	if len(audit.events) != 0 {
		t.Fatalf("no audit row on failed flip: %+v", audit.events)
	}
}

func TestAuditTrail_UnknownDriver(t *testing.T) {
	svc, _, _, _ := newService(t)

	if _, err := svc.AuditTrail(context.Background(), mustID(t), 10); !errors.Is(err, types.ErrDriverNotFound) {
		t.Fatalf("got %v, want ErrDriverNotFound", err)
	}
}

func TestTriggerSync_InProgress(t *testing.T) {
	svc, _, _, syncCtl := newService(t)
	syncCtl.err = types.ErrSyncInProgress

	if _, err := svc.TriggerSync(context.Background()); !errors.Is(err, types.ErrSyncInProgress) {
		t.Fatalf("got %v, want ErrSyncInProgress", err)
	}
}
