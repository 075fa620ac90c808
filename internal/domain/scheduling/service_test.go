package scheduling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicsched/clinic/internal/platform/apperr"
	"github.com/clinicsched/clinic/internal/platform/auth"
	"github.com/clinicsched/clinic/internal/platform/calendar"
	"github.com/clinicsched/clinic/internal/platform/events"
)

// -- Mocks --

type slotKey struct {
	date string
	tm   string
}

// mockAppointmentRepo enforces slot uniqueness in Create the way the partial
// unique index does, so it rejects a second SCHEDULED row for a slot even
// when SlotTaken was bypassed.
type mockAppointmentRepo struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*Appointment
	// skipSlotCheck makes SlotTaken always report a free slot, which is what
	// a racing transaction sees before the other side commits.
	skipSlotCheck bool
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func (m *mockAppointmentRepo) occupied(date calendar.Date, tm calendar.TimeOfDay) bool {
	for _, a := range m.appts {
		if a.Status == StatusScheduled && a.Date.Equal(date) && a.Time == tm {
			return true
		}
	}
	return false
}

func (m *mockAppointmentRepo) SlotTaken(_ context.Context, date calendar.Date, tm calendar.TimeOfDay) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.skipSlotCheck {
		return false, nil
	}
	return m.occupied(date, tm), nil
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.occupied(a.Date, a.Time) {
		return apperr.Wrap(ErrSlotAlreadyBooked, errors.New("unique violation"))
	}
	a.ID = uuid.New()
	a.Status = StatusScheduled
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.appts[a.ID] = a
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAppointmentRepo) TransitionScheduled(_ context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || !a.Status.CanTransitionTo(to) {
		return nil, nil
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *mockAppointmentRepo) ListUpcoming(_ context.Context, from calendar.Date, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appts {
		if a.Status == StatusScheduled && !a.Date.Before(from) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time.Before(out[j].Time)
	})
	total := len(out)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

type mockPatientLookup struct {
	patients map[uuid.UUID]PatientSummary
}

func (m *mockPatientLookup) GetSummary(_ context.Context, id uuid.UUID) (*PatientSummary, error) {
	s, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &s, nil
}

func (m *mockPatientLookup) ListSummaries(_ context.Context) ([]PatientSummary, error) {
	var out []PatientSummary
	for _, s := range m.patients {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// -- Fixtures --

type fixture struct {
	svc       *Service
	appts     *mockAppointmentRepo
	published *recordingPublisher
	patientX  PatientSummary
	patientY  PatientSummary
	clinician *auth.Principal
}

func newFixture() *fixture {
	x := PatientSummary{ID: uuid.New(), Name: "Ana Souza", NationalID: "111"}
	y := PatientSummary{ID: uuid.New(), Name: "Bruno Lima", NationalID: "222"}
	appts := newMockAppointmentRepo()
	patients := &mockPatientLookup{patients: map[uuid.UUID]PatientSummary{x.ID: x, y.ID: y}}
	pub := &recordingPublisher{}
	clock := calendar.FixedClock(time.Date(2024, 6, 1, 7, 30, 0, 0, time.UTC))
	svc := NewService(appts, patients, passthroughTx{}, events.NewEmitter(pub, zerolog.Nop()), clock, zerolog.Nop())
	return &fixture{
		svc:       svc,
		appts:     appts,
		published: pub,
		patientX:  x,
		patientY:  y,
		clinician: &auth.Principal{ID: uuid.New(), Name: "Dr. Reis", Role: auth.RoleClinician},
	}
}

func (f *fixture) patientPrincipal(s PatientSummary) *auth.Principal {
	id := s.ID
	return &auth.Principal{ID: uuid.New(), Name: s.Name, Role: auth.RolePatient, PatientID: &id}
}

func booking(patientID uuid.UUID, date, tm string) BookingRequest {
	return BookingRequest{PatientID: patientID.String(), Date: date, Time: tm, VisitType: "checkup"}
}

// -- Tests --

func TestBookAppointment(t *testing.T) {
	f := newFixture()
	appt, err := f.svc.BookAppointment(context.Background(), f.clinician, booking(f.patientX.ID, "2024-06-01", "09:00"))
	if err != nil {
		t.Fatalf("BookAppointment() error: %v", err)
	}
	if appt.Status != StatusScheduled {
		t.Errorf("expected SCHEDULED, got %s", appt.Status)
	}
	if appt.BookedByID != f.clinician.ID {
		t.Errorf("expected booked_by to be the caller")
	}
	if appt.PatientName != "Ana Souza" {
		t.Errorf("expected patient name to be filled, got %q", appt.PatientName)
	}
	if got := f.published.types(); len(got) != 1 || got[0] != events.AppointmentBooked {
		t.Errorf("expected one booked event, got %v", got)
	}
}

func TestBookAppointment_SlotAlreadyBooked(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.svc.BookAppointment(ctx, f.clinician, booking(f.patientX.ID, "2024-06-01", "09:00")); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.BookAppointment(ctx, f.clinician, booking(f.patientY.ID, "2024-06-01", "09:00"))
	if !errors.Is(err, ErrSlotAlreadyBooked) {
		t.Fatalf("expected ErrSlotAlreadyBooked, got %v", err)
	}
}

func TestBookAppointment_LostRaceSurfacesAsSlotAlreadyBooked(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.svc.BookAppointment(ctx, f.clinician, booking(f.patientX.ID, "2024-06-01", "09:00")); err != nil {
		t.Fatal(err)
	}

	f.appts.skipSlotCheck = true
	_, err := f.svc.BookAppointment(ctx, f.clinician, booking(f.patientY.ID, "2024-06-01", "09:00"))
	if !errors.Is(err, ErrSlotAlreadyBooked) {
		t.Fatalf("expected ErrSlotAlreadyBooked, got %v", err)
	}
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("expected conflict kind, got %s", apperr.KindOf(err))
	}
}

func TestBookAppointment_ConcurrentSameSlot(t *testing.T) {
	f := newFixture()
	f.appts.skipSlotCheck = true

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.BookAppointment(context.Background(), f.clinician, booking(f.patientX.ID, "2024-06-01", "10:30"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSlotAlreadyBooked):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != n-1 {
		t.Errorf("expected exactly one success, got %d successes and %d conflicts", ok, conflicts)
	}
}

func TestBookAppointment_Validation(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name string
		req  BookingRequest
	}{
		{"missing patient", BookingRequest{Date: "2024-06-01", Time: "09:00", VisitType: "checkup"}},
		{"bad patient id", BookingRequest{PatientID: "x", Date: "2024-06-01", Time: "09:00", VisitType: "checkup"}},
		{"missing date", BookingRequest{PatientID: f.patientX.ID.String(), Time: "09:00", VisitType: "checkup"}},
		{"bad date", BookingRequest{PatientID: f.patientX.ID.String(), Date: "01/06/2024", Time: "09:00", VisitType: "checkup"}},
		{"bad time", BookingRequest{PatientID: f.patientX.ID.String(), Date: "2024-06-01", Time: "25:00", VisitType: "checkup"}},
		{"missing visit type", BookingRequest{PatientID: f.patientX.ID.String(), Date: "2024-06-01", Time: "09:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.BookAppointment(context.Background(), f.clinician, tt.req)
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestBookAppointment_UnknownPatient(t *testing.T) {
	f := newFixture()
	_, err := f.svc.BookAppointment(context.Background(), f.clinician, booking(uuid.New(), "2024-06-01", "09:00"))
	if !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestBookAppointment_PatientSelfService(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	x := f.patientPrincipal(f.patientX)

	if _, err := f.svc.BookAppointment(ctx, x, booking(f.patientX.ID, "2024-06-02", "09:00")); err != nil {
		t.Fatalf("patient booking for self failed: %v", err)
	}
	_, err := f.svc.BookAppointment(ctx, x, booking(f.patientY.ID, "2024-06-02", "10:00"))
	if !errors.Is(err, ErrForbiddenForOtherPatient) {
		t.Fatalf("expected ErrForbiddenForOtherPatient, got %v", err)
	}

	unlinked := &auth.Principal{ID: uuid.New(), Role: auth.RolePatient}
	_, err = f.svc.BookAppointment(ctx, unlinked, booking(f.patientX.ID, "2024-06-02", "11:00"))
	if !errors.Is(err, ErrPatientProfileMissing) {
		t.Fatalf("expected ErrPatientProfileMissing, got %v", err)
	}
}

func TestBookAppointment_DanglingPatientLink(t *testing.T) {
	f := newFixture()
	ghost := uuid.New()
	dangling := f.patientPrincipal(PatientSummary{ID: ghost})

	_, err := f.svc.BookAppointment(context.Background(), dangling, booking(ghost, "2024-06-02", "09:00"))
	if !errors.Is(err, ErrPatientProfileMissing) {
		t.Fatalf("expected ErrPatientProfileMissing, got %v", err)
	}
	if len(f.published.types()) != 0 {
		t.Error("no event should be published for a failed booking")
	}
}

func TestBookAppointment_RequiresPrincipal(t *testing.T) {
	f := newFixture()
	_, err := f.svc.BookAppointment(context.Background(), nil, booking(f.patientX.ID, "2024-06-01", "09:00"))
	if !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestTransition(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	appt, err := f.svc.BookAppointment(ctx, f.clinician, booking(f.patientX.ID, "2024-06-01", "09:00"))
	if err != nil {
		t.Fatal(err)
	}

	done, err := f.svc.Transition(ctx, f.clinician, appt.ID, ActionComplete)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", done.Status)
	}

	_, err = f.svc.Transition(ctx, f.clinician, appt.ID, ActionComplete)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second complete: expected ErrInvalidTransition, got %v", err)
	}
	_, err = f.svc.Transition(ctx, f.clinician, appt.ID, ActionCancel)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancel after complete: expected ErrInvalidTransition, got %v", err)
	}

	got := f.published.types()
	if len(got) != 2 || got[1] != events.AppointmentCompleted {
		t.Errorf("expected booked then completed events, got %v", got)
	}
}

func TestTransition_CancelTwice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	appt, err := f.svc.BookAppointment(ctx, f.clinician, booking(f.patientX.ID, "2024-06-01", "09:00"))
	if err != nil {
		t.Fatal(err)
	}

	cancelled, err := f.svc.Transition(ctx, f.clinician, appt.ID, ActionCancel)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", cancelled.Status)
	}

	_, err = f.svc.Transition(ctx, f.clinician, appt.ID, ActionCancel)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second cancel: expected ErrInvalidTransition, got %v", err)
	}
	_, err = f.svc.Transition(ctx, f.clinician, appt.ID, ActionComplete)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("complete after cancel: expected ErrInvalidTransition, got %v", err)
	}

	got := f.published.types()
	if len(got) != 2 || got[1] != events.AppointmentCancelled {
		t.Errorf("expected booked then cancelled events, got %v", got)
	}
}

func TestTransition_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Transition(context.Background(), f.clinician, uuid.New(), ActionCancel)
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestTransition_UnknownAction(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Transition(context.Background(), f.clinician, uuid.New(), Action("reopen"))
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTransition_PatientDenied(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Transition(context.Background(), f.patientPrincipal(f.patientX), uuid.New(), ActionCancel)
	if !errors.Is(err, auth.ErrInsufficientRole) {
		t.Fatalf("expected ErrInsufficientRole, got %v", err)
	}
}

// Scenario: X books a slot, Y is refused, the clinician cancels X and Y
// books the freed slot.
func TestCancelFreesSlot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	x := f.patientPrincipal(f.patientX)
	y := f.patientPrincipal(f.patientY)

	first, err := f.svc.BookAppointment(ctx, x, booking(f.patientX.ID, "2024-06-01", "09:00"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.BookAppointment(ctx, y, booking(f.patientY.ID, "2024-06-01", "09:00")); !errors.Is(err, ErrSlotAlreadyBooked) {
		t.Fatalf("expected ErrSlotAlreadyBooked, got %v", err)
	}

	cancelled, err := f.svc.Transition(ctx, f.clinician, first.ID, ActionCancel)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}

	if _, err := f.svc.BookAppointment(ctx, y, booking(f.patientY.ID, "2024-06-01", "09:00")); err != nil {
		t.Fatalf("expected freed slot to be bookable, got %v", err)
	}
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.svc.BookAppointment(ctx, f.clinician, booking(f.patientX.ID, "2024-06-01", "09:00")); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.CheckAvailability(ctx, f.clinician, AvailabilityRequest{Date: "2024-06-01", Time: "09:00"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Available || res.Message != msgSlotTaken {
		t.Errorf("expected occupied slot, got %+v", res)
	}

	res, err = f.svc.CheckAvailability(ctx, f.clinician, AvailabilityRequest{Date: "2024-06-01", Time: "09:30"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Available || res.Message != msgSlotFree {
		t.Errorf("expected free slot, got %+v", res)
	}

	_, err = f.svc.CheckAvailability(ctx, f.clinician, AvailabilityRequest{Date: "2024-06-01"})
	if !errors.Is(err, ErrIncompleteData) {
		t.Errorf("expected ErrIncompleteData, got %v", err)
	}
}

func TestListBookablePatients(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	all, err := f.svc.ListBookablePatients(ctx, f.clinician)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Name != "Ana Souza" {
		t.Errorf("expected both patients by name, got %v", all)
	}

	own, err := f.svc.ListBookablePatients(ctx, f.patientPrincipal(f.patientY))
	if err != nil {
		t.Fatal(err)
	}
	if len(own) != 1 || own[0].ID != f.patientY.ID {
		t.Errorf("expected only the caller's record, got %v", own)
	}

	dangling := f.patientPrincipal(PatientSummary{ID: uuid.New()})
	if _, err := f.svc.ListBookablePatients(ctx, dangling); !errors.Is(err, ErrPatientProfileMissing) {
		t.Errorf("expected ErrPatientProfileMissing, got %v", err)
	}
}

func TestListUpcoming(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for _, slot := range [][2]string{{"2024-06-03", "08:00"}, {"2024-05-31", "09:00"}, {"2024-06-01", "14:00"}, {"2024-06-01", "08:30"}} {
		if _, err := f.svc.BookAppointment(ctx, f.clinician, booking(f.patientX.ID, slot[0], slot[1])); err != nil {
			t.Fatal(err)
		}
	}

	items, total, err := f.svc.ListUpcoming(ctx, f.clinician, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("expected 3 upcoming (past day excluded), got %d", total)
	}
	want := []string{"2024-06-01 08:30", "2024-06-01 14:00", "2024-06-03 08:00"}
	for i, a := range items {
		if got := a.Date.String() + " " + a.Time.String(); got != want[i] {
			t.Errorf("item %d: got %s, want %s", i, got, want[i])
		}
	}
}

func TestGetAppointment_PatientSeesOnlyOwn(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	appt, err := f.svc.BookAppointment(ctx, f.clinician, booking(f.patientX.ID, "2024-06-01", "09:00"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.GetAppointment(ctx, f.patientPrincipal(f.patientX), appt.ID); err != nil {
		t.Errorf("owner should see appointment, got %v", err)
	}
	if _, err := f.svc.GetAppointment(ctx, f.patientPrincipal(f.patientY), appt.ID); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected ErrAppointmentNotFound for another patient, got %v", err)
	}
}
