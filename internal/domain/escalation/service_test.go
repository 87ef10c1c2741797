package escalation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pulse-health/pulse-api/internal/domain/identity"
	"github.com/pulse-health/pulse-api/internal/platform/events"
	"github.com/pulse-health/pulse-api/internal/platform/notification"
	"github.com/pulse-health/pulse-api/internal/platform/telemetry"
)

// -- Mocks --

type mockRepo struct {
	items map[uuid.UUID]*Escalation
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Escalation)}
}

func (m *mockRepo) Create(_ context.Context, e *Escalation) error {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	m.items[e.ID] = e
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Escalation, error) {
	e, ok := m.items[id]
	if !ok {
		return nil, ErrEscalationNotFound
	}
	return e, nil
}

func (m *mockRepo) GetByChat(_ context.Context, chatID uuid.UUID) (*Escalation, error) {
	for _, e := range m.items {
		if e.ChatID == chatID {
			return e, nil
		}
	}
	return nil, ErrEscalationNotFound
}

func (m *mockRepo) MarkAcknowledged(_ context.Context, id uuid.UUID) (*Escalation, error) {
	e, ok := m.items[id]
	if !ok {
		return nil, ErrEscalationNotFound
	}
	if e.Status != StatusPending {
		return nil, ErrInvalidTransition
	}
	e.Status = StatusAcknowledged
	now := time.Now()
	e.AcknowledgedAt = &now
	return e, nil
}

func (m *mockRepo) MarkResolved(_ context.Context, id uuid.UUID, notes *string) (*Escalation, error) {
	e, ok := m.items[id]
	if !ok {
		return nil, ErrEscalationNotFound
	}
	if e.Status == StatusResolved {
		return nil, ErrInvalidTransition
	}
	e.Status = StatusResolved
	now := time.Now()
	e.ResolvedAt = &now
	e.Notes = notes
	return e, nil
}

func (m *mockRepo) ListByPhysician(_ context.Context, physicianID uuid.UUID, status string, limit, offset int) ([]*Escalation, int, error) {
	var items []*Escalation
	for _, e := range m.items {
		if e.PhysicianID == physicianID && (status == "" || e.Status == status) {
			items = append(items, e)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Severity.Rank() > items[j].Severity.Rank()
	})
	return items, len(items), nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Escalation, int, error) {
	var items []*Escalation
	for _, e := range m.items {
		if e.PatientID == patientID {
			items = append(items, e)
		}
	}
	return items, len(items), nil
}

func (m *mockRepo) ListPending(_ context.Context, severity Severity, limit, offset int) ([]*Escalation, int, error) {
	var items []*Escalation
	for _, e := range m.items {
		if e.Status == StatusPending && (severity == "" || e.Severity == severity) {
			items = append(items, e)
		}
	}
	return items, len(items), nil
}

func (m *mockRepo) CountOpen(_ context.Context) (int64, error) {
	var n int64
	for _, e := range m.items {
		if e.Status != StatusResolved {
			n++
		}
	}
	return n, nil
}

type mockDirectory struct {
	users    map[uuid.UUID]*identity.User
	patients map[uuid.UUID]*identity.Patient
	admins   []*identity.User
	adminErr error
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		users:    make(map[uuid.UUID]*identity.User),
		patients: make(map[uuid.UUID]*identity.Patient),
	}
}

func (m *mockDirectory) GetUser(_ context.Context, id uuid.UUID) (*identity.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return u, nil
}

func (m *mockDirectory) GetPatient(_ context.Context, id uuid.UUID) (*identity.Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, identity.ErrPatientNotFound
	}
	return p, nil
}

func (m *mockDirectory) FirstAdmin(_ context.Context) (*identity.User, error) {
	if m.adminErr != nil {
		return nil, m.adminErr
	}
	if len(m.admins) == 0 {
		return nil, identity.ErrUserNotFound
	}
	return m.admins[0], nil
}

type capturePublisher struct {
	keys []string
}

func (p *capturePublisher) Publish(_ context.Context, key string, _ interface{}) error {
	p.keys = append(p.keys, key)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type chatResolverStub struct {
	resolved []uuid.UUID
}

func (c *chatResolverStub) ResolveChat(_ context.Context, chatID uuid.UUID) error {
	c.resolved = append(c.resolved, chatID)
	return nil
}

// -- Fixture --

type fixture struct {
	svc       *Service
	repo      *mockRepo
	dir       *mockDirectory
	published *capturePublisher
	chats     *chatResolverStub
	email     *notification.MockEmailSender
	metrics   *telemetry.TelemetryProvider

	physician *identity.User
	admin     *identity.User
	patientID uuid.UUID
	chatID    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMockRepo()
	dir := newMockDirectory()
	pub := &capturePublisher{}
	chats := &chatResolverStub{}
	email := &notification.MockEmailSender{}
	mgr := notification.NewNotificationManager(email, &notification.MockSMSSender{}, notification.NewTemplateEngine())
	metrics := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{})

	svc := NewService(repo, dir, pub, notification.NewNotifier(mgr, zerolog.Nop()), metrics, zerolog.Nop())
	svc.SetChatResolver(chats)

	name := "Dr. Osei"
	physician := &identity.User{ID: uuid.New(), Email: "doc@example.com", Name: &name, Role: "physician"}
	admin := &identity.User{ID: uuid.New(), Email: "admin@example.com", Role: "admin"}
	dir.users[physician.ID] = physician
	dir.users[admin.ID] = admin

	patientUser := &identity.User{ID: uuid.New(), Email: "jordan@example.com", Role: "patient"}
	dir.users[patientUser.ID] = patientUser
	patient := &identity.Patient{ID: uuid.New(), UserID: patientUser.ID, FirstName: "Jordan", LastName: "Reyes"}
	dir.patients[patient.ID] = patient

	return &fixture{
		svc:       svc,
		repo:      repo,
		dir:       dir,
		published: pub,
		chats:     chats,
		email:     email,
		metrics:   metrics,
		physician: physician,
		admin:     admin,
		patientID: patient.ID,
		chatID:    uuid.New(),
	}
}

// -- Tests --

func TestCreate_ClassifiesSeverity(t *testing.T) {
	f := newFixture(t)
	e, err := f.svc.Create(context.Background(), f.chatID, f.patientID, f.physician.ID, "chest pain for two hours")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.Severity != SeverityUrgent {
		t.Errorf("severity = %s, want urgent", e.Severity)
	}
	if e.Status != StatusPending {
		t.Errorf("status = %s, want pending", e.Status)
	}
	if f.metrics.GetCounter("escalations.created", "urgent") != 1 {
		t.Error("escalation counter not incremented")
	}
	if len(f.published.keys) != 1 || f.published.keys[0] != events.KeyEscalationCreated {
		t.Errorf("published = %v", f.published.keys)
	}
	calls := f.email.Calls()
	if len(calls) != 1 || calls[0].To != "doc@example.com" {
		t.Errorf("notice calls = %+v", calls)
	}
}

func TestCreate_EmptyReason(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Create(context.Background(), f.chatID, f.patientID, f.physician.ID, "  "); err == nil {
		t.Fatal("expected error for empty reason")
	}
}

func TestCreateUnassigned_RoutesToFirstAdmin(t *testing.T) {
	f := newFixture(t)
	f.dir.admins = []*identity.User{f.admin}

	e, err := f.svc.CreateUnassigned(context.Background(), f.chatID, f.patientID, "high fever")
	if err != nil {
		t.Fatalf("CreateUnassigned: %v", err)
	}
	if e.PhysicianID != f.admin.ID {
		t.Errorf("assigned to %s, want first admin", e.PhysicianID)
	}
	if !strings.HasPrefix(e.Reason, UnassignedReasonPrefix) {
		t.Errorf("reason = %q, want unassigned prefix", e.Reason)
	}
	if e.Severity != SeverityHigh {
		t.Errorf("severity = %s, want high", e.Severity)
	}
	if !e.Unassigned() {
		t.Error("Unassigned() should be true")
	}
	calls := f.email.Calls()
	if len(calls) != 1 || calls[0].To != "admin@example.com" {
		t.Errorf("notice calls = %+v", calls)
	}
	if !strings.Contains(calls[0].Subject, "Unassigned") {
		t.Errorf("notice subject = %q, want unassigned template", calls[0].Subject)
	}
}

func TestCreateUnassigned_NoAdmins(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateUnassigned(context.Background(), f.chatID, f.patientID, "fever")
	if !errors.Is(err, ErrNoAdminAvailable) {
		t.Fatalf("expected ErrNoAdminAvailable, got %v", err)
	}
	if len(f.repo.items) != 0 {
		t.Error("nothing should be persisted when no admin exists")
	}
}

// A transient directory failure is not the same as a zero-admins
// configuration; it must surface as-is instead of ErrNoAdminAvailable.
func TestCreateUnassigned_DirectoryFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.dir.adminErr = errors.New("connection refused")

	_, err := f.svc.CreateUnassigned(context.Background(), f.chatID, f.patientID, "fever")
	if err == nil {
		t.Fatal("expected directory error to propagate")
	}
	if errors.Is(err, ErrNoAdminAvailable) {
		t.Errorf("transient failure mislabeled as ErrNoAdminAvailable: %v", err)
	}
	if !errors.Is(err, f.dir.adminErr) {
		t.Errorf("expected wrapped directory error, got %v", err)
	}
	if len(f.repo.items) != 0 {
		t.Error("nothing should be persisted on a directory failure")
	}
}

func TestAcknowledge_Lifecycle(t *testing.T) {
	f := newFixture(t)
	e, _ := f.svc.Create(context.Background(), f.chatID, f.patientID, f.physician.ID, "fever")

	acked, err := f.svc.Acknowledge(context.Background(), f.physician, e.ID)
	if err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if acked.Status != StatusAcknowledged || acked.AcknowledgedAt == nil {
		t.Errorf("escalation = %+v", acked)
	}

	// A second acknowledge is an invalid transition.
	if _, err := f.svc.Acknowledge(context.Background(), f.physician, e.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestAcknowledge_WrongPhysicianForbidden(t *testing.T) {
	f := newFixture(t)
	e, _ := f.svc.Create(context.Background(), f.chatID, f.patientID, f.physician.ID, "fever")

	other := &identity.User{ID: uuid.New(), Role: "physician"}
	if _, err := f.svc.Acknowledge(context.Background(), other, e.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestAcknowledge_AdminOverride(t *testing.T) {
	f := newFixture(t)
	e, _ := f.svc.Create(context.Background(), f.chatID, f.patientID, f.physician.ID, "fever")
	if _, err := f.svc.Acknowledge(context.Background(), f.admin, e.ID); err != nil {
		t.Errorf("admin acknowledge failed: %v", err)
	}
}

func TestResolve_AlsoResolvesChat(t *testing.T) {
	f := newFixture(t)
	e, _ := f.svc.Create(context.Background(), f.chatID, f.patientID, f.physician.ID, "fever")

	notes := "advised rest and fluids"
	resolved, err := f.svc.Resolve(context.Background(), f.physician, e.ID, &notes)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != StatusResolved || resolved.ResolvedAt == nil {
		t.Errorf("escalation = %+v", resolved)
	}
	if resolved.Notes == nil || *resolved.Notes != notes {
		t.Errorf("notes = %v", resolved.Notes)
	}
	if len(f.chats.resolved) != 1 || f.chats.resolved[0] != f.chatID {
		t.Errorf("chat resolution calls = %v", f.chats.resolved)
	}
}

func TestResolve_FromPendingOrAcknowledged(t *testing.T) {
	f := newFixture(t)

	// pending → resolved
	e1, _ := f.svc.Create(context.Background(), uuid.New(), f.patientID, f.physician.ID, "fever")
	if _, err := f.svc.Resolve(context.Background(), f.physician, e1.ID, nil); err != nil {
		t.Errorf("resolve from pending: %v", err)
	}

	// acknowledged → resolved
	e2, _ := f.svc.Create(context.Background(), uuid.New(), f.patientID, f.physician.ID, "fever")
	_, _ = f.svc.Acknowledge(context.Background(), f.physician, e2.ID)
	if _, err := f.svc.Resolve(context.Background(), f.physician, e2.ID, nil); err != nil {
		t.Errorf("resolve from acknowledged: %v", err)
	}

	// resolved → resolved is rejected
	if _, err := f.svc.Resolve(context.Background(), f.physician, e2.ID, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestResolve_EmitsLifecycleEvents(t *testing.T) {
	f := newFixture(t)
	e, _ := f.svc.Create(context.Background(), f.chatID, f.patientID, f.physician.ID, "fever")
	_, _ = f.svc.Acknowledge(context.Background(), f.physician, e.ID)
	_, _ = f.svc.Resolve(context.Background(), f.physician, e.ID, nil)

	want := []string{events.KeyEscalationCreated, events.KeyEscalationAcked, events.KeyEscalationResolved}
	if len(f.published.keys) != len(want) {
		t.Fatalf("published = %v", f.published.keys)
	}
	for i := range want {
		if f.published.keys[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, f.published.keys[i], want[i])
		}
	}
}

func TestListByPhysician_StatusValidation(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.svc.ListByPhysician(context.Background(), f.physician.ID, "bogus", 10, 0); err == nil {
		t.Fatal("expected invalid status error")
	}
}

func TestListPending_SeverityValidation(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.svc.ListPending(context.Background(), Severity("critical"), 10, 0); err == nil {
		t.Fatal("expected invalid severity error")
	}
}

func TestCountOpen(t *testing.T) {
	f := newFixture(t)
	e1, _ := f.svc.Create(context.Background(), uuid.New(), f.patientID, f.physician.ID, "fever")
	_, _ = f.svc.Create(context.Background(), uuid.New(), f.patientID, f.physician.ID, "chest pain")
	_, _ = f.svc.Resolve(context.Background(), f.physician, e1.ID, nil)

	n, err := f.svc.CountOpen(context.Background())
	if err != nil {
		t.Fatalf("CountOpen: %v", err)
	}
	if n != 1 {
		t.Errorf("open = %d, want 1", n)
	}
}
