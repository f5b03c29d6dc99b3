package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"training-platform/internal/models"
	"training-platform/internal/repository"
	"training-platform/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db          *sqlx.DB
	users       repository.UserRepository
	annotations repository.AnnotationRepository
	activity    repository.ActivityRepository
	notifier    *recordingNotifier
	svc         *annotationService
	export      *exportService
	clock       *clock

	analyst models.Actor
	other   models.Actor
	lead    models.Actor
	admin   models.Actor
	viewer  models.Actor
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	db, err := repository.NewDB(repository.DriverSQLite, ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.MigrateDB(db, logger))

	f := &fixture{
		db:          db,
		users:       repository.NewUserRepository(db, logger),
		annotations: repository.NewAnnotationRepository(db, logger),
		activity:    repository.NewActivityRepository(db, logger),
		notifier:    &recordingNotifier{},
		clock:       &clock{t: base},
	}
	f.svc = NewAnnotationService(f.annotations, f.activity, f.notifier, logger).(*annotationService)
	f.svc.now = f.clock.now
	f.export = NewExportService(f.annotations, repository.NewVocabularyRepository(db, logger), logger).(*exportService)
	f.export.now = f.clock.now

	f.analyst = f.seedUser(t, "ana", models.RoleQAAnalyst)
	f.other = f.seedUser(t, "otto", models.RoleQAAnalyst)
	f.lead = f.seedUser(t, "lea", models.RoleQALead)
	f.admin = f.seedUser(t, "root", models.RoleAdmin)
	f.viewer = f.seedUser(t, "vic", models.RoleViewer)
	return f
}

func (f *fixture) seedUser(t *testing.T, username string, role models.Role) models.Actor {
	t.Helper()
	u := &models.User{Username: username, PasswordHash: "x", Role: role, FullName: username, IsActive: true, CreatedAt: base}
	require.NoError(t, f.users.CreateUser(context.Background(), u))
	return models.Actor{ID: u.ID, Username: u.Username, Role: u.Role}
}

func (f *fixture) seedEvent(t *testing.T, data string) {
	t.Helper()
	_, err := f.db.Exec(`INSERT INTO events (sender_id, type_name, data) VALUES ('s1', 'user', ?)`, data)
	require.NoError(t, err)
}

// createApproved creates an annotation as the analyst and approves it as the lead.
func (f *fixture) createApproved(t *testing.T, draft models.AnnotationDraft) *models.Annotation {
	t.Helper()
	ctx := context.Background()
	a, err := f.svc.Create(ctx, f.analyst, draft)
	require.NoError(t, err)
	a, err = f.svc.Review(ctx, f.lead, a.ID, models.ReviewDecision{Approved: true})
	require.NoError(t, err)
	return a
}

func intp(v int) *int { return &v }

func strp(s string) *string { return &s }

func ent(label, value string, start, end int) models.EntityInput {
	return models.EntityInput{Label: label, Value: value, Start: intp(start), End: intp(end)}
}

func intentDraft(text, intent string) models.AnnotationDraft {
	return models.AnnotationDraft{
		ConversationID:  "conv-1",
		MessageText:     text,
		CorrectedIntent: strp(intent),
		AnnotationType:  models.TypeIntent,
	}
}

func bothDraft(text, intent string, entities ...models.EntityInput) models.AnnotationDraft {
	if entities == nil {
		entities = []models.EntityInput{}
	}
	return models.AnnotationDraft{
		ConversationID:    "conv-1",
		MessageText:       text,
		CorrectedIntent:   strp(intent),
		CorrectedEntities: entities,
		AnnotationType:    models.TypeBoth,
	}
}

type recordingNotifier struct {
	mu        sync.Mutex
	submitted []int64
	reviewed  []models.AnnotationStatus
}

func (n *recordingNotifier) AnnotationSubmitted(_ context.Context, a *models.Annotation, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.submitted = append(n.submitted, a.ID)
	return nil
}

func (n *recordingNotifier) AnnotationReviewed(_ context.Context, a *models.Annotation, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reviewed = append(n.reviewed, a.Status)
	return nil
}

func newAuthFixture(t *testing.T) (*fixture, *authService, *session.MemoryStore) {
	t.Helper()
	f := newFixture(t)
	store := session.NewMemoryStore()
	auth := NewAuthService(f.users, f.activity, store, AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour}, zap.NewNop()).(*authService)
	return f, auth, store
}
