package verify

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longbox-labs/entity-verify/internal/model"
	"github.com/longbox-labs/entity-verify/internal/resilience"
	"github.com/longbox-labs/entity-verify/internal/source"
	"github.com/longbox-labs/entity-verify/internal/store"
)

type fakeAdapter struct {
	name       string
	confidence float64
	fields     map[string]any
	err        error
	calls      atomic.Int32
}

func (f *fakeAdapter) Name() string        { return f.name }
func (f *fakeAdapter) Confidence() float64 { return f.confidence }

func (f *fakeAdapter) Fetch(_ context.Context, _ string) (*model.SourceRecord, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if f.fields == nil {
		return nil, nil
	}
	return &model.SourceRecord{Source: f.name, Confidence: f.confidence, Fields: f.fields}, nil
}

// authErr categorizes as auth (non-retryable) so failure tests stay fast.
type authErr struct{}

func (authErr) Error() string   { return "401 unauthorized" }
func (authErr) HTTPStatus() int { return 401 }

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestReconciler(t *testing.T, st store.Store, adapters ...source.Adapter) *Reconciler {
	t.Helper()
	fetcher := resilience.NewFetcher(resilience.NewSourceBreakers(resilience.CircuitBreakerConfig{}))
	return NewReconciler(st, source.NewRegistry(adapters...), fetcher, nil, Config{
		Retry: resilience.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond},
	})
}

func seedEntity(t *testing.T, st store.Store, name string) *model.Entity {
	t.Helper()
	e, err := st.CreateEntity(context.Background(), model.TableCharacters, name, model.EntityTypeCharacter)
	require.NoError(t, err)
	return e
}

func job(id int64, name string) model.VerificationJob {
	return model.VerificationJob{
		EntityID:      id,
		CanonicalName: name,
		EntityType:    model.EntityTypeCharacter,
		TableType:     model.TableCharacters,
	}
}

func TestVerifyEntity_SingleSource(t *testing.T) {
	st := newTestStore(t)
	e := seedEntity(t, st, "Spider-Man")

	a := &fakeAdapter{name: "comic_vine", confidence: 0.9, fields: map[string]any{
		model.FieldRealName:  "Peter Parker",
		model.FieldPublisher: "Marvel",
	}}
	r := newTestReconciler(t, st, a)

	result, err := r.VerifyEntity(context.Background(), job(e.ID, "Spider-Man"))
	require.NoError(t, err)

	assert.Equal(t, model.StatusVerified, result.Status)
	assert.Equal(t, []string{"comic_vine"}, result.SourcesUsed)
	assert.Equal(t, "comic_vine", result.PrimarySource)
	assert.Equal(t, 2, result.FieldCount)
	assert.Zero(t, result.ConflictCount)
	assert.Equal(t, 1, result.AttemptsBySource["comic_vine"])

	got, err := st.GetEntity(context.Background(), model.TableCharacters, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, got.Status)
	assert.Equal(t, "Peter Parker", got.VerifiedFields[model.FieldRealName])
	assert.Equal(t, []string{"comic_vine"}, got.DataSourceBreakdown[model.FieldRealName])
	assert.Nil(t, got.SourceConflicts)
	require.NotNil(t, got.LastVerifiedAt)
}

func TestVerifyEntity_TwoSourcesAgree(t *testing.T) {
	st := newTestStore(t)
	e := seedEntity(t, st, "Spider-Man")

	r := newTestReconciler(t, st,
		&fakeAdapter{name: "marvel", confidence: 0.95, fields: map[string]any{
			model.FieldFirstAppearance: "Amazing Fantasy #15",
		}},
		&fakeAdapter{name: "comic_vine", confidence: 0.9, fields: map[string]any{
			model.FieldFirstAppearance: "Amazing Fantasy #15",
			model.FieldRealName:        "Peter Parker",
		}},
	)

	result, err := r.VerifyEntity(context.Background(), job(e.ID, "Spider-Man"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, result.Status)
	assert.Zero(t, result.ConflictCount)

	got, err := st.GetEntity(context.Background(), model.TableCharacters, e.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"marvel", "comic_vine"},
		got.DataSourceBreakdown[model.FieldFirstAppearance])
	assert.Nil(t, got.SourceConflicts)
}

func TestVerifyEntity_ConflictHigherConfidenceWins(t *testing.T) {
	st := newTestStore(t)
	e := seedEntity(t, st, "Spider-Man")

	r := newTestReconciler(t, st,
		&fakeAdapter{name: "marvel", confidence: 0.95, fields: map[string]any{
			model.FieldFirstAppearance: "Issue #1 (1963)",
		}},
		&fakeAdapter{name: "superhero_api", confidence: 0.8, fields: map[string]any{
			model.FieldFirstAppearance: "Issue #1 (1962)",
		}},
	)

	result, err := r.VerifyEntity(context.Background(), job(e.ID, "Spider-Man"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusDisputed, result.Status)
	assert.Equal(t, 1, result.ConflictCount)
	assert.Equal(t, "marvel", result.PrimarySource)

	got, err := st.GetEntity(context.Background(), model.TableCharacters, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDisputed, got.Status)
	assert.Equal(t, "Issue #1 (1963)", got.VerifiedFields[model.FieldFirstAppearance])
	require.Len(t, got.SourceConflicts, 1)
	conflict := got.SourceConflicts[model.FieldFirstAppearance]
	assert.Equal(t, "Issue #1 (1963)", conflict["marvel"])
	assert.Equal(t, "Issue #1 (1962)", conflict["superhero_api"])
	assert.ElementsMatch(t, []string{"marvel", "superhero_api"},
		got.DataSourceBreakdown[model.FieldFirstAppearance])
}

func TestVerifyEntity_TieBreaksLexicographically(t *testing.T) {
	st := newTestStore(t)
	e := seedEntity(t, st, "Spider-Man")

	r := newTestReconciler(t, st,
		&fakeAdapter{name: "zeta_source", confidence: 0.9, fields: map[string]any{
			model.FieldRealName: "Pete Parker",
		}},
		&fakeAdapter{name: "alpha_source", confidence: 0.9, fields: map[string]any{
			model.FieldRealName: "Peter Parker",
		}},
	)

	_, err := r.VerifyEntity(context.Background(), job(e.ID, "Spider-Man"))
	require.NoError(t, err)

	got, err := st.GetEntity(context.Background(), model.TableCharacters, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Peter Parker", got.VerifiedFields[model.FieldRealName])
	assert.ElementsMatch(t, []string{"alpha_source", "zeta_source"},
		got.DataSourceBreakdown[model.FieldRealName])
	assert.Equal(t, "alpha_source", got.PrimaryDataSource)
}

func TestVerifyEntity_NoData(t *testing.T) {
	st := newTestStore(t)
	e := seedEntity(t, st, "Obscurity Lad")

	r := newTestReconciler(t, st,
		&fakeAdapter{name: "comic_vine", confidence: 0.9}, // no match
		&fakeAdapter{name: "marvel", confidence: 0.95, err: authErr{}},
	)

	_, err := r.VerifyEntity(context.Background(), job(e.ID, "Obscurity Lad"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_data")

	// No partial write: the entity stays unverified.
	got, err := st.GetEntity(context.Background(), model.TableCharacters, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnverified, got.Status)
	assert.Nil(t, got.LastVerifiedAt)
}

func TestVerifyEntity_FailingAdapterDoesNotAbort(t *testing.T) {
	st := newTestStore(t)
	e := seedEntity(t, st, "Spider-Man")

	r := newTestReconciler(t, st,
		&fakeAdapter{name: "marvel", confidence: 0.95, err: authErr{}},
		&fakeAdapter{name: "comic_vine", confidence: 0.9, fields: map[string]any{
			model.FieldRealName: "Peter Parker",
		}},
	)

	result, err := r.VerifyEntity(context.Background(), job(e.ID, "Spider-Man"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, result.Status)
	assert.Equal(t, []string{"comic_vine"}, result.SourcesUsed)
	assert.Equal(t, 1, result.AttemptsBySource["marvel"])
	assert.Equal(t, 1, result.AttemptsBySource["comic_vine"])
}

func TestVerifyEntity_SkipsRecentlyVerified(t *testing.T) {
	st := newTestStore(t)
	e := seedEntity(t, st, "Spider-Man")

	a := &fakeAdapter{name: "comic_vine", confidence: 0.9, fields: map[string]any{
		model.FieldRealName: "Peter Parker",
	}}
	r := newTestReconciler(t, st, a)

	_, err := r.VerifyEntity(context.Background(), job(e.ID, "Spider-Man"))
	require.NoError(t, err)
	require.Equal(t, int32(1), a.calls.Load())

	// Second run within the freshness window is skipped without touching
	// any adapter.
	result, err := r.VerifyEntity(context.Background(), job(e.ID, "Spider-Man"))
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, SkipReasonRecent, result.SkipReason)
	assert.Equal(t, int32(1), a.calls.Load())

	// forceRefresh bypasses the window.
	j := job(e.ID, "Spider-Man")
	j.ForceRefresh = true
	result, err = r.VerifyEntity(context.Background(), j)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, int32(2), a.calls.Load())
}

func TestVerifyEntity_MaxAgeOverridesFreshnessWindow(t *testing.T) {
	st := newTestStore(t)
	e := seedEntity(t, st, "Spider-Man")

	a := &fakeAdapter{name: "comic_vine", confidence: 0.9, fields: map[string]any{
		model.FieldRealName: "Peter Parker",
	}}
	r := newTestReconciler(t, st, a)

	_, err := r.VerifyEntity(context.Background(), job(e.ID, "Spider-Man"))
	require.NoError(t, err)
	require.Equal(t, int32(1), a.calls.Load())

	// A wider per-job window still skips.
	j := job(e.ID, "Spider-Man")
	j.MaxAgeHours = 720
	result, err := r.VerifyEntity(context.Background(), j)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, int32(1), a.calls.Load())

	// Pretend the clock moved past a 1-hour window.
	r.nowFunc = func() time.Time { return time.Now().Add(2 * time.Hour) }
	j.MaxAgeHours = 1
	result, err = r.VerifyEntity(context.Background(), j)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, int32(2), a.calls.Load())
}

func TestVerifyEntity_EntityNotFound(t *testing.T) {
	st := newTestStore(t)
	r := newTestReconciler(t, st, &fakeAdapter{name: "comic_vine", confidence: 0.9})

	_, err := r.VerifyEntity(context.Background(), job(99999, "Nobody"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity not found")
}

func TestVerifyEntity_DataCompleteness(t *testing.T) {
	st := newTestStore(t)
	e := seedEntity(t, st, "Spider-Man")

	r := newTestReconciler(t, st,
		&fakeAdapter{name: "comic_vine", confidence: 0.9, fields: map[string]any{
			model.FieldRealName:        "Peter Parker",
			model.FieldBiography:       "Wall-crawler.",
			model.FieldFirstAppearance: "Amazing Fantasy #15",
		}},
	)

	_, err := r.VerifyEntity(context.Background(), job(e.ID, "Spider-Man"))
	require.NoError(t, err)

	got, err := st.GetEntity(context.Background(), model.TableCharacters, e.ID)
	require.NoError(t, err)
	assert.InDelta(t, 3.0/float64(len(model.CoreFields)), got.DataCompleteness, 1e-9)
}
