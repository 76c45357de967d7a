package shortlist

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advising-workers/internal/common/aws"
	"advising-workers/internal/common/errors"
	"advising-workers/internal/common/logger"
	"advising-workers/internal/models"
	"advising-workers/internal/storage/postgres"
)

var (
	fixedNow = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	universityColumns = []string{
		"id", "name", "location", "country", "rank", "tuition", "acceptance_rate",
		"programs", "description", "tags", "website",
	}
	shortlistColumns = []string{"id", "user_id", "university_id", "created_at"}
)

type recordingNotifier struct {
	events chan aws.StageEvent
}

func (n *recordingNotifier) PublishStageAdvanced(ctx context.Context, ev aws.StageEvent) error {
	n.events <- ev
	return nil
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func createTestEngine(t *testing.T, notifier StageNotifier) (*Engine, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := NewEngine(postgres.NewStore(db), notifier, logger.NewTestLogger(t),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(sequentialIDs()),
	)
	return e, mock
}

func expectLock(mock sqlmock.Sqlmock, userID string, stage int) {
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT stage FROM user_profiles").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"stage"}).AddRow(stage))
}

func expectUniversity(mock sqlmock.Sqlmock, id, name string) {
	mock.ExpectQuery("SELECT id, name, location").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(universityColumns).
			AddRow(id, name, "Toronto, Canada", "Canada", int64(20), 40000.0, "40%", "{Engineering}", nil, nil, nil))
}

func expectNoShortlist(mock sqlmock.Sqlmock, userID, uniID string) {
	mock.ExpectQuery("SELECT id, user_id, university_id, created_at").
		WithArgs(userID, uniID).
		WillReturnError(sql.ErrNoRows)
}

func universityTaskArgs(firstID int, userID, uniID, name string) []driver.Value {
	rows := []struct {
		title    string
		priority string
		stage    int
		due      string
	}{
		{"Research " + name + " admission requirements", "high", 3, "1/13/2024"},
		{"Review " + name + " program curriculum and faculty", "medium", 3, "1/15/2024"},
		{"Prepare application documents for " + name, "high", 4, "1/30/2024"},
		{"Check scholarship opportunities at " + name, "medium", 3, "1/25/2024"},
		{"Submit application to " + name, "high", 5, "2/4/2024"},
	}
	var args []driver.Value
	for i, r := range rows {
		args = append(args, fmt.Sprintf("id-%d", firstID+i), userID, uniID, r.title, r.priority, r.stage, r.due, fixedNow)
	}
	return args
}

func TestEngine_Add_AdvancesStageAndSyncsTasks(t *testing.T) {
	notifier := &recordingNotifier{events: make(chan aws.StageEvent, 1)}
	e, mock := createTestEngine(t, notifier)

	expectLock(mock, "user-1", 2)
	expectUniversity(mock, "uni-1", "Alpha University")
	expectNoShortlist(mock, "user-1", "uni-1")
	mock.ExpectExec("INSERT INTO shortlists").
		WithArgs("id-1", "user-1", "uni-1", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO tasks").
		WithArgs(universityTaskArgs(2, "user-1", "uni-1", "Alpha University")...).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectQuery("UPDATE user_profiles SET stage").
		WithArgs("user-1", 3).
		WillReturnRows(sqlmock.NewRows([]string{"stage"}).AddRow(3))
	mock.ExpectQuery("SELECT title FROM tasks").
		WithArgs("user-1", 3).
		WillReturnRows(sqlmock.NewRows([]string{"title"}).AddRow("Shortlist at least 3 universities"))
	mock.ExpectExec("INSERT INTO tasks").
		WithArgs(
			"id-7", "user-1", nil, "Take required language or aptitude tests", "high", 3, "2/9/2024", fixedNow,
			"id-8", "user-1", nil, "Draft your statement of purpose", "medium", 3, "1/31/2024", fixedNow,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	res, err := e.Add(context.Background(), Request{UserID: "user-1", UniversityID: "uni-1"})
	require.NoError(t, err)

	assert.Equal(t, ActionAdded, res.Action)
	assert.True(t, res.Added)
	assert.Equal(t, 5, res.TasksCreated)
	assert.Equal(t, 2, res.StageTasksCreated)
	assert.Equal(t, 3, res.Stage)
	assert.True(t, res.StageAdvanced)
	require.NotNil(t, res.Shortlist)
	assert.Equal(t, "id-1", res.Shortlist.ID)
	assert.NoError(t, mock.ExpectationsWereMet())

	select {
	case ev := <-notifier.events:
		assert.Equal(t, "user-1", ev.UserID)
		assert.Equal(t, 2, ev.FromStage)
		assert.Equal(t, 3, ev.ToStage)
	case <-time.After(2 * time.Second):
		t.Fatal("stage event not published")
	}
}

func TestEngine_Add_NoAdvancePastStageThree(t *testing.T) {
	e, mock := createTestEngine(t, nil)

	expectLock(mock, "user-1", 4)
	expectUniversity(mock, "uni-1", "Alpha University")
	expectNoShortlist(mock, "user-1", "uni-1")
	mock.ExpectExec("INSERT INTO shortlists").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO tasks").WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	res, err := e.Add(context.Background(), Request{UserID: "user-1", UniversityID: "uni-1"})
	require.NoError(t, err)

	assert.Equal(t, 5, res.TasksCreated)
	assert.Equal(t, 4, res.Stage)
	assert.False(t, res.StageAdvanced)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Add_ConcurrentAdvanceLost(t *testing.T) {
	e, mock := createTestEngine(t, nil)

	expectLock(mock, "user-1", 2)
	expectUniversity(mock, "uni-1", "Alpha University")
	expectNoShortlist(mock, "user-1", "uni-1")
	mock.ExpectExec("INSERT INTO shortlists").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO tasks").WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectQuery("UPDATE user_profiles SET stage").
		WithArgs("user-1", 3).
		WillReturnRows(sqlmock.NewRows([]string{"stage"}))
	mock.ExpectCommit()

	res, err := e.Add(context.Background(), Request{UserID: "user-1", UniversityID: "uni-1"})
	require.NoError(t, err)
	assert.False(t, res.StageAdvanced)
	assert.Equal(t, 2, res.Stage)
	assert.Equal(t, 5, res.TasksCreated)
}

func TestEngine_Add_AlreadyPresent(t *testing.T) {
	e, mock := createTestEngine(t, nil)

	expectLock(mock, "user-1", 3)
	expectUniversity(mock, "uni-1", "Alpha University")
	mock.ExpectQuery("SELECT id, user_id, university_id, created_at").
		WithArgs("user-1", "uni-1").
		WillReturnRows(sqlmock.NewRows(shortlistColumns).AddRow("s-1", "user-1", "uni-1", fixedNow))
	mock.ExpectCommit()

	res, err := e.Add(context.Background(), Request{UserID: "user-1", UniversityID: "uni-1"})
	require.NoError(t, err)

	assert.False(t, res.Added)
	assert.True(t, res.AlreadyPresent)
	assert.Equal(t, ActionUnchanged, res.Action)
	assert.Zero(t, res.TasksCreated)
	assert.Equal(t, "s-1", res.Shortlist.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Add_UniqueViolation(t *testing.T) {
	e, mock := createTestEngine(t, nil)

	expectLock(mock, "user-1", 3)
	expectUniversity(mock, "uni-1", "Alpha University")
	expectNoShortlist(mock, "user-1", "uni-1")
	mock.ExpectExec("INSERT INTO shortlists").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "shortlists_user_university_key"})
	mock.ExpectRollback()

	_, err := e.Add(context.Background(), Request{UserID: "user-1", UniversityID: "uni-1"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeShortlistConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Add_UnknownLocalUniversity(t *testing.T) {
	e, mock := createTestEngine(t, nil)

	expectLock(mock, "user-1", 1)
	mock.ExpectQuery("SELECT id, name, location").
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := e.Add(context.Background(), Request{UserID: "user-1", UniversityID: "nope"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeUniversityNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Add_ExternalWithoutPayload(t *testing.T) {
	e, mock := createTestEngine(t, nil)

	expectLock(mock, "user-1", 1)
	mock.ExpectRollback()

	_, err := e.Add(context.Background(), Request{UserID: "user-1", UniversityID: "ext-0-alpha"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeUniversityNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Add_ExternalMaterialized(t *testing.T) {
	e, mock := createTestEngine(t, nil)
	rank := 130
	payload := &models.University{
		ID:             "ext-0-gamma-institute",
		Name:           "Gamma Institute",
		Country:        "Chile",
		Location:       "Chile",
		Rank:           &rank,
		Tuition:        33000,
		AcceptanceRate: "38%",
		Source:         models.SourceExternal,
	}

	expectLock(mock, "user-1", 3)
	mock.ExpectQuery("WHERE lower\\(name\\) = lower\\(\\$1\\)").
		WithArgs("Gamma Institute").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO universities").
		WithArgs("id-1", "Gamma Institute", "Chile", "Chile", int64(130), 33000.0, "38%",
			sqlmock.AnyArg(), "", sqlmock.AnyArg(), "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectNoShortlist(mock, "user-1", "id-1")
	mock.ExpectExec("INSERT INTO shortlists").
		WithArgs("id-2", "user-1", "id-1", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO tasks").
		WithArgs(universityTaskArgs(3, "user-1", "id-1", "Gamma Institute")...).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	res, err := e.Add(context.Background(), Request{UserID: "user-1", UniversityID: payload.ID, University: payload})
	require.NoError(t, err)
	assert.Equal(t, "id-1", res.UniversityID)
	assert.True(t, res.Added)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Remove(t *testing.T) {
	e, mock := createTestEngine(t, nil)

	expectLock(mock, "user-1", 3)
	expectUniversity(mock, "uni-1", "Alpha University")
	mock.ExpectExec("DELETE FROM shortlists").
		WithArgs("user-1", "uni-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM tasks").
		WithArgs("user-1", "uni-1").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	res, err := e.Remove(context.Background(), Request{UserID: "user-1", UniversityID: "uni-1"})
	require.NoError(t, err)

	assert.Equal(t, ActionRemoved, res.Action)
	assert.True(t, res.Removed)
	assert.EqualValues(t, 5, res.TasksDeleted)
	assert.Equal(t, 3, res.Stage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Remove_NotShortlisted(t *testing.T) {
	e, mock := createTestEngine(t, nil)

	expectLock(mock, "user-1", 3)
	expectUniversity(mock, "uni-1", "Alpha University")
	mock.ExpectExec("DELETE FROM shortlists").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	res, err := e.Remove(context.Background(), Request{UserID: "user-1", UniversityID: "uni-1"})
	require.NoError(t, err)
	assert.False(t, res.Removed)
	assert.Equal(t, ActionUnchanged, res.Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Toggle_RemovesWhenPresent(t *testing.T) {
	e, mock := createTestEngine(t, nil)

	expectLock(mock, "user-1", 3)
	expectUniversity(mock, "uni-1", "Alpha University")
	mock.ExpectQuery("SELECT id, user_id, university_id, created_at").
		WithArgs("user-1", "uni-1").
		WillReturnRows(sqlmock.NewRows(shortlistColumns).AddRow("s-1", "user-1", "uni-1", fixedNow))
	mock.ExpectExec("DELETE FROM shortlists").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM tasks").WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	res, err := e.Toggle(context.Background(), Request{UserID: "user-1", UniversityID: "uni-1"})
	require.NoError(t, err)
	assert.Equal(t, ActionRemoved, res.Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Toggle_AddsWhenAbsent(t *testing.T) {
	e, mock := createTestEngine(t, nil)

	expectLock(mock, "user-1", 3)
	expectUniversity(mock, "uni-1", "Alpha University")
	expectNoShortlist(mock, "user-1", "uni-1")
	mock.ExpectExec("INSERT INTO shortlists").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO tasks").WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	res, err := e.Toggle(context.Background(), Request{UserID: "user-1", UniversityID: "uni-1"})
	require.NoError(t, err)
	assert.Equal(t, ActionAdded, res.Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_ValidationBeforeSideEffects(t *testing.T) {
	e, mock := createTestEngine(t, nil)

	tests := []Request{
		{UserID: "", UniversityID: "uni-1"},
		{UserID: "user-1", UniversityID: "  "},
	}
	for _, req := range tests {
		_, err := e.Toggle(context.Background(), req)
		assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_MissingProfile(t *testing.T) {
	e, mock := createTestEngine(t, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT stage FROM user_profiles").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := e.Add(context.Background(), Request{UserID: "ghost", UniversityID: "uni-1"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeProfileNotFound))
}

func TestEngine_SyncStageTasks_Idempotent(t *testing.T) {
	e, mock := createTestEngine(t, nil)

	expectLock(mock, "user-1", 4)
	mock.ExpectQuery("SELECT title FROM tasks").
		WithArgs("user-1", 4).
		WillReturnRows(sqlmock.NewRows([]string{"title"}))
	mock.ExpectExec("INSERT INTO tasks").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	expectLock(mock, "user-1", 4)
	mock.ExpectQuery("SELECT title FROM tasks").
		WithArgs("user-1", 4).
		WillReturnRows(sqlmock.NewRows([]string{"title"}).
			AddRow("Request letters of recommendation").
			AddRow("Finalize your statement of purpose").
			AddRow("Order official transcripts"))
	mock.ExpectCommit()

	n, err := e.SyncStageTasks(context.Background(), "user-1", 4)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = e.SyncStageTasks(context.Background(), "user-1", 4)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_SyncStageTasks_UnknownStage(t *testing.T) {
	e, mock := createTestEngine(t, nil)

	expectLock(mock, "user-1", 2)
	mock.ExpectCommit()

	n, err := e.SyncStageTasks(context.Background(), "user-1", 9)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = e.SyncStageTasks(context.Background(), "user-1", 0)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_SyncStageTasks_InsertFailure(t *testing.T) {
	e, mock := createTestEngine(t, nil)

	expectLock(mock, "user-1", 3)
	mock.ExpectQuery("SELECT title FROM tasks").WillReturnRows(sqlmock.NewRows([]string{"title"}))
	mock.ExpectExec("INSERT INTO tasks").WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err := e.SyncStageTasks(context.Background(), "user-1", 3)
	assert.True(t, errors.HasCode(err, errors.ErrCodeTaskSyncFailed))
}
