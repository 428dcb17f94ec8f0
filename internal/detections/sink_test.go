package detections

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestRecordViolation_CommitsDetectionAndAlertTogether(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO detection_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO alerts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	sink := NewSink(db)
	detID, alertID, ok := sink.RecordViolation(context.Background(), DetectionFields{
		CameraID:       "cam-1",
		Timestamp:      time.Now(),
		WorkerID:       "2",
		PersonDetected: true,
		NoVestDetected: true,
		ViolationType:  "MissingVest",
	}, AlertFields{Severity: SeverityMedium, Message: "worker missing vest"})

	require.True(t, ok)
	require.NotEmpty(t, detID)
	require.NotEmpty(t, alertID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordViolation_RollsBackBothOnAlertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO detection_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO alerts").WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	sink := NewSink(db)
	_, _, ok := sink.RecordViolation(context.Background(), DetectionFields{
		CameraID: "cam-1", Timestamp: time.Now(), WorkerID: "2",
	}, AlertFields{Severity: SeverityHigh, Message: "x"})

	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCompliance_Commits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO detection_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	sink := NewSink(db)
	id, ok := sink.RecordCompliance(context.Background(), DetectionFields{
		CameraID: "cam-1", Timestamp: time.Now(), WorkerID: "1", IsCompliant: true, PersonDetected: true,
	})

	require.True(t, ok)
	require.NotEmpty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeverityFor(t *testing.T) {
	require.Equal(t, SeverityHigh, SeverityFor("MissingBoth"))
	require.Equal(t, SeverityHigh, SeverityFor("MissingHardhat"))
	require.Equal(t, SeverityMedium, SeverityFor("MissingVest"))
}
