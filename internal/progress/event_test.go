package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func validEvent(stage Stage) Event {
	evt := Event{
		RunID: UUIDToBytes(uuid.New()),
		TS:    time.Now().UTC(),
		Stage: stage,
	}
	switch stage {
	case StageProfileStart, StageProfileDone, StageProfileError:
		evt.UserID = "u123"
	case StageFetchStart, StageSoftBlock, StageEscalate, StageGiveUp:
		evt.URL = "https://scholar.google.com/citations?user=u123"
	case StageFetchDone:
		evt.URL = "https://scholar.google.com/citations?user=u123"
		evt.StatusClass = Status2xx
	}
	return evt
}

func TestValidateAcceptsAllStages(t *testing.T) {
	t.Parallel()

	stages := []Stage{
		StageRunStart, StageRunDone,
		StageProfileStart, StageProfileDone, StageProfileError,
		StageFetchStart, StageFetchDone,
		StageSoftBlock, StageEscalate,
		StagePauseStart, StagePauseEnd,
		StageGiveUp,
	}
	for _, stage := range stages {
		require.NoError(t, validEvent(stage).Validate(), "stage %s", stage)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	t.Parallel()

	missingRun := validEvent(StageRunStart)
	missingRun.RunID = [16]byte{}
	require.Error(t, missingRun.Validate())

	missingTS := validEvent(StageRunStart)
	missingTS.TS = time.Time{}
	require.Error(t, missingTS.Validate())

	missingUser := validEvent(StageProfileDone)
	missingUser.UserID = ""
	require.Error(t, missingUser.Validate())

	missingURL := validEvent(StageFetchStart)
	missingURL.URL = ""
	require.Error(t, missingURL.Validate())

	missingClass := validEvent(StageFetchDone)
	missingClass.StatusClass = ""
	require.Error(t, missingClass.Validate())

	unknown := validEvent(StageRunStart)
	unknown.Stage = "NOT_A_STAGE"
	require.Error(t, unknown.Validate())

	negativeDur := validEvent(StageRunDone)
	negativeDur.Dur = -time.Second
	require.Error(t, negativeDur.Validate())
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, Status2xx, ClassifyStatus(200))
	require.Equal(t, Status3xx, ClassifyStatus(302))
	require.Equal(t, Status4xx, ClassifyStatus(429))
	require.Equal(t, Status5xx, ClassifyStatus(503))
	require.Equal(t, StatusOther, ClassifyStatus(0))
}

func TestRunUUIDRoundTrip(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	evt := Event{RunID: UUIDToBytes(id)}
	require.Equal(t, id, evt.RunUUID())
}
