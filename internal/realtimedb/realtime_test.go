package realtimedb

import (
	"context"
	"testing"

	"github.com/resq-app/resq-backend/internal/constants"
	"github.com/resq-app/resq-backend/internal/firebase/structs"
	"github.com/resq-app/resq-backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertCountersRecord(t *testing.T) {
	mock := &MockClient{}
	counters := NewAlertCounters(mock)
	ctx := context.Background()

	require.NoError(t, counters.Record(ctx, 2, 1))
	require.NoError(t, counters.Record(ctx, 3, 0))

	date := utils.FormatDate(utils.GetTimeNow())

	for _, key := range []string{date, "total"} {
		var state structs.AlertCounters
		require.NoError(t, mock.Get(constants.DbAlertCountersPath+"/"+key, &state))
		assert.Equal(t, structs.AlertCounters{AlertsCount: 2, DeliveredCount: 5, FailedCount: 1}, state, key)
	}
}
