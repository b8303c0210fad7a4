package simulation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/previsim/previsim/services/simulation/datatypes"
)

func TestStore_MergeMonotonicLastUpdate(t *testing.T) {
	store := NewStore(testSnapshot())

	// Freeze the clock so consecutive merges land on the same millisecond.
	frozen := time.Now()
	store.now = func() time.Time { return frozen }

	var updates []int64
	for i := 0; i < 5; i++ {
		next, changed := store.Merge(datatypes.ParameterPatch{
			ContributionRate: datatypes.Float64Ptr(float64(10 + i)),
		})
		require.True(t, changed)
		updates = append(updates, next.LastUpdate)
	}
	for i := 1; i < len(updates); i++ {
		assert.Greater(t, updates[i], updates[i-1],
			"LastUpdate must strictly increase even within one millisecond")
	}
}

func TestStore_MergeZeroPatchIsFiltered(t *testing.T) {
	store := NewStore(testSnapshot())

	fired := 0
	store.OnChange(func(_, _ datatypes.ParameterSnapshot) { fired++ })

	before := store.Current()
	got, changed := store.Merge(datatypes.ParameterPatch{})

	assert.False(t, changed)
	assert.Equal(t, before, got)
	assert.Zero(t, fired, "zero patch must not notify listeners")
}

func TestStore_ListenersSeeBothSnapshots(t *testing.T) {
	store := NewStore(testSnapshot())

	var gotPrev, gotNext datatypes.ParameterSnapshot
	store.OnChange(func(prev, next datatypes.ParameterSnapshot) {
		gotPrev, gotNext = prev, next
	})

	store.Merge(datatypes.ParameterPatch{MonthlySalary: datatypes.Float64Ptr(9000)})

	assert.Equal(t, 8000.0, gotPrev.MonthlySalary)
	assert.Equal(t, 9000.0, gotNext.MonthlySalary)
}

func TestStore_SetResultDiscardsSuperseded(t *testing.T) {
	store := NewStore(testSnapshot())

	sent := datatypes.Normalize(store.Current())
	store.RecordDispatch(sent, sent.Fingerprint())

	// A response tagged with any other fingerprint answers a superseded
	// request and must be dropped.
	accepted := store.SetResult(datatypes.ResultSnapshot{
		Fingerprint:    "deadbeef",
		MonthlyBenefit: 1,
	})
	assert.False(t, accepted)
	assert.Nil(t, store.Result())

	accepted = store.SetResult(datatypes.ResultSnapshot{
		Fingerprint:    sent.Fingerprint(),
		MonthlyBenefit: 4200,
	})
	require.True(t, accepted)
	require.NotNil(t, store.Result())
	assert.Equal(t, 4200.0, store.Result().MonthlyBenefit)
	assert.False(t, store.Result().Stale)
}

func TestStore_SetResultMarksStaleWhenCurrentMovedOn(t *testing.T) {
	store := NewStore(testSnapshot())

	sent := datatypes.Normalize(store.Current())
	fp := sent.Fingerprint()
	store.RecordDispatch(sent, fp)

	// The user keeps editing while the request is in flight.
	store.Merge(datatypes.ParameterPatch{ContributionRate: datatypes.Float64Ptr(14.5)})

	accepted := store.SetResult(datatypes.ResultSnapshot{Fingerprint: fp, MonthlyBenefit: 4200})
	require.True(t, accepted, "a result matching the dispatch record is still stored")
	assert.True(t, store.Result().Stale, "but flagged stale against the newer snapshot")
}

func TestStore_ErrorNeverClearsLastResult(t *testing.T) {
	store := NewStore(testSnapshot())

	sent := datatypes.Normalize(store.Current())
	store.RecordDispatch(sent, sent.Fingerprint())
	require.True(t, store.SetResult(datatypes.ResultSnapshot{
		Fingerprint:    sent.Fingerprint(),
		MonthlyBenefit: 4200,
	}))

	store.SetError(errors.New("compute unreachable"))

	require.NotNil(t, store.Result(), "last good result survives a failure")
	assert.Equal(t, 4200.0, store.Result().MonthlyBenefit)
	assert.Error(t, store.Err())
}

func TestStore_SetResultClearsError(t *testing.T) {
	store := NewStore(testSnapshot())
	store.SetError(errors.New("compute unreachable"))

	sent := datatypes.Normalize(store.Current())
	store.RecordDispatch(sent, sent.Fingerprint())
	require.True(t, store.SetResult(datatypes.ResultSnapshot{Fingerprint: sent.Fingerprint()}))

	assert.NoError(t, store.Err())
}

func TestStore_ResultListenerFires(t *testing.T) {
	store := NewStore(testSnapshot())

	var got *datatypes.ResultSnapshot
	store.OnResult(func(res datatypes.ResultSnapshot) { got = &res })

	sent := datatypes.Normalize(store.Current())
	store.RecordDispatch(sent, sent.Fingerprint())
	store.SetResult(datatypes.ResultSnapshot{Fingerprint: sent.Fingerprint(), MonthlyBenefit: 4200})

	require.NotNil(t, got)
	assert.Equal(t, 4200.0, got.MonthlyBenefit)
}

func TestStore_ReplaceNotifiesListeners(t *testing.T) {
	store := NewStore(testSnapshot())

	fired := 0
	store.OnChange(func(_, _ datatypes.ParameterSnapshot) { fired++ })

	next := testSnapshot()
	next.MonthlySalary = 12000
	installed := store.Replace(next)

	assert.Equal(t, 1, fired)
	assert.Equal(t, 12000.0, store.Current().MonthlySalary)
	assert.Greater(t, installed.LastUpdate, int64(0))
}
