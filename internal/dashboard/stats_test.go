package dashboard

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"HealthCheckIn/internal/model"
)

func sub(checkInType string) model.Submission {
	return model.Submission{CheckInType: checkInType}
}

func TestComputeStatsMixedTypes(t *testing.T) {
	got := ComputeStats([]model.Submission{sub("Daily"), sub("Weekly"), sub("one_time")})

	want := model.DashboardStats{TotalCheckIns: 2, DailyCount: 1, WeeklyCount: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeStatsUnknownTypeCountsAsDaily(t *testing.T) {
	got := ComputeStats([]model.Submission{sub("bogus")})
	assert.Equal(t, 1, got.DailyCount)
	assert.Equal(t, 1, got.TotalCheckIns)
}

func TestComputeStatsOneTimeNeverCounted(t *testing.T) {
	for _, raw := range []string{"one_time", "ONE_TIME", "One_Time"} {
		got := ComputeStats([]model.Submission{sub(raw)})
		assert.Equal(t, model.DashboardStats{}, got, raw)
	}
}

func TestComputeStatsTotalIsSumOfBuckets(t *testing.T) {
	types := []string{"daily", "WEEKLY", "monthly", "Monthly", "one_time", "", "x", "weekly", "ONE_TIME", "daily"}
	var subs []model.Submission
	for i := range types {
		subs = append(subs, sub(types[i]))
		got := ComputeStats(subs)
		assert.Equal(t, got.TotalCheckIns, got.DailyCount+got.WeeklyCount+got.MonthlyCount, "after %d submissions", i+1)
	}
}

func TestComputeStatsMedication(t *testing.T) {
	subs := []model.Submission{
		{CheckInType: "daily", Answers: map[string]any{"medication": true}},
		{CheckInType: "daily", Answers: map[string]any{"medication_taken": "Yes"}},
		{CheckInType: "weekly", Answers: map[string]any{"medications": []any{"aspirin"}}},
		{CheckInType: "daily", Answers: map[string]any{"medication": "no"}},
		{CheckInType: "daily", Answers: map[string]any{"medication": float64(0)}},
		{CheckInType: "one_time", Answers: map[string]any{"medication": true}},
	}

	got := ComputeStats(subs)
	assert.Equal(t, 3, got.MedicationCount)
	assert.Equal(t, 5, got.TotalCheckIns)
}
