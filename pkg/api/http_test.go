package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HealthCheckIn/internal/model"
	"HealthCheckIn/pkg/errors"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(srv.URL, WithToken("secret"), WithTimeout(2*time.Second))
	require.NoError(t, err)
	return c
}

func TestFetchSubmissionsDecodesEnvelope(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathSubmissions, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"data":[{"id":12,"checkin_type":"Daily","status":"submitted","submitted_at":"2024-05-01T08:00:00Z","answers":{"1":"ok"}}]}`)
	})

	subs, err := c.FetchSubmissions(context.Background())
	require.NoError(t, err)

	want := []model.Submission{{
		ID:          "12",
		CheckInType: "Daily",
		Status:      "submitted",
		SubmittedAt: "2024-05-01T08:00:00Z",
		Answers:     map[string]any{"1": "ok"},
	}}
	if diff := cmp.Diff(want, subs); diff != "" {
		t.Errorf("submissions mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchPointsAcceptsBarePayload(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"total":150}`)
	})

	total, err := c.FetchPointsTotal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 150, total)
}

func TestFetchWeatherSendsCoordinates(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "37.7749", r.URL.Query().Get("lat"))
		assert.Equal(t, "-122.4194", r.URL.Query().Get("lon"))
		_, _ = io.WriteString(w, `{"data":{"location":"SF","condition":"fog","temperature_c":14.5}}`)
	})

	coord := model.Coordinate{Latitude: 37.7749, Longitude: -122.4194}
	w, err := c.FetchWeather(context.Background(), coord)
	require.NoError(t, err)
	assert.Equal(t, "fog", w.Condition)
	assert.Equal(t, coord, w.Coordinate)
}

func TestSubmitAnswersPostsJSON(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/check-ins/weekly/submissions", r.URL.Path)

		var body submitPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "good", body.Answers["mood"])

		_, _ = io.WriteString(w, `{"data":{"id":"s-1","checkin_type":"weekly","status":"pending","submitted_at":"2024-05-01T08:00:00Z","answers":{"mood":"good"}}}`)
	})

	sub, err := c.SubmitAnswers(context.Background(), model.CheckInTypeWeekly, map[string]any{"mood": "good"})
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionID("s-1"), sub.ID)
}

func TestErrorStatusBecomesTransportError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.FetchQuestionSchema(context.Background(), model.CheckInTypeDaily)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransport)

	var te *errors.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.Equal(t, "fetch_question_schema", te.Operation)
}

func TestMalformedBodyBecomesTransportError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	})

	_, err := c.FetchPointsTotal(context.Background())
	assert.ErrorIs(t, err, errors.ErrTransport)
}

func TestNewHTTPClientRejectsBadURL(t *testing.T) {
	_, err := NewHTTPClient("::not a url")
	assert.Error(t, err)
}

func TestMockClientFailureInjection(t *testing.T) {
	m := NewMockClient()
	m.PointsTotal = 10

	total, err := m.FetchPointsTotal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, total)

	m.SetFail("FetchPointsTotal", true)
	_, err = m.FetchPointsTotal(context.Background())
	assert.ErrorIs(t, err, errors.ErrTransport)
	assert.Equal(t, 2, m.CallCount("FetchPointsTotal"))
}
