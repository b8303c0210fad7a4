package compute

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/previsim/previsim/services/simulation/datatypes"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{BaseURL: srv.URL, RequestTimeout: 5 * time.Second})
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestClient_Defaults(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/defaults", r.URL.Path)
		json.NewEncoder(w).Encode(datatypes.ParameterSnapshot{
			CurrentAge:    30,
			MonthlySalary: 8000,
		})
	}))

	snap, err := client.Defaults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, snap.CurrentAge)
	assert.Equal(t, 8000.0, snap.MonthlySalary)
}

func TestClient_Calculate(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/calculate", r.URL.Path)
		var snap datatypes.ParameterSnapshot
		require.NoError(t, json.NewDecoder(r.Body).Decode(&snap))
		json.NewEncoder(w).Encode(datatypes.ResultSnapshot{
			Fingerprint:    snap.Fingerprint(),
			MonthlyBenefit: 4200,
		})
	}))

	snap := datatypes.ParameterSnapshot{CurrentAge: 30, MonthlySalary: 8000}
	res, err := client.Calculate(context.Background(), snap)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 4200.0, res.MonthlyBenefit)
	assert.Equal(t, snap.Fingerprint(), res.Fingerprint)
}

func TestClient_CalculateDeferredToPushChannel(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	res, err := client.Calculate(context.Background(), datatypes.ParameterSnapshot{})
	require.NoError(t, err)
	assert.Nil(t, res, "202 means the result arrives over the push channel")
}

func TestClient_ErrorClasses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorClass
	}{
		{"not found", http.StatusNotFound, `{"error":"unknown mortality table"}`, ClassNotFound},
		{"validation", http.StatusUnprocessableEntity, `{"error":"retirement before current age"}`, ClassValidation},
		{"other 4xx is validation", http.StatusBadRequest, `{"message":"malformed body"}`, ClassValidation},
		{"server", http.StatusInternalServerError, "boom", ClassServer},
		{"bad gateway", http.StatusBadGateway, "", ClassServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))

			_, err := client.Calculate(context.Background(), datatypes.ParameterSnapshot{})
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.want, apiErr.Class)
			assert.Equal(t, tt.want, Classify(err))
		})
	}
}

func TestClient_ErrorMessageExtraction(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"contribution rate out of range"}`))
	}))

	_, err := client.Calculate(context.Background(), datatypes.ParameterSnapshot{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "contribution rate out of range", apiErr.Message)
}

func TestClient_TransportErrorClassifiesAsTransport(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://127.0.0.1:1", RequestTimeout: time.Second})
	require.NoError(t, err)

	_, err = client.Defaults(context.Background())
	require.Error(t, err)
	assert.Equal(t, ClassTransport, Classify(err))
}

func TestClient_Suggestions(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/suggestions", r.URL.Path)
		var req SuggestionsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 3, req.MaxSuggestions)
		json.NewEncoder(w).Encode(SuggestionsResponse{
			Suggestions: []datatypes.Suggestion{{
				ID:          "sug-1",
				Action:      datatypes.ActionUpdateContributionRate,
				ActionValue: datatypes.Float64Ptr(14.5),
			}},
		})
	}))

	resp, err := client.Suggestions(context.Background(), datatypes.ParameterSnapshot{}, 3)
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, datatypes.ActionUpdateContributionRate, resp.Suggestions[0].Action)
}

func TestClient_ApplySuggestion(t *testing.T) {
	var got ApplySuggestionRequest
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/apply-suggestion", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"status": "recorded"})
	}))

	err := client.ApplySuggestion(context.Background(), ApplySuggestionRequest{
		Action:      datatypes.ActionUpdateContributionRate,
		ActionValue: datatypes.Float64Ptr(14.5),
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.ActionUpdateContributionRate, got.Action)
}
