package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"parcel-sorter/internal/core/httpclient"
	"parcel-sorter/internal/features/chute/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRouter_AssignChute(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chutes/assign", r.URL.Path)

		var req AssignRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, uint64(3), req.ParcelID)

		_ = json.NewEncoder(w).Encode(AssignResponse{ChuteID: 21, IsSuccess: true, Source: "rules"})
	}))
	defer ts.Close()

	r := NewHTTPRouter(ts.URL, httpclient.NewRetryableClient(time.Second, 1))

	a, err := r.AssignChute(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(21), a.ChuteID)
	assert.Equal(t, "rules", a.Source)
}

func TestHTTPRouter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    domain.RoutingErrorKind
	}{
		{
			name: "BadRequest",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			},
			kind: domain.RoutingInvalidResponse,
		},
		{
			name: "Garbage",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>"))
			},
			kind: domain.RoutingInvalidResponse,
		},
		{
			name: "NotAssigned",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(AssignResponse{IsSuccess: false})
			},
			kind: domain.RoutingInvalidResponse,
		},
		{
			name: "ServerError",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			kind: domain.RoutingUnavailable,
		},
		{
			name: "StillUnavailableAfterRetries",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			kind: domain.RoutingUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			r := NewHTTPRouter(ts.URL, httpclient.NewRetryableClient(time.Second, 1))
			_, err := r.AssignChute(context.Background(), 1)

			var re *domain.RoutingError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.kind, re.Kind)
		})
	}
}

func TestHTTPRouter_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	r := NewHTTPRouter(ts.URL, httpclient.NewRetryableClient(5*time.Second, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := r.AssignChute(ctx, 1)
	var re *domain.RoutingError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, domain.RoutingTimeout, re.Kind)
}

func TestHTTPRouter_NotifyParcelDetected(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/api/parcels/detected", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	r := NewHTTPRouter(ts.URL, httpclient.NewRetryableClient(time.Second, 0))
	assert.True(t, r.NotifyParcelDetected(context.Background(), 9))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	down := NewHTTPRouter("http://127.0.0.1:1", httpclient.NewRetryableClient(100*time.Millisecond, 0))
	assert.False(t, down.NotifyParcelDetected(context.Background(), 9))
}
