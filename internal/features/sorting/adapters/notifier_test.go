package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"parcel-sorter/internal/core/broker"
	"parcel-sorter/internal/features/sorting/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var completed = domain.SortingCompletedNotification{
	ParcelID:      42,
	ActualChuteID: 7,
	CompletedAt:   time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	IsSuccess:     true,
	FinalStatus:   domain.FinalSuccess,
}

func TestCloudEventsNotifier_Notify(t *testing.T) {
	var (
		headers http.Header
		body    []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n, err := NewCloudEventsNotifier(server.URL)
	require.NoError(t, err)

	require.NoError(t, n.Notify(context.Background(), completed))

	assert.Equal(t, EventTypeSortingCompleted, headers.Get("Ce-Type"))
	assert.Equal(t, "parcel-sorter", headers.Get("Ce-Source"))
	assert.Equal(t, "42", headers.Get("Ce-Subject"))
	_, err = uuid.Parse(headers.Get("Ce-Id"))
	assert.NoError(t, err)

	var got domain.SortingCompletedNotification
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, completed.FinalStatus, got.FinalStatus)
	assert.Equal(t, completed.ActualChuteID, got.ActualChuteID)
}

func TestCloudEventsNotifier_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	n, err := NewCloudEventsNotifier(server.URL)
	require.NoError(t, err)
	n.backoff = time.Millisecond
	n.retries = 2

	err = n.Notify(context.Background(), completed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not acknowledged")
	assert.Greater(t, calls.Load(), int32(1))
}

func TestMQTTNotifier_Notify(t *testing.T) {
	b := broker.NewMemory()
	n := NewMQTTNotifier(b, "sorter/upstream/sorting-completed")

	require.NoError(t, n.Notify(context.Background(), completed))

	published := b.Published("sorter/upstream/sorting-completed")
	require.Len(t, published, 1)

	var got domain.SortingCompletedNotification
	require.NoError(t, json.Unmarshal(published[0], &got))
	assert.Equal(t, uint64(42), got.ParcelID)
	assert.True(t, got.IsSuccess)
}

func TestMQTTNotifier_BrokerDown(t *testing.T) {
	b := broker.NewMemory()
	b.FailWith(errors.New("connection lost"))

	err := NewMQTTNotifier(b, "t").Notify(context.Background(), completed)
	assert.ErrorContains(t, err, "connection lost")
}
