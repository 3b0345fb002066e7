package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcel-sorter/internal/core/broker"
	"parcel-sorter/internal/core/config"
	sortingdomain "parcel-sorter/internal/features/sorting/domain"
	sortinghandler "parcel-sorter/internal/features/sorting/handler"
	trackingdomain "parcel-sorter/internal/features/tracking/domain"
)

const lineTopology = `
entry: D1
default_segment_ttl_ms: 2000
chutes:
  - id: 1
  - id: 2
  - id: 999
    name: exception
diverters:
  - id: D1
    io_point: Q0.1
    exits:
      right: {chute: 1}
      straight: {diverter: D2}
  - id: D2
    io_point: Q0.2
    exits:
      left: {chute: 2}
      straight: {chute: 999}
`

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	file := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(file, []byte(lineTopology), 0644))

	return &config.AppConfig{
		Environment:  "test",
		LogLevel:     "info",
		TopologyFile: file,
		Sorter: config.SorterConfig{
			ExceptionChuteID:         999,
			SortingMode:              config.SortingModeFixedChute,
			FixedChuteID:             2,
			ChuteAssignmentTimeoutMs: 1000,
			ParcelTTLMs:              30000,
			ArrivalWindowMs:          5000,
			ReplanCutoffMs:           3000,
			PathCacheSize:            16,
			EventBufferSize:          16,
		},
		Congestion: config.CongestionConfig{
			WindowSeconds:   60,
			InFlightWarning: 50, InFlightSevere: 100,
			LatencyWarningMs: 3000, LatencySevereMs: 6000,
			SuccessRateWarning: 0.9, SuccessRateSevere: 0.7,
			MinSamplesSuccessRate: 10,
		},
		Overload: config.OverloadConfig{Enabled: true, ForceExceptionOnSevere: true, MaxInFlightParcels: 120},
		Health:   config.HealthConfig{LineDegradedRatio: 0.5},
		Upstream: config.UpstreamConfig{Mode: config.UpstreamModeNone},
		MQTT: config.MQTTConfig{
			SensorTopic:     "sensors",
			DetectedTopic:   "detected",
			AssignmentTopic: "assigned",
			CompletedTopic:  "completed",
		},
		Redis: config.RedisConfig{RoutePlanStore: config.RoutePlanStoreMemory, TrackingArchiveTTLHours: 1},
		Monitor: config.MonitorConfig{
			ParcelTimeoutMs:   60000,
			ParcelLostAfterMs: 120000,
			RetentionMinutes:  30,
			MonitorSchedule:   "@every 5s",
			CleanupSchedule:   "@every 1m",
			SensorDebounceMs:  1000,
		},
	}
}

func newApp(t *testing.T, cfg *config.AppConfig, opts Options) *Application {
	t.Helper()
	a, err := New(context.Background(), cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNew_ServesAdminRoutes(t *testing.T) {
	a := newApp(t, testConfig(t), Options{})

	body, _ := json.Marshal(sortinghandler.DebugSortRequest{ParcelID: 7, TargetChuteID: 2})
	req := httptest.NewRequest(http.MethodPost, "/api/debug/sort", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.Server.App.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sorted sortinghandler.DebugSortResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sorted))
	assert.True(t, sorted.IsSuccess)
	assert.Equal(t, int64(2), sorted.ActualChuteID)
	assert.Equal(t, 2, sorted.PathSegmentCount)

	for _, path := range []string{"/api/health/nodes", "/api/health/degradation", "/api/parcels/active", "/api/topology/paths/999"} {
		resp, err := a.Server.App.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err, path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err = a.Server.App.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "sorter_parcels_in_flight")
}

func TestNew_IngressToNotification(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Upstream.Mode = config.UpstreamModeMQTT
	cfg.MQTT.IngressEnabled = true
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Redis.RoutePlanStore = config.RoutePlanStoreRedis

	mem := broker.NewMemory()
	a := newApp(t, cfg, Options{Broker: mem})
	require.NotNil(t, a.Ingress)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Ingress.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	payload, _ := json.Marshal(sortingdomain.SensorReading{ParcelID: 42, SensorID: "PE-1", DetectedAt: time.Now()})
	require.Eventually(t, func() bool {
		_ = mem.Publish(context.Background(), cfg.MQTT.SensorTopic, payload)
		return len(mem.Published(cfg.MQTT.CompletedTopic)) == 1
	}, 2*time.Second, 20*time.Millisecond)

	var n sortingdomain.SortingCompletedNotification
	require.NoError(t, json.Unmarshal(mem.Published(cfg.MQTT.CompletedTopic)[0], &n))
	assert.Equal(t, uint64(42), n.ParcelID)
	assert.Equal(t, sortingdomain.FinalSuccess, n.FinalStatus)

	rec, err := a.Tracking.GetByID(42)
	require.NoError(t, err)
	assert.Equal(t, trackingdomain.StatusSorted, rec.Status)
	assert.True(t, mr.Exists("sorter:routeplan:42"))
}

func TestNew_Errors(t *testing.T) {
	t.Run("missing topology", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.TopologyFile = filepath.Join(t.TempDir(), "nope.yaml")

		_, err := New(context.Background(), cfg, Options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load topology")
	})

	t.Run("bad schedule", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Monitor.CleanupSchedule = "whenever"

		_, err := New(context.Background(), cfg, Options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cleanup schedule")
	})

	t.Run("redis unreachable", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Redis.URL = "redis://127.0.0.1:1"

		_, err := New(context.Background(), cfg, Options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connect redis")
	})
}

func TestApplication_ResetsDiverters(t *testing.T) {
	a := newApp(t, testConfig(t), Options{})

	assert.Equal(t, 2, a.Driver.Commands())
	_, ok := a.Driver.Position("D2")
	assert.True(t, ok)
}
