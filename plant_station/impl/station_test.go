package impl

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/evkuzin/planthealth/config"
	"github.com/evkuzin/planthealth/plant_station"
	"github.com/evkuzin/planthealth/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProbe struct {
	mu      sync.Mutex
	samples []plant_station.Sample
	err     error
	halted  bool
}

func (p *fakeProbe) Sense() (plant_station.Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return plant_station.Sample{}, p.err
	}
	s := p.samples[0]
	if len(p.samples) > 1 {
		p.samples = p.samples[1:]
	}
	return s, nil
}

func (p *fakeProbe) Halt() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halted = true
	return nil
}

type fakeSink struct {
	mu       sync.Mutex
	name     string
	err      error
	readings []storage.Reading
	closed   bool
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Send(_ context.Context, r *storage.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, *r)
	return s.err
}

func (s *fakeSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readings)
}

func newTestStation(t *testing.T, probe plant_station.Probe, sinks ...plant_station.Sink) *plantStationImpl {
	t.Helper()
	store := storage.NewStorage()
	require.NoError(t, store.Init(&config.Config{Database: &config.Database{
		Driver:   config.DriverSqlite,
		Database: filepath.Join(t.TempDir(), "station.db"),
	}}))
	plant := &storage.Plant{Name: "Basil", Species: "Basil"}
	require.NoError(t, store.CreatePlant(context.Background(), plant))

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &plantStationImpl{
		probe:    probe,
		logger:   logger,
		Storage:  store,
		sinks:    sinks,
		metrics:  newMetrics(prometheus.NewRegistry()),
		plantID:  plant.ID,
		interval: time.Hour,
		now:      time.Now,
	}
}

func TestPollStoresReading(t *testing.T) {
	probe := &fakeProbe{samples: []plant_station.Sample{{Moisture: 42.5, Temperature: 21.5, Raw: 370}}}
	sink := &fakeSink{name: "test"}
	ps := newTestStation(t, probe, sink)
	defer ps.Storage.Close()
	ctx := context.Background()

	ps.poll(ctx)

	got, err := ps.Storage.LatestReading(ctx, ps.plantID)
	require.NoError(t, err)
	assert.Equal(t, 42.5, got.Moisture)
	assert.Equal(t, 21.5, got.Temperature)
	require.Equal(t, 1, sink.count())
	assert.Equal(t, 42.5, sink.readings[0].Moisture)

	assert.Equal(t, 1.0, testutil.ToFloat64(ps.metrics.readings.WithLabelValues("1")))
	assert.Equal(t, 42.5, testutil.ToFloat64(ps.metrics.moisture.WithLabelValues("1")))
	assert.Equal(t, 21.5, testutil.ToFloat64(ps.metrics.temperature.WithLabelValues("1")))
}

func TestPollSensorError(t *testing.T) {
	probe := &fakeProbe{err: errors.New("i2c nack")}
	sink := &fakeSink{name: "test"}
	ps := newTestStation(t, probe, sink)
	defer ps.Storage.Close()

	ps.poll(context.Background())

	_, err := ps.Storage.LatestReading(context.Background(), ps.plantID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Zero(t, sink.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(ps.metrics.errors.WithLabelValues(stageSense)))
}

func TestPollStoreError(t *testing.T) {
	probe := &fakeProbe{samples: []plant_station.Sample{{Moisture: 10}}}
	sink := &fakeSink{name: "test"}
	ps := newTestStation(t, probe, sink)
	defer ps.Storage.Close()
	ps.plantID = 999

	ps.poll(context.Background())

	assert.Zero(t, sink.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(ps.metrics.errors.WithLabelValues(stageStore)))
}

func TestPollSinkErrorDoesNotStop(t *testing.T) {
	probe := &fakeProbe{samples: []plant_station.Sample{{Moisture: 30}}}
	broken := &fakeSink{name: "broken", err: errors.New("broker down")}
	healthy := &fakeSink{name: "healthy"}
	ps := newTestStation(t, probe, broken, healthy)
	defer ps.Storage.Close()

	ps.poll(context.Background())
	ps.poll(context.Background())

	assert.Equal(t, 2, broken.count())
	assert.Equal(t, 2, healthy.count())
	assert.Equal(t, 2.0, testutil.ToFloat64(ps.metrics.errors.WithLabelValues(stageSink)))
}

func TestStartPollsUntilCancelled(t *testing.T) {
	probe := &fakeProbe{samples: []plant_station.Sample{{Moisture: 40}, {Moisture: 41}, {Moisture: 42}}}
	sink := &fakeSink{name: "test"}
	ps := newTestStation(t, probe, sink)
	ps.interval = 10 * time.Millisecond
	ps.retention = 48 * time.Hour

	old := &storage.Reading{PlantID: ps.plantID, Moisture: 1, CreatedAt: time.Now().Add(-72 * time.Hour)}
	require.NoError(t, ps.Storage.Put(context.Background(), old))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ps.Start(ctx) }()

	require.Eventually(t, func() bool { return sink.count() >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("station did not stop")
	}

	sink.mu.Lock()
	assert.Equal(t, 40.0, sink.readings[0].Moisture)
	assert.Equal(t, 41.0, sink.readings[1].Moisture)
	assert.True(t, sink.closed)
	sink.mu.Unlock()
	probe.mu.Lock()
	assert.True(t, probe.halted)
	probe.mu.Unlock()
}

func TestInitClosesStorageOnUnknownPlant(t *testing.T) {
	conf := &config.Config{Database: &config.Database{
		Driver:   config.DriverSqlite,
		Database: filepath.Join(t.TempDir(), "station.db"),
	}}
	conf.Sensor.Driver = config.SensorMock
	conf.Sensor.PlantID = 999
	conf.Sensor.Interval = time.Minute
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ps := &plantStationImpl{}
	err := ps.Init(conf, logger)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	require.NotNil(t, ps.Storage)
	assert.Error(t, ps.Storage.Ping(context.Background()))
	assert.Nil(t, ps.probe)
}

func TestPurgeRemovesOldReadings(t *testing.T) {
	probe := &fakeProbe{samples: []plant_station.Sample{{Moisture: 40}}}
	ps := newTestStation(t, probe)
	defer ps.Storage.Close()
	ps.retention = 24 * time.Hour
	ctx := context.Background()

	require.NoError(t, ps.Storage.Put(ctx, &storage.Reading{PlantID: ps.plantID, Moisture: 1, CreatedAt: time.Now().Add(-72 * time.Hour)}))
	require.NoError(t, ps.Storage.Put(ctx, &storage.Reading{PlantID: ps.plantID, Moisture: 2, CreatedAt: time.Now()}))

	ps.purge(ctx)

	readings, err := ps.Storage.GetReadings(ctx, ps.plantID, time.Time{})
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 2.0, readings[0].Moisture)
}

func TestInfluxSink(t *testing.T) {
	var mu sync.Mutex
	var body, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = string(raw)
		path = r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := newInfluxSink(&config.Influx{URL: srv.URL, Token: "token", Org: "home", Bucket: "plants"})
	defer sink.Close()
	assert.Equal(t, "influx", sink.Name())

	err := sink.Send(context.Background(), &storage.Reading{
		PlantID: 1, Moisture: 42.5, Temperature: 21.5, CreatedAt: time.Unix(1_700_000_000, 0),
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/api/v2/write", path)
	assert.Contains(t, body, "plant_reading,plant_id=1 ")
	assert.Contains(t, body, "moisture=42.5")
	assert.Contains(t, body, "temperature=21.5")
}
