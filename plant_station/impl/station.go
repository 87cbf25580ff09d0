package impl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/evkuzin/planthealth/broker"
	"github.com/evkuzin/planthealth/config"
	"github.com/evkuzin/planthealth/plant_station"
	"github.com/evkuzin/planthealth/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
)

const (
	purgeEvery  = 24 * time.Hour
	sinkTimeout = 10 * time.Second
)

// plantStationImpl polls one probe and stores a reading per interval for the
// configured plant.
type plantStationImpl struct {
	probe     plant_station.Probe
	bus       i2c.BusCloser
	logger    *logrus.Logger
	Storage   storage.Adapter
	sinks     []plant_station.Sink
	metrics   *metrics
	registry  *prometheus.Registry
	plantID   uint
	interval  time.Duration
	retention time.Duration
	listen    string
	now       func() time.Time
	cancel    context.CancelFunc
}

func (ps *plantStationImpl) Init(config *config.Config, logger *logrus.Logger) error {
	ps.logger = logger
	ps.plantID = config.Sensor.PlantID
	ps.interval = config.Sensor.Interval
	ps.retention = config.Database.Retention
	ps.listen = config.Sensor.MetricsListen
	ps.now = time.Now

	ps.registry = prometheus.NewRegistry()
	ps.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ps.metrics = newMetrics(ps.registry)

	ps.Storage = storage.NewStorage()
	err := ps.Storage.Init(config)
	if err != nil {
		return err
	}
	plant, err := ps.Storage.GetPlant(context.Background(), ps.plantID)
	if err != nil {
		ps.closeStorage()
		return fmt.Errorf("cannot find plant %d: %w", ps.plantID, err)
	}
	ps.logger.Infof("collecting readings for %s (%s)", plant.Name, plant.Species)

	probe, bus, err := plant_station.PeripheralInitialisation(&config.Sensor, logger)
	if err != nil {
		ps.closeStorage()
		return err
	}
	ps.probe = probe
	ps.bus = bus

	// sinks live as long as the station, Start cancels them on exit
	ctx, cancel := context.WithCancel(context.Background())
	ps.cancel = cancel
	if config.MQTT.Broker != "" {
		client, err := broker.Connect(ctx, &config.MQTT, logger)
		if err != nil {
			ps.logger.Warnf("mqtt sink disabled: %s", err)
		} else {
			ps.sinks = append(ps.sinks, newMQTTSink(client, &config.MQTT))
		}
	}
	if config.Influx.URL != "" {
		ps.sinks = append(ps.sinks, newInfluxSink(&config.Influx))
	}
	return nil
}

// Start is the main daemon loop. It polls right away, then once per interval
// until ctx is done.
func (ps *plantStationImpl) Start(ctx context.Context) error {
	defer ps.shutdown()
	ps.logger.Info("Plant station starting...")

	if ps.listen != "" {
		srv := ps.serveMetrics()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ticker := time.NewTicker(ps.interval)
	defer ticker.Stop()
	var purge <-chan time.Time
	if ps.retention > 0 {
		purgeTicker := time.NewTicker(purgeEvery)
		defer purgeTicker.Stop()
		purge = purgeTicker.C
		ps.purge(ctx)
	}

	ps.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			ps.logger.Info("Stopping plant station")
			return nil
		case <-ticker.C:
			ps.poll(ctx)
		case <-purge:
			ps.purge(ctx)
		}
	}
}

func (ps *plantStationImpl) poll(ctx context.Context) {
	sample, err := ps.probe.Sense()
	if err != nil {
		ps.metrics.fail(stageSense)
		ps.logger.Warnf("cannot read from probe: %s", err)
		return
	}
	ps.logger.Debugf("Moisture: %.1f%% (raw %.0f) Temperature: %.1f°C", sample.Moisture, sample.Raw, sample.Temperature)

	reading := &storage.Reading{
		PlantID:     ps.plantID,
		Moisture:    sample.Moisture,
		Temperature: sample.Temperature,
		CreatedAt:   ps.now(),
	}
	err = ps.Storage.Put(ctx, reading)
	if err != nil {
		ps.metrics.fail(stageStore)
		ps.logger.Warnf("cannot write to storage: %s", err)
		return
	}
	ps.metrics.observe(ps.plantID, reading.Moisture, reading.Temperature)

	for _, sink := range ps.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := sink.Send(sinkCtx, reading)
		cancel()
		if err != nil {
			ps.metrics.fail(stageSink)
			ps.logger.Warnf("cannot forward reading to %s: %s", sink.Name(), err)
		}
	}
}

func (ps *plantStationImpl) purge(ctx context.Context) {
	n, err := ps.Storage.Purge(ctx, ps.retention)
	if err != nil {
		ps.metrics.fail(stagePurge)
		ps.logger.Warnf("cannot purge old readings: %s", err)
		return
	}
	if n > 0 {
		ps.logger.Infof("purged %d readings older than %s", n, ps.retention)
	}
}

func (ps *plantStationImpl) serveMetrics() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(ps.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              ps.listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		ps.logger.Infof("metrics listening on %s", ps.listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ps.logger.Errorf("metrics server: %s", err)
		}
	}()
	return srv
}

func (ps *plantStationImpl) shutdown() {
	for _, sink := range ps.sinks {
		sink.Close()
	}
	if ps.cancel != nil {
		ps.cancel()
	}
	if ps.probe != nil {
		if err := ps.probe.Halt(); err != nil {
			ps.logger.Errorf("error: %s", err.Error())
		}
	}
	if ps.bus != nil {
		if err := ps.bus.Close(); err != nil {
			ps.logger.Errorf("error: %s", err.Error())
		}
	}
	ps.closeStorage()
}

func (ps *plantStationImpl) closeStorage() {
	if ps.Storage != nil {
		if err := ps.Storage.Close(); err != nil {
			ps.logger.Errorf("error: %s", err.Error())
		}
	}
}

// NewPlantStation return a new instance of a PlantStation daemon
func NewPlantStation() plant_station.PlantStation {
	return &plantStationImpl{}
}
