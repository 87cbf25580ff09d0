package impl

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	stageSense = "sense"
	stageStore = "store"
	stageSink  = "sink"
	stagePurge = "purge"
)

type metrics struct {
	readings    *prometheus.CounterVec
	errors      *prometheus.CounterVec
	moisture    *prometheus.GaugeVec
	temperature *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planthealth_readings_total",
			Help: "Readings stored per plant.",
		}, []string{"plant"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planthealth_read_errors_total",
			Help: "Failures of the polling loop by stage.",
		}, []string{"stage"}),
		moisture: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "planthealth_moisture_percent",
			Help: "Last soil moisture reading.",
		}, []string{"plant"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "planthealth_temperature_celsius",
			Help: "Last temperature reading.",
		}, []string{"plant"}),
	}
	reg.MustRegister(m.readings, m.errors, m.moisture, m.temperature)
	return m
}

func (m *metrics) observe(plantID uint, moisture, temperature float64) {
	plant := strconv.FormatUint(uint64(plantID), 10)
	m.readings.WithLabelValues(plant).Inc()
	m.moisture.WithLabelValues(plant).Set(moisture)
	m.temperature.WithLabelValues(plant).Set(temperature)
}

func (m *metrics) fail(stage string) {
	m.errors.WithLabelValues(stage).Inc()
}
