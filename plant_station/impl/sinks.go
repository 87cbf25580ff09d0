package impl

import (
	"context"
	"strconv"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/evkuzin/planthealth/broker"
	"github.com/evkuzin/planthealth/config"
	"github.com/evkuzin/planthealth/storage"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

const influxMeasurement = "plant_reading"

// mqttSink mirrors readings to the broker for live dashboards.
type mqttSink struct {
	client mqtt.Client
	prefix string
}

func newMQTTSink(client mqtt.Client, conf *config.MQTT) *mqttSink {
	return &mqttSink{client: client, prefix: conf.TopicPrefix}
}

func (s *mqttSink) Name() string {
	return "mqtt"
}

func (s *mqttSink) Send(ctx context.Context, reading *storage.Reading) error {
	return broker.Publish(ctx, s.client, s.prefix, reading)
}

func (s *mqttSink) Close() {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

// influxSink writes every reading as a point of the plant_reading measurement.
type influxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

func newInfluxSink(conf *config.Influx) *influxSink {
	client := influxdb2.NewClient(conf.URL, conf.Token)
	return &influxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(conf.Org, conf.Bucket),
	}
}

func (s *influxSink) Name() string {
	return "influx"
}

func (s *influxSink) Send(ctx context.Context, reading *storage.Reading) error {
	point := influxdb2.NewPoint(
		influxMeasurement,
		map[string]string{"plant_id": strconv.FormatUint(uint64(reading.PlantID), 10)},
		map[string]interface{}{
			"moisture":    reading.Moisture,
			"temperature": reading.Temperature,
		},
		reading.CreatedAt,
	)
	return s.writeAPI.WritePoint(ctx, point)
}

func (s *influxSink) Close() {
	s.client.Close()
}
