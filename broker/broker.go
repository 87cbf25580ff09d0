package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/evkuzin/planthealth/config"
	"github.com/evkuzin/planthealth/storage"
	"github.com/sirupsen/logrus"
)

const (
	connectAttempts = 5
	publishTimeout  = 5 * time.Second
	disconnectQuiet = 250
)

// Message is the JSON payload of a reading published on the broker.
type Message struct {
	PlantID     uint      `json:"plant_id"`
	Moisture    float64   `json:"moisture"`
	Temperature float64   `json:"temperature"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewMessage(r *storage.Reading) Message {
	return Message{
		PlantID:     r.PlantID,
		Moisture:    r.Moisture,
		Temperature: r.Temperature,
		CreatedAt:   r.CreatedAt,
	}
}

// ReadingTopic is the topic readings of one plant are published on.
func ReadingTopic(prefix string, plantID uint) string {
	return fmt.Sprintf("%s/plants/%d/readings", prefix, plantID)
}

// ReadingsWildcard matches the readings of every plant.
func ReadingsWildcard(prefix string) string {
	return prefix + "/plants/+/readings"
}

// Connect dials the broker, retrying with exponential backoff. The client is
// disconnected when ctx is done.
func Connect(ctx context.Context, conf *config.MQTT, logger *logrus.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(conf.Broker)
	opts.SetClientID(conf.ClientID)
	opts.SetUsername(conf.User)
	opts.SetPassword(conf.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Warnf("cannot connect to MQTT broker %s: %s", conf.Broker, token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, connectAttempts-1), ctx))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to MQTT broker: %w", err)
	}
	logger.Infof("connected to MQTT broker at %s", conf.Broker)

	go func() {
		<-ctx.Done()
		client.Disconnect(disconnectQuiet)
	}()
	return client, nil
}

// Publish sends the reading as JSON and waits for the broker to accept it.
func Publish(ctx context.Context, client mqtt.Client, prefix string, r *storage.Reading) error {
	payload, err := json.Marshal(NewMessage(r))
	if err != nil {
		return err
	}
	token := client.Publish(ReadingTopic(prefix, r.PlantID), 0, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish to %s timed out", ReadingTopic(prefix, r.PlantID))
	}
	return token.Error()
}

// Subscribe decodes every reading published under prefix and hands it to fn.
// Malformed payloads are logged and dropped.
func Subscribe(client mqtt.Client, prefix string, logger *logrus.Logger, fn func(Message)) error {
	topic := ReadingsWildcard(prefix)
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, m mqtt.Message) {
		var msg Message
		if err := json.Unmarshal(m.Payload(), &msg); err != nil {
			logger.Warnf("invalid reading on %s: %s", m.Topic(), err)
			return
		}
		fn(msg)
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("cannot subscribe to %s: %w", topic, token.Error())
	}
	return nil
}
