// Package mqttpub publishes each committed measurement to an MQTT topic
// as JSON. The publisher is optional; an empty broker address disables
// it entirely.
package mqttpub

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"codeberg.org/farowl/co2mond/internal/logger"
	"codeberg.org/farowl/co2mond/internal/measure"
	"codeberg.org/farowl/co2mond/internal/notify"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // milliseconds, paho API
	idleWait          = time.Minute
)

type Config struct {
	Broker   string
	Topic    string
	ClientID string
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool {
	return c.Broker != ""
}

// client is the slice of mqtt.Client the publisher uses.
type client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher forwards new measurements from the bus to the broker.
type Publisher struct {
	cfg    Config
	client client
	store  *measure.Store
	bus    *notify.Bus
}

func New(cfg Config, store *measure.Store, bus *notify.Bus) *Publisher {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)

	return &Publisher{
		cfg:    cfg,
		client: mqtt.NewClient(opts),
		store:  store,
		bus:    bus,
	}
}

// Run connects and publishes until ctx is cancelled. A failed connect
// stops the publisher; the daemon keeps running without it.
func (p *Publisher) Run(ctx context.Context) {
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		logger.Error().Err(token.Error()).Str("broker", p.cfg.Broker).
			Msg("MQTT connect failed, publisher disabled")

		return
	}
	defer p.client.Disconnect(disconnectQuiesce)

	logger.Info().Str("broker", p.cfg.Broker).Str("topic", p.cfg.Topic).
		Msg("MQTT publisher connected")

	sub := p.bus.Subscribe()
	defer p.bus.Unsubscribe(sub)

	for {
		events := sub.Wait(ctx, idleWait)
		if ctx.Err() != nil {
			return
		}
		if !events.Has(notify.MeasurementAdded) {
			continue
		}

		latest, ok := p.store.Latest()
		if !ok {
			continue
		}
		p.publish(latest)
	}
}

func (p *Publisher) publish(m measure.Measurement) {
	payload, err := json.Marshal(m)
	if err != nil {
		logger.Warn().Err(err).Msg("Measurement encode failed")

		return
	}

	token := p.client.Publish(p.cfg.Topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		logger.Warn().Err(token.Error()).Msg("MQTT publish failed")
	}
}
