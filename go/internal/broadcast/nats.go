package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/brightwell/liveroom/go/internal/events"
)

// NATSConfig holds connection and stream settings for the NATS publisher.
type NATSConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string // per-room subjects: <prefix>.<room_id>.events
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration // stream retention
}

// DefaultNATSConfig returns the default broadcast transport settings.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		StreamName:    "ROOM_EVENTS",
		SubjectPrefix: "room",
		MaxReconnects: -1, // infinite
		ReconnectWait: 2 * time.Second,
		MaxAge:        6 * time.Hour,
	}
}

// NATSPublisher publishes room events to a JetStream stream. JetStream
// gives at-least-once delivery; per-room ordering follows from one subject
// per room and a single publishing session per room.
type NATSPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config NATSConfig
}

// NewNATSPublisher connects to NATS and ensures the room events stream
// exists.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{cfg.SubjectPrefix + ".>"},
		MaxAge:   cfg.MaxAge,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.StreamName, err)
	}

	return &NATSPublisher{nc: nc, js: js, config: cfg}, nil
}

// Publish sends one envelope to the room's subject. The envelope ID doubles
// as the JetStream message ID so broker-side retries deduplicate.
func (p *NATSPublisher) Publish(ctx context.Context, env *events.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := fmt.Sprintf("%s.%s.events", p.config.SubjectPrefix, env.RoomID)
	_, err = p.js.Publish(ctx, subject, payload, jetstream.WithMsgID(env.ID.String()))
	if err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		log.Error().Err(err).Msg("NATS drain failed")
	}
}
