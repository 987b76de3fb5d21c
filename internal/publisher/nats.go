package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/tcg-pricing/pkg/logger"
)

// jetStream is the part of nats.JetStreamContext the publisher uses.
type jetStream interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSPublisher publishes price events to JetStream.
type NATSPublisher struct {
	nc      *nats.Conn
	js      jetStream
	subject string
	service string
	timeout time.Duration
}

// ConnectNATS dials url and returns a JetStream publisher.
func ConnectNATS(url, service string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name(service))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats jetstream: %w", err)
	}
	return &NATSPublisher{nc: nc, js: js, subject: SubjectPriceUpdated, service: service, timeout: 5 * time.Second}, nil
}

func (p *NATSPublisher) Name() string { return "nats" }

// PublishPriceUpdated serializes ev into an envelope and publishes it.
func (p *NATSPublisher) PublishPriceUpdated(ctx context.Context, ev PriceUpdated) error {
	env, err := NewEnvelope(p.service, ev)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", p.subject,
			"event_type", env.EventType,
			"error", err,
		)
		return err
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
			"game":           []string{string(ev.Game)},
			// Dedupe key for JetStream so a retried publish is stored once.
			nats.MsgIdHdr: []string{env.CorrelationID.String() + ":" + string(ev.Game) + ":" + ev.ItemKey},
		},
	}

	timeout := p.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pubCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := p.js.PublishMsg(msg, nats.Context(pubCtx)); err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", p.subject,
			"game", ev.Game,
			"item_key", ev.ItemKey,
			"error", err,
		)
		return err
	}

	logger.S().Debugw("publisher.publish_success",
		"subject", p.subject,
		"game", ev.Game,
		"item_key", ev.ItemKey,
	)
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.nc != nil && !p.nc.IsClosed() {
		return p.nc.Drain()
	}
	return nil
}
