/*
 * Copyright 2025 Fleetmon Systems, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package natsutil publishes reconciliation outcomes to NATS JetStream as
// CloudEvents so downstream consumers (dashboards, audit pipelines) can
// track monitoring-configuration drift without polling the API.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/fleetmon/probeadm/pkg/models"
)

const (
	eventSource = "fleetmon/probeadm"

	// EventTypeApplied marks a reconciliation pass that pushed changes.
	EventTypeApplied = "com.fleetmon.probeadm.reconcile.applied"
	// EventTypeDrift marks a verify pass that found the fleet out of sync.
	EventTypeDrift = "com.fleetmon.probeadm.reconcile.drift"
)

// EventPublisher publishes reconcile CloudEvents to a JetStream stream.
type EventPublisher struct {
	js      jetstream.JetStream
	subject string
}

// NewEventPublisher wraps an existing JetStream context.
func NewEventPublisher(js jetstream.JetStream, subject string) *EventPublisher {
	return &EventPublisher{js: js, subject: subject}
}

// NewReconcileEvent builds the CloudEvent envelope for one reconcile
// outcome. Split out so callers and tests can inspect the envelope without
// a live broker.
func NewReconcileEvent(eventType string, data *models.ReconcileEventData) *models.CloudEvent {
	ts := data.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return &models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          eventSource,
		Type:            eventType,
		DataContentType: "application/json",
		Subject:         data.Account,
		Time:            &ts,
		Data:            data,
	}
}

// PublishReconcile publishes a reconcile outcome event.
func (p *EventPublisher) PublishReconcile(ctx context.Context, eventType string, data *models.ReconcileEventData) error {
	event := NewReconcileEvent(eventType, data)

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal reconcile event: %w", err)
	}

	if _, err := p.js.Publish(ctx, p.subject, eventBytes); err != nil {
		return fmt.Errorf("failed to publish reconcile event: %w", err)
	}

	return nil
}

// Connect dials NATS per the config and returns an EventPublisher plus the
// underlying connection, creating the stream when it does not exist yet.
// The caller owns the connection and must Close it.
func Connect(ctx context.Context, cfg *models.NATSConfig, extraOpts ...nats.Option) (*EventPublisher, *nats.Conn, error) {
	var opts []nats.Option

	if cfg.TLS != nil {
		tlsConf, err := TLSConfig(cfg.TLS)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build NATS TLS config: %w", err)
		}

		opts = append(opts,
			nats.Secure(tlsConf),
			nats.RootCAs(cfg.TLS.CAFile),
			nats.ClientCert(cfg.TLS.CertFile, cfg.TLS.KeyFile),
		)
	}

	opts = append(opts, extraOpts...)

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.Stream(ctx, cfg.Stream); err != nil {
		streamConfig := jetstream.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{cfg.Subject},
		}

		if _, err := js.CreateOrUpdateStream(ctx, streamConfig); err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("failed to create or get stream %s: %w", cfg.Stream, err)
		}
	}

	return NewEventPublisher(js, cfg.Subject), nc, nil
}
