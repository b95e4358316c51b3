// Copyright 2026 The QADeck Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package redis fans cache invalidations out to every replica over Redis pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/qadeck/qadeck/internal/authz"
	"github.com/qadeck/qadeck/internal/observability/logger"
	"github.com/qadeck/qadeck/internal/rbac"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "qadeck:authz:invalidate"

// Message kinds
const (
	KindCatalog    = "catalog"
	KindAssignment = "assignment"
)

// Message is the wire form of one invalidation.
type Message struct {
	Origin    string     `json:"origin"`
	Kind      string     `json:"kind"`
	Principal string     `json:"principal,omitempty"`
	Layer     rbac.Layer `json:"layer,omitempty"`
	TenantID  string     `json:"tenant_id,omitempty"`
	ProjectID string     `json:"project_id,omitempty"`
}

// InvalidationBus implements authz.Invalidator. It applies every change to
// the local invalidator first and then publishes it; messages from other
// replicas are applied locally as they arrive.
type InvalidationBus struct {
	client  goredis.UniversalClient
	channel string
	local   authz.Invalidator
	origin  string
	logger  *slog.Logger

	mu     sync.Mutex
	pubsub *goredis.PubSub
	done   chan struct{}
}

var _ authz.Invalidator = (*InvalidationBus)(nil)

// NewInvalidationBus creates a bus that forwards to local.
func NewInvalidationBus(client goredis.UniversalClient, channel string, local authz.Invalidator, l *slog.Logger) *InvalidationBus {
	if channel == "" {
		channel = DefaultChannel
	}
	if l == nil {
		l = slog.Default()
	}
	return &InvalidationBus{
		client:  client,
		channel: channel,
		local:   local,
		origin:  uuid.NewString(),
		logger:  l.With(logger.Component("authz.invalidation")),
	}
}

// CatalogChanged implements authz.Invalidator
func (b *InvalidationBus) CatalogChanged(ctx context.Context) {
	b.local.CatalogChanged(ctx)
	b.publish(ctx, Message{Kind: KindCatalog})
}

// AssignmentChanged implements authz.Invalidator
func (b *InvalidationBus) AssignmentChanged(ctx context.Context, principal string, scope authz.AssignmentScope) {
	b.local.AssignmentChanged(ctx, principal, scope)
	b.publish(ctx, Message{
		Kind:      KindAssignment,
		Principal: principal,
		Layer:     scope.Layer,
		TenantID:  scope.TenantID,
		ProjectID: scope.ProjectID,
	})
}

// Start subscribes to the channel and applies remote messages until Close
// or ctx is done. It returns once the subscription is confirmed.
func (b *InvalidationBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return errors.New("invalidation bus already started")
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	b.pubsub = pubsub
	b.done = make(chan struct{})
	go b.listen(ctx, pubsub.Channel(), b.done)

	b.logger.InfoContext(ctx, "invalidation bus subscribed", slog.String("channel", b.channel))
	return nil
}

// Close stops the subscription.
func (b *InvalidationBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub == nil {
		return nil
	}
	err := b.pubsub.Close()
	<-b.done
	b.pubsub = nil
	return err
}

func (b *InvalidationBus) listen(ctx context.Context, ch <-chan *goredis.Message, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.apply(ctx, msg.Payload)
		}
	}
}

func (b *InvalidationBus) apply(ctx context.Context, payload string) {
	var m Message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		b.logger.WarnContext(ctx, "dropping malformed invalidation", logger.Error(err))
		return
	}
	if m.Origin == b.origin {
		return
	}

	switch m.Kind {
	case KindCatalog:
		b.local.CatalogChanged(ctx)
	case KindAssignment:
		if m.Principal == "" {
			b.logger.WarnContext(ctx, "dropping invalidation without principal")
			return
		}
		b.local.AssignmentChanged(ctx, m.Principal, authz.AssignmentScope{
			Layer:     m.Layer,
			TenantID:  m.TenantID,
			ProjectID: m.ProjectID,
		})
	default:
		b.logger.WarnContext(ctx, "dropping invalidation of unknown kind", slog.String("kind", m.Kind))
	}
}

// publish never fails the caller: the local cache is already invalidated,
// and remote entries are still checked against fresh role snapshots.
func (b *InvalidationBus) publish(ctx context.Context, m Message) {
	m.Origin = b.origin
	payload, err := json.Marshal(m)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to encode invalidation", logger.Error(err))
		return
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.WarnContext(ctx, "failed to publish invalidation",
			slog.String("kind", m.Kind),
			logger.Principal(m.Principal),
			logger.Error(err),
		)
	}
}
