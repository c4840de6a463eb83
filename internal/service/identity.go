package service

import (
	"context"
	"strconv"
	"sync"

	"leadrelay/internal/constants"
	"leadrelay/internal/errors"
	"leadrelay/internal/tracing"
	"leadrelay/pkg/telegram"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// IdentityResolver finds the chat the secondary channel delivers to.
// Lookup order: configured chat id, durable cache, one getUpdates poll.
// A cached identity is never invalidated.
type IdentityResolver struct {
	static string
	store  KeyValueStore
	client telegram.Client
	logger *logrus.Logger
	mu     sync.Mutex
}

func NewIdentityResolver(static string, store KeyValueStore, client telegram.Client, logger *logrus.Logger) *IdentityResolver {
	return &IdentityResolver{
		static: static,
		store:  store,
		client: client,
		logger: logger,
	}
}

// Resolve returns the chat identity or an IDENTITY_UNRESOLVABLE error.
// Concurrent callers are serialized so a cold cache costs one poll.
func (r *IdentityResolver) Resolve(ctx context.Context) (id string, err error) {
	if r.static != "" {
		return r.static, nil
	}

	ctx, span := tracing.StartSpan(ctx, tracing.SpanIdentityResolve)
	defer func() { tracing.EndSpan(span, err) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	cached, ok, err := r.store.Get(ctx, constants.ChatIdentityKey)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to read cached chat identity, polling instead")
	} else if ok && cached != "" {
		span.SetAttributes(attribute.String("identity.source", "cache"))
		return cached, nil
	}

	span.SetAttributes(attribute.String("identity.source", "poll"))
	if r.client == nil {
		return "", errors.NewIdentityUnresolvableError(nil)
	}

	updates, err := r.client.GetUpdates(ctx)
	if err != nil {
		return "", errors.NewIdentityUnresolvableError(err)
	}

	for i := len(updates) - 1; i >= 0; i-- {
		msg := updates[i].Message
		if msg == nil {
			continue
		}
		id = strconv.FormatInt(msg.Chat.ID, 10)
		if setErr := r.store.Set(ctx, constants.ChatIdentityKey, id); setErr != nil {
			r.logger.WithError(setErr).Warn("Failed to persist chat identity")
		}
		r.logger.WithField(LogFieldChatID, LogChatID(ctx, id)).Info("Resolved chat identity from recent bot interactions")
		return id, nil
	}

	return "", errors.NewIdentityUnresolvableError(nil)
}
