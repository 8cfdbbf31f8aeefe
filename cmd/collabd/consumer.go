package main

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jorilallo/outline/collab"
	"github.com/jorilallo/outline/core"
	"github.com/jorilallo/outline/crdt"
	"github.com/jorilallo/outline/richtext"
	"github.com/jorilallo/outline/store"
)

// ConsumerConfig identifies the delta stream and this consumer's place in
// its group.
type ConsumerConfig struct {
	Stream string
	Group  string
	Name   string
}

// Consumer reads document deltas from a Redis stream and feeds them through
// the updater. Messages carry three fields: documentId, delta (base64) and
// userId.
type Consumer struct {
	client  *redis.Client
	updater *collab.Updater
	config  ConsumerConfig
	log     *zap.Logger
}

func NewConsumer(client *redis.Client, updater *collab.Updater, config ConsumerConfig) *Consumer {
	return &Consumer{
		client:  client,
		updater: updater,
		config:  config,
		log: core.Named("consumer",
			zap.String("stream", config.Stream),
			zap.String("group", config.Group)),
	}
}

// Run consumes until the context is cancelled. Pending messages left over
// from a previous run of this consumer are replayed first; re-merging an
// already-applied delta is idempotent, so replay cannot double-apply.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	cursor := "0"
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.config.Group,
			Consumer: c.config.Name,
			Streams:  []string{c.config.Stream, cursor},
			Count:    16,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				cursor = ">"
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("failed to read delta stream", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		delivered := 0
		for _, stream := range streams {
			for _, message := range stream.Messages {
				delivered++
				c.handle(ctx, message)
			}
		}
		if cursor != ">" && delivered == 0 {
			// Pending backlog drained; switch to new messages.
			cursor = ">"
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.config.Stream, c.config.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// handle runs one convergence cycle for a stream message. Terminal outcomes
// are acknowledged, including poison messages that can never succeed;
// transient storage failures leave the message pending for redelivery.
func (c *Consumer) handle(ctx context.Context, message redis.XMessage) {
	req, err := decodeMessage(message)
	if err != nil {
		c.log.Error("dropping malformed delta message",
			zap.Error(err),
			zap.String("messageId", message.ID))
		c.ack(ctx, message.ID)
		return
	}

	result, err := c.updater.Converge(ctx, req)
	if err == nil {
		if result.Persisted {
			c.log.Info("persisted document update",
				zap.String("documentId", req.DocumentID),
				zap.Int64("revision", result.Revision))
		} else {
			c.log.Debug("suppressed no-op update",
				zap.String("documentId", req.DocumentID))
		}
		c.ack(ctx, message.ID)
		return
	}

	switch {
	case crdt.IsDecodeError(err), richtext.IsProjectionError(err):
		// Poison payload; redelivery can never succeed.
		c.ack(ctx, message.ID)
	case errors.Is(err, store.ErrNotFound):
		c.log.Warn("dropping delta for unknown document",
			zap.String("documentId", req.DocumentID))
		c.ack(ctx, message.ID)
	default:
		c.log.Error("convergence failed, leaving message pending",
			zap.Error(err),
			zap.String("documentId", req.DocumentID),
			zap.String("messageId", message.ID))
	}
}

func (c *Consumer) ack(ctx context.Context, messageID string) {
	if err := c.client.XAck(ctx, c.config.Stream, c.config.Group, messageID).Err(); err != nil {
		c.log.Warn("failed to ack delta message",
			zap.Error(err),
			zap.String("messageId", messageID))
	}
}

func decodeMessage(message redis.XMessage) (collab.UpdateRequest, error) {
	var req collab.UpdateRequest

	documentID, ok := message.Values["documentId"].(string)
	if !ok || documentID == "" {
		return req, errors.New("missing documentId field")
	}
	encoded, ok := message.Values["delta"].(string)
	if !ok || encoded == "" {
		return req, errors.New("missing delta field")
	}
	delta, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return req, errors.Wrap(err, "delta field is not valid base64")
	}
	userID, _ := message.Values["userId"].(string)

	req.DocumentID = documentID
	req.Delta = delta
	req.UserID = userID
	return req, nil
}
