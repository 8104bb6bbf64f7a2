// Package events implements the event consumer (C6): a Redis Streams
// consumer-group worker that translates reward-bearing events into calls
// against the learning service. Grounded on the go-redis client idiom used
// by the pack's zerostate RedisTaskQueue (context-scoped client, Ping at
// startup, graceful Close), adapted from a sorted-set work queue to
// Streams consumer groups for at-least-once delivery.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apex-system/rl-engine/pkg/engine"
	"github.com/apex-system/rl-engine/pkg/models"
	"github.com/apex-system/rl-engine/pkg/rlservice"
)

const (
	streamTrafficCompleted   = "traffic.request_completed"
	streamPerformanceUpdated = "campaign.performance_updated"
	streamStrategyFeedback   = "rl.strategy_feedback"

	dedupCacheSize = 4096
)

// Publisher implements rlservice.EventPublisher over a Redis stream per
// event type (XADD).
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, eventType string, payload map[string]interface{}) error {
	fields := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		fields[k] = v
	}
	fields["event_type"] = eventType
	fields["emitted_at"] = time.Now().UTC().Format(time.RFC3339)

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: eventType,
		Values: fields,
	}).Err()
}

// Consumer subscribes to the three reward-bearing streams listed in §4.5
// under one consumer group, computing rewards and invoking the learning
// service.
type Consumer struct {
	client       *redis.Client
	service      *rlservice.Service
	group        string
	consumerName string
	streams      []string
	blockTimeout time.Duration

	dedupMu sync.Mutex
	dedup   map[string]struct{}
	dedupQ  []string
}

// NewConsumer builds a Consumer bound to the three subscribed stream
// names under the given consumer group.
func NewConsumer(client *redis.Client, service *rlservice.Service, group, consumerName string) *Consumer {
	return &Consumer{
		client:       client,
		service:      service,
		group:        group,
		consumerName: consumerName,
		streams:      []string{streamTrafficCompleted, streamPerformanceUpdated, streamStrategyFeedback},
		blockTimeout: 5 * time.Second,
		dedup:        make(map[string]struct{}, dedupCacheSize),
	}
}

// EnsureGroups creates the consumer group on each subscribed stream if it
// does not already exist (XGROUP CREATE ... MKSTREAM).
func (c *Consumer) EnsureGroups(ctx context.Context) error {
	for _, stream := range c.streams {
		err := c.client.XGroupCreateMkStream(ctx, stream, c.group, "0").Err()
		if err != nil && !isBusyGroupErr(err) {
			return fmt.Errorf("failed to create consumer group on %s: %w", stream, err)
		}
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && err.Error() != "" && containsBusyGroup(err.Error())
}

func containsBusyGroup(s string) bool {
	const marker = "BUSYGROUP"
	for i := 0; i+len(marker) <= len(s); i++ {
		if s[i:i+len(marker)] == marker {
			return true
		}
	}
	return false
}

// Run blocks, reading from all subscribed streams under the consumer
// group, until ctx is cancelled. Per §5, shutdown stops after at most one
// in-flight message completes; unacknowledged messages remain pending for
// redelivery under the group.
func (c *Consumer) Run(ctx context.Context) error {
	streamArgs := make([]string, 0, len(c.streams)*2)
	for _, s := range c.streams {
		streamArgs = append(streamArgs, s)
	}
	for range c.streams {
		streamArgs = append(streamArgs, ">")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		result, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumerName,
			Streams:  streamArgs,
			Count:    10,
			Block:    c.blockTimeout,
		}).Result()

		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			log.Printf("[events] XReadGroup error: %v", err)
			continue
		}

		for _, stream := range result {
			for _, msg := range stream.Messages {
				if ctx.Err() != nil {
					return nil
				}
				c.handle(ctx, stream.Stream, msg)
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, stream string, msg redis.XMessage) {
	if c.alreadySeen(msg.ID) {
		c.ack(ctx, stream, msg.ID)
		return
	}

	var err error
	switch stream {
	case streamTrafficCompleted:
		err = c.handleTrafficCompleted(msg)
	case streamPerformanceUpdated:
		err = c.handlePerformanceUpdated(msg)
	case streamStrategyFeedback:
		err = c.handleStrategyFeedback(msg)
	default:
		log.Printf("[events] unknown stream %s, acking without processing", stream)
		c.ack(ctx, stream, msg.ID)
		return
	}

	if err != nil {
		log.Printf("[events] handler for %s failed, leaving unacked for redelivery: %v", stream, err)
		return
	}

	c.markSeen(msg.ID)
	c.ack(ctx, stream, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, stream, id string) {
	if err := c.client.XAck(ctx, stream, c.group, id).Err(); err != nil {
		log.Printf("[events] XAck(%s, %s) failed: %v", stream, id, err)
	}
}

func (c *Consumer) alreadySeen(id string) bool {
	c.dedupMu.Lock()
	defer c.dedupMu.Unlock()
	_, ok := c.dedup[id]
	return ok
}

func (c *Consumer) markSeen(id string) {
	c.dedupMu.Lock()
	defer c.dedupMu.Unlock()
	c.dedup[id] = struct{}{}
	c.dedupQ = append(c.dedupQ, id)
	if len(c.dedupQ) > dedupCacheSize {
		oldest := c.dedupQ[0]
		c.dedupQ = c.dedupQ[1:]
		delete(c.dedup, oldest)
	}
}

func field(values map[string]interface{}, key string) string {
	v, ok := values[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func decodeMetrics(values map[string]interface{}) models.CampaignMetrics {
	metrics := models.DefaultCampaignMetrics()
	raw := field(values, "metrics")
	if raw == "" {
		return metrics
	}
	var parsed models.CampaignMetrics
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		metrics = parsed
	}
	return metrics
}

// handleTrafficCompleted implements the traffic.request_completed row of
// §4.5: reward is computed via the §4.3 reward-calculation contract.
func (c *Consumer) handleTrafficCompleted(msg redis.XMessage) error {
	ctxKey := field(msg.Values, "context")
	action := models.Action(field(msg.Values, "action"))
	success := field(msg.Values, "success") == "true"
	metrics := decodeMetrics(msg.Values)

	reward := engine.CalculateReward(success, metrics)

	_, err := c.service.Learn(rlservice.LearnRequest{
		Context:       ctxKey,
		Action:        action,
		Reward:        reward,
		CorrelationID: field(msg.Values, "correlation_id"),
	})
	return err
}

// handlePerformanceUpdated implements the campaign.performance_updated row:
// base reward of +/-0.5 on improvement, plus an roas adjustment.
func (c *Consumer) handlePerformanceUpdated(msg redis.XMessage) error {
	ctxKey := field(msg.Values, "strategic_context")
	action := models.Action(field(msg.Values, "previous_action"))
	improved := field(msg.Values, "improvement") == "true"
	metrics := decodeMetrics(msg.Values)

	reward := -0.5
	if improved {
		reward = 0.5
	}
	switch {
	case metrics.ROAS > 3.0:
		reward += 0.3
	case metrics.ROAS < 1.0:
		reward -= 0.3
	}
	reward = clampReward(reward)

	_, err := c.service.Learn(rlservice.LearnRequest{
		Context:       ctxKey,
		Action:        action,
		Reward:        reward,
		CorrelationID: field(msg.Values, "correlation_id"),
	})
	return err
}

// handleStrategyFeedback implements the rl.strategy_feedback row: the
// reward arrives explicit and is only clamped.
func (c *Consumer) handleStrategyFeedback(msg redis.XMessage) error {
	ctxKey := field(msg.Values, "context")
	action := models.Action(field(msg.Values, "action"))

	var reward float64
	fmt.Sscanf(field(msg.Values, "reward"), "%f", &reward)
	reward = clampReward(reward)

	_, err := c.service.Learn(rlservice.LearnRequest{
		Context:       ctxKey,
		Action:        action,
		Reward:        reward,
		CorrelationID: field(msg.Values, "correlation_id"),
	})
	return err
}

func clampReward(r float64) float64 {
	if r < -1.0 {
		return -1.0
	}
	if r > 1.0 {
		return 1.0
	}
	return r
}
