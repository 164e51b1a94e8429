// Package broker implements the two messaging primitives of the control
// plane over a shared Redis connection: durable append-only streams with
// consumer groups (Stream) and ephemeral fire-and-forget topics (PubSub).
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/liftplane/liftplane/core"
	"github.com/liftplane/liftplane/resilience"
)

// Entry is one stream record: the broker-assigned id plus flat string fields
type Entry struct {
	ID     string
	Fields map[string]string
}

// ReadArgs parameterizes a consumer-group read.
// LastID ">" returns entries never delivered to the group; any other id
// replays this consumer's pending (unacknowledged) backlog from that id.
// Block follows Redis semantics: negative disables blocking, zero blocks
// indefinitely, positive blocks for that duration.
type ReadArgs struct {
	Stream   string
	Group    string
	Consumer string
	Count    int64
	Block    time.Duration
	LastID   string
}

// TrimArgs bounds a stream trim. Exactly one of MinID and MaxLen must be
// set; Trim fails with core.ErrBadArgument otherwise.
type TrimArgs struct {
	MinID       string
	MaxLen      int64
	Approximate bool
}

// Stream provides durable stream operations with consumer-group semantics
type Stream struct {
	rdb    *redis.Client
	logger core.Logger
	retry  *resilience.RetryConfig
}

// NewStream creates a stream adapter on an existing Redis connection
func NewStream(rdb *redis.Client, logger core.Logger) *Stream {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Stream{
		rdb:    rdb,
		logger: logger,
		retry:  resilience.DefaultRetryConfig(),
	}
}

// Publish appends a map of fields to the stream and returns the assigned id.
// Publish failures propagate immediately; only reads are retried.
func (s *Stream) Publish(ctx context.Context, stream string, fields map[string]interface{}) (string, error) {
	id, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: fields,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %v: %w", stream, err, core.ErrBrokerFailure)
	}

	s.logger.Debug("Stream entry published", map[string]interface{}{
		"stream": stream,
		"id":     id,
	})
	return id, nil
}

// CreateGroup creates a consumer group on the stream, creating the stream
// on demand. Creation is idempotent: an existing group is not an error.
// startID selects the replay origin: "0" for the beginning, "$" for only
// future entries, or a specific entry id.
func (s *Stream) CreateGroup(ctx context.Context, stream, group, startID string) error {
	err := s.rdb.XGroupCreateMkStream(ctx, stream, group, startID).Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			s.logger.Debug("Consumer group already exists", map[string]interface{}{
				"stream": stream,
				"group":  group,
			})
			return nil
		}
		return fmt.Errorf("create group %s on %s: %v: %w", group, stream, err, core.ErrBrokerFailure)
	}
	return nil
}

// ReadGroup reads up to args.Count entries for one consumer-group member.
// A blocking read returns an empty result after args.Block when nothing is
// available. Transient failures are retried with capped exponential backoff
// before propagating.
func (s *Stream) ReadGroup(ctx context.Context, args ReadArgs) ([]Entry, error) {
	var entries []Entry

	err := resilience.Retry(ctx, s.retry, func() error {
		res, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    args.Group,
			Consumer: args.Consumer,
			Streams:  []string{args.Stream, args.LastID},
			Count:    args.Count,
			Block:    args.Block,
		}).Result()
		if err != nil {
			// Nil means the blocking read timed out with nothing to deliver
			if errors.Is(err, redis.Nil) {
				entries = nil
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("Stream read failed, will retry", map[string]interface{}{
				"stream":   args.Stream,
				"group":    args.Group,
				"consumer": args.Consumer,
				"error":    err.Error(),
			})
			return err
		}
		entries = flatten(res)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read group %s on %s: %v: %w", args.Group, args.Stream, err, core.ErrBrokerFailure)
	}
	return entries, nil
}

// Ack marks entries as delivered-and-processed for the group and returns
// the number of entries acknowledged
func (s *Stream) Ack(ctx context.Context, stream, group string, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.rdb.XAck(ctx, stream, group, ids...).Result()
	if err != nil {
		return 0, fmt.Errorf("ack on %s: %v: %w", stream, err, core.ErrBrokerFailure)
	}
	return n, nil
}

// Range scans the stream inclusively between lo and hi ("-" and "+" for the
// full stream). Intended for operator tooling, not the consumer hot path.
func (s *Stream) Range(ctx context.Context, stream, lo, hi string) ([]Entry, error) {
	msgs, err := s.rdb.XRange(ctx, stream, lo, hi).Result()
	if err != nil {
		return nil, fmt.Errorf("range on %s: %v: %w", stream, err, core.ErrBrokerFailure)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, Entry{ID: m.ID, Fields: stringFields(m.Values)})
	}
	return entries, nil
}

// Trim deletes entries beyond the bound given by args and returns the
// number of entries removed
func (s *Stream) Trim(ctx context.Context, stream string, args TrimArgs) (int64, error) {
	hasMinID := args.MinID != ""
	hasMaxLen := args.MaxLen > 0
	if hasMinID == hasMaxLen {
		return 0, fmt.Errorf("trim on %s requires exactly one of min_id and maxlen: %w", stream, core.ErrBadArgument)
	}

	var (
		n   int64
		err error
	)
	switch {
	case hasMaxLen && args.Approximate:
		n, err = s.rdb.XTrimMaxLenApprox(ctx, stream, args.MaxLen, 0).Result()
	case hasMaxLen:
		n, err = s.rdb.XTrimMaxLen(ctx, stream, args.MaxLen).Result()
	case args.Approximate:
		n, err = s.rdb.XTrimMinIDApprox(ctx, stream, args.MinID, 0).Result()
	default:
		n, err = s.rdb.XTrimMinID(ctx, stream, args.MinID).Result()
	}
	if err != nil {
		return 0, fmt.Errorf("trim on %s: %v: %w", stream, err, core.ErrBrokerFailure)
	}

	s.logger.Info("Stream trimmed", map[string]interface{}{
		"stream":  stream,
		"removed": n,
	})
	return n, nil
}

func flatten(streams []redis.XStream) []Entry {
	var entries []Entry
	for _, st := range streams {
		for _, m := range st.Messages {
			entries = append(entries, Entry{ID: m.ID, Fields: stringFields(m.Values)})
		}
	}
	return entries
}

func stringFields(values map[string]interface{}) map[string]string {
	fields := make(map[string]string, len(values))
	for k, v := range values {
		switch s := v.(type) {
		case string:
			fields[k] = s
		default:
			fields[k] = fmt.Sprint(v)
		}
	}
	return fields
}
