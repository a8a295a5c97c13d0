// Package dispatchlog keeps a short-lived ledger of booking offers in Redis so that dispatch
// history survives a restart of the process holding the offers.
package dispatchlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/semanticallynull/ridemarket-backend/dispatch"
)

const (
	requestKeyPrefix = "dispatch:req:%s"
	notifiedSuffix   = ":notified"
	// Offers resolve or expire well within a week.
	keyTTL = 7 * 24 * time.Hour
)

// Entry is the ledger record of one offer.
type Entry struct {
	BookingID    string
	CompanyID    string
	DispatchedAt time.Time
	ResolvedBy   string
	ResolvedAt   time.Time
	Notified     []string
}

type RedisRecorder struct {
	redis *redis.Client
}

func NewRedisRecorder(client *redis.Client) *RedisRecorder {
	return &RedisRecorder{redis: client}
}

// NewClient connects to addr and checks the server answers.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return client, nil
}

func requestKey(requestID string) string {
	return fmt.Sprintf(requestKeyPrefix, requestID)
}

// RecordDispatch stores when the offer went out and which vendors it targeted.
func (r *RedisRecorder) RecordDispatch(ctx context.Context, o dispatch.Offer) error {
	key := requestKey(o.RequestID)
	pipe := r.redis.Pipeline()
	pipe.HSet(ctx, key,
		"booking_id", o.BookingID.String(),
		"company_id", o.CompanyID.String(),
		"dispatched_at", o.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, keyTTL)
	if len(o.Targets) > 0 {
		members := make([]any, 0, len(o.Targets))
		for _, id := range o.Targets.Slice() {
			members = append(members, id.String())
		}
		pipe.SAdd(ctx, key+notifiedSuffix, members...)
		pipe.Expire(ctx, key+notifiedSuffix, keyTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// RecordTarget adds a vendor reached after dispatch to the notified set of requestID.
func (r *RedisRecorder) RecordTarget(ctx context.Context, requestID string, vendorID uuid.UUID) error {
	key := requestKey(requestID) + notifiedSuffix
	pipe := r.redis.Pipeline()
	pipe.SAdd(ctx, key, vendorID.String())
	pipe.Expire(ctx, key, keyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RecordResolution stores the winning vendor of a resolved offer.
func (r *RedisRecorder) RecordResolution(ctx context.Context, o dispatch.Offer) error {
	if o.ResolvedBy == nil {
		return fmt.Errorf("offer %s has no winner", o.RequestID)
	}
	key := requestKey(o.RequestID)
	pipe := r.redis.Pipeline()
	pipe.HSet(ctx, key,
		"resolved_by", o.ResolvedBy.String(),
		"resolved_at", o.ResolvedAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, keyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Lookup returns the ledger entry of requestID, and whether one exists.
func (r *RedisRecorder) Lookup(ctx context.Context, requestID string) (Entry, bool, error) {
	key := requestKey(requestID)
	fields, err := r.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return Entry{}, false, err
	}
	if len(fields) == 0 {
		return Entry{}, false, nil
	}

	e := Entry{
		BookingID:  fields["booking_id"],
		CompanyID:  fields["company_id"],
		ResolvedBy: fields["resolved_by"],
	}
	if e.DispatchedAt, err = parseTime(fields["dispatched_at"]); err != nil {
		return Entry{}, false, err
	}
	if e.ResolvedAt, err = parseTime(fields["resolved_at"]); err != nil {
		return Entry{}, false, err
	}
	if e.Notified, err = r.redis.SMembers(ctx, key+notifiedSuffix).Result(); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
