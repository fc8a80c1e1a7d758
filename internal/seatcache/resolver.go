// Package seatcache resolves seat availability from the cache the box
// office maintains.  The cache is read-only from this service's point of
// view and the resolver keeps no state of its own: every query goes back
// to Redis.
package seatcache

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
)

// Resolver reads seat state for an event.
type Resolver struct {
	rdb redis.Cmdable
}

// NewResolver returns a Resolver backed by rdb.
func NewResolver(rdb redis.Cmdable) *Resolver {
	return &Resolver{rdb: rdb}
}

// SeatStatuses returns the status of every seat the cache knows about for
// the event.  Layouts are tried in order and the first non-empty one wins;
// when none has data the result is an empty view and a nil error.
func (r *Resolver) SeatStatuses(ctx context.Context, eventID int64) (model.SeatStatusView, error) {
	for _, rd := range readers {
		view, err := rd.fetch(ctx, r.rdb, eventID)
		if err != nil {
			log.Error().Err(err).Int64("event_id", eventID).Str("layout", rd.name).Msg("seatcache: read failed")
			return nil, &CacheUnavailableError{EventID: eventID, Err: err}
		}
		if len(view) > 0 {
			log.Debug().Int64("event_id", eventID).Str("layout", rd.name).Int("seats", len(view)).Msg("seatcache: resolved")
			return view, nil
		}
	}
	return model.SeatStatusView{}, nil
}

// SeatStatus returns the status of one seat.  The hash field is checked
// first, then the JSON layout, then the per-seat lock key.  A seat found
// nowhere is Unknown.
func (r *Resolver) SeatStatus(ctx context.Context, eventID int64, row, column int) (string, error) {
	wrap := func(err error) error { return &CacheUnavailableError{EventID: eventID, Err: err} }

	status, err := r.rdb.HGet(ctx, hashKey(eventID), hashField(row, column)).Result()
	switch {
	case err == nil && strings.TrimSpace(status) != "":
		return status, nil
	case err != nil && !errors.Is(err, redis.Nil):
		return "", wrap(err)
	}

	blob, err := fetchBlob(ctx, r.rdb, eventID)
	if err != nil {
		return "", wrap(err)
	}
	if s, ok := blob[model.SeatPosition{Row: row, Column: column}]; ok {
		return s, nil
	}

	n, err := r.rdb.Exists(ctx, seatKey(eventID, row, column)).Result()
	if err != nil {
		return "", wrap(err)
	}
	if n > 0 {
		return model.SeatLocked, nil
	}
	return model.SeatUnknown, nil
}
