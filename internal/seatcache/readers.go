package seatcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/tidwall/gjson"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/model"
)

// The box office has written seat state in three different layouts over
// time and any of them may be present for a given event:
//
//	evento_{id}                     string, {"asientos":[{"fila":1,"columna":2,"estado":"Libre"}]}
//	evento:{id}:asientos            hash, field "fila:1:columna:2" -> status
//	evento:{id}:asiento:{row}-{col} one string per locked seat, value is the lock owner

func blobKey(eventID int64) string { return "evento_" + strconv.FormatInt(eventID, 10) }

func hashKey(eventID int64) string { return fmt.Sprintf("evento:%d:asientos", eventID) }

func hashField(row, column int) string { return fmt.Sprintf("fila:%d:columna:%d", row, column) }

func seatKey(eventID int64, row, column int) string {
	return fmt.Sprintf("evento:%d:asiento:%d-%d", eventID, row, column)
}

func seatKeyPattern(eventID int64) string { return fmt.Sprintf("evento:%d:asiento:*", eventID) }

// reader is one cache layout: fetch does the I/O, the decoder behind it is
// pure.  An empty view means "this layout has nothing for the event".
type reader struct {
	name  string
	fetch func(ctx context.Context, rdb redis.Cmdable, eventID int64) (model.SeatStatusView, error)
}

// readers is the order in which layouts are tried.
var readers = []reader{
	{name: "json", fetch: fetchBlob},
	{name: "hash", fetch: fetchHash},
	{name: "keys", fetch: fetchSeatKeys},
}

func fetchBlob(ctx context.Context, rdb redis.Cmdable, eventID int64) (model.SeatStatusView, error) {
	raw, err := rdb.Get(ctx, blobKey(eventID)).Result()
	if errors.Is(err, redis.Nil) {
		return model.SeatStatusView{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSeatBlob(raw), nil
}

func fetchHash(ctx context.Context, rdb redis.Cmdable, eventID int64) (model.SeatStatusView, error) {
	fields, err := rdb.HGetAll(ctx, hashKey(eventID)).Result()
	if errors.Is(err, redis.Nil) {
		return model.SeatStatusView{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSeatHash(fields), nil
}

const scanCount = 200

func fetchSeatKeys(ctx context.Context, rdb redis.Cmdable, eventID int64) (model.SeatStatusView, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		page, next, err := rdb.Scan(ctx, cursor, seatKeyPattern(eventID), scanCount).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, page...)
		if next == 0 {
			break
		}
		cursor = next
	}
	return decodeSeatKeys(eventID, keys), nil
}

// decodeSeatBlob reads the JSON layout.  Malformed JSON, a missing
// "asientos" array and entries with a non-positive position or a blank
// status all count as no data.
func decodeSeatBlob(raw string) model.SeatStatusView {
	view := model.SeatStatusView{}
	if strings.TrimSpace(raw) == "" || !gjson.Valid(raw) {
		return view
	}
	seats := gjson.Get(raw, "asientos")
	if !seats.IsArray() {
		return view
	}
	seats.ForEach(func(_, seat gjson.Result) bool {
		row := positiveInt(seat.Get("fila"))
		col := positiveInt(seat.Get("columna"))
		status := strings.TrimSpace(seat.Get("estado").String())
		if row > 0 && col > 0 && status != "" {
			view[model.SeatPosition{Row: row, Column: col}] = status
		}
		return true
	})
	return view
}

func positiveInt(r gjson.Result) int {
	if r.Type != gjson.Number && r.Type != gjson.String {
		return -1
	}
	n := r.Int()
	if n <= 0 {
		return -1
	}
	return int(n)
}

// decodeSeatHash reads the hash layout.  Fields that do not follow
// "fila:R:columna:C" are ignored.
func decodeSeatHash(fields map[string]string) model.SeatStatusView {
	view := make(model.SeatStatusView, len(fields))
	for field, status := range fields {
		pos, ok := parseHashField(field)
		if !ok || strings.TrimSpace(status) == "" {
			continue
		}
		view[pos] = status
	}
	return view
}

func parseHashField(field string) (model.SeatPosition, bool) {
	parts := strings.Split(field, ":")
	if len(parts) != 4 || parts[0] != "fila" || parts[2] != "columna" {
		return model.SeatPosition{}, false
	}
	return toPosition(parts[1], parts[3])
}

// decodeSeatKeys turns per-seat key names into a view where every seat is
// Locked.  Keys belonging to another event or with a malformed suffix are
// ignored.
func decodeSeatKeys(eventID int64, keys []string) model.SeatStatusView {
	view := make(model.SeatStatusView, len(keys))
	for _, key := range keys {
		parts := strings.Split(key, ":")
		if len(parts) != 4 || parts[0] != "evento" || parts[2] != "asiento" {
			continue
		}
		if id, err := strconv.ParseInt(parts[1], 10, 64); err != nil || id != eventID {
			continue
		}
		row, col, found := strings.Cut(parts[3], "-")
		if !found {
			continue
		}
		if pos, ok := toPosition(row, col); ok {
			view[pos] = model.SeatLocked
		}
	}
	return view
}

func toPosition(row, col string) (model.SeatPosition, bool) {
	r, err := strconv.Atoi(row)
	if err != nil || r <= 0 {
		return model.SeatPosition{}, false
	}
	c, err := strconv.Atoi(col)
	if err != nil || c <= 0 {
		return model.SeatPosition{}, false
	}
	return model.SeatPosition{Row: r, Column: c}, true
}
