// Package transform implements the star-schema transformation core: dimension
// projection with first-seen dedup, timestamp decomposition, and the
// songplays fact construction.
package transform

import (
	"time"

	"github.com/sparkifydata/sparkify-etl/internal/model"
)

// DeriveTimestamp converts epoch milliseconds to a timestamp in loc.
// A nil loc means UTC.
func DeriveTimestamp(ms int64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(ms).In(loc)
}

// BuildSongs projects the songs dimension from the catalog, one row per
// distinct song_id. The first occurrence of a key wins; conflicting
// attribute values on later duplicates are discarded, not merged.
func BuildSongs(records []model.SongRecord) []model.SongRow {
	seen := make(map[string]bool, len(records))
	rows := make([]model.SongRow, 0, len(records))
	for _, rec := range records {
		key := deref(rec.SongID)
		if seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, model.SongRow{
			SongID:   rec.SongID,
			Title:    rec.Title,
			ArtistID: rec.ArtistID,
			Duration: rec.Duration,
			Year:     rec.Year,
		})
	}
	return rows
}

// BuildArtists projects the artists dimension from the catalog, one row per
// distinct artist_id, first occurrence wins.
func BuildArtists(records []model.SongRecord) []model.ArtistRow {
	seen := make(map[string]bool, len(records))
	rows := make([]model.ArtistRow, 0, len(records))
	for _, rec := range records {
		key := deref(rec.ArtistID)
		if seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, model.ArtistRow{
			ArtistID:  rec.ArtistID,
			Name:      rec.ArtistName,
			Location:  rec.ArtistLocation,
			Latitude:  rec.ArtistLatitude,
			Longitude: rec.ArtistLongitude,
		})
	}
	return rows
}

// BuildUsers projects the users dimension over ALL events, not just plays.
// A user whose only events are non-play actions still gets a row. Level is
// whatever the first-seen event carried.
func BuildUsers(events []model.LogEvent) []model.UserRow {
	seen := make(map[string]bool, len(events))
	rows := make([]model.UserRow, 0, 64)
	for i := range events {
		ev := &events[i]
		key := deref(ev.UserID)
		if seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, model.UserRow{
			UserID:    ev.UserID,
			FirstName: ev.FirstName,
			LastName:  ev.LastName,
			Gender:    ev.Gender,
			Level:     ev.Level,
		})
	}
	return rows
}

// BuildTime derives the time dimension from play events only, one row per
// distinct start_time. Events without a usable ts are skipped; they carry no
// timestamp to decompose.
func BuildTime(events []model.LogEvent, loc *time.Location) []model.TimeRow {
	seen := make(map[int64]bool, len(events))
	rows := make([]model.TimeRow, 0, len(events))
	for i := range events {
		ev := &events[i]
		if !ev.IsNextSong() || ev.TS == nil {
			continue
		}
		if seen[*ev.TS] {
			continue
		}
		seen[*ev.TS] = true
		rows = append(rows, decomposeTimestamp(DeriveTimestamp(*ev.TS, loc)))
	}
	return rows
}

// decomposeTimestamp computes the calendar attributes of the time dimension.
// Week is the ISO week number; weekday follows time.Weekday (Sunday=0).
func decomposeTimestamp(ts time.Time) model.TimeRow {
	_, week := ts.ISOWeek()
	return model.TimeRow{
		StartTime: ts,
		Hour:      int32(ts.Hour()),
		Day:       int32(ts.Day()),
		Week:      int32(week),
		Month:     int32(ts.Month()),
		Year:      int32(ts.Year()),
		Weekday:   int32(ts.Weekday()),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
