package transform

import (
	"sort"
	"time"

	"github.com/sparkifydata/sparkify-etl/internal/model"
)

// JoinStats counts catalog matches during fact construction. A zero hit count
// over a non-empty fact table is a data-quality signal, not an error.
type JoinStats struct {
	Hits   int64
	Misses int64
}

// catalogKey is the composite join key: exact match on (title, artist name).
// No normalization; case or whitespace differences miss.
type catalogKey struct {
	title  string
	artist string
}

type catalogEntry struct {
	songID   *string
	artistID *string
}

// BuildSongplays constructs the songplays fact table from play events and the
// full song catalog.
//
// Every NextSong event yields exactly one row: matched rows carry the catalog
// song_id/artist_id, unmatched rows keep them nil (left-join semantics). Rows
// are then globally ordered by ascending start_time and songplay_id is
// assigned as a dense 1-based sequence. This sort is the single non-parallel
// stage of the pipeline.
func BuildSongplays(events []model.LogEvent, catalog []model.SongRecord, loc *time.Location) ([]model.SongplayRow, JoinStats) {
	index := buildCatalogIndex(catalog)

	var stats JoinStats
	rows := make([]model.SongplayRow, 0, len(events))
	for i := range events {
		ev := &events[i]
		if !ev.IsNextSong() {
			continue
		}

		var startTime time.Time
		if ev.TS != nil {
			startTime = DeriveTimestamp(*ev.TS, loc)
		}

		row := model.SongplayRow{
			StartTime: startTime,
			UserID:    ev.UserID,
			Level:     ev.Level,
			SessionID: ev.SessionID,
			Location:  ev.Location,
			UserAgent: ev.UserAgent,
			Month:     int32(startTime.Month()),
			Year:      int32(startTime.Year()),
		}

		if ev.Song != nil && ev.Artist != nil {
			if entry, ok := index[catalogKey{*ev.Song, *ev.Artist}]; ok {
				row.SongID = entry.songID
				row.ArtistID = entry.artistID
			}
		}
		if row.SongID != nil {
			stats.Hits++
		} else {
			stats.Misses++
		}

		rows = append(rows, row)
	}

	assignSongplayIDs(rows)
	return rows, stats
}

// buildCatalogIndex indexes the catalog by (title, artist_name). Duplicate
// keys keep the first entry, mirroring the dimension dedup policy.
func buildCatalogIndex(catalog []model.SongRecord) map[catalogKey]catalogEntry {
	index := make(map[catalogKey]catalogEntry, len(catalog))
	for _, rec := range catalog {
		if rec.Title == nil || rec.ArtistName == nil {
			continue
		}
		key := catalogKey{*rec.Title, *rec.ArtistName}
		if _, ok := index[key]; ok {
			continue
		}
		index[key] = catalogEntry{songID: rec.SongID, artistID: rec.ArtistID}
	}
	return index
}

// assignSongplayIDs sorts rows by start_time and assigns a dense 1..N
// surrogate key. The stable sort keeps equal-timestamp rows in input order so
// repeated runs over the same input produce identical output.
func assignSongplayIDs(rows []model.SongplayRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].StartTime.Before(rows[j].StartTime)
	})
	for i := range rows {
		rows[i].SongplayID = int64(i) + 1
	}
}
