package transform

import (
	"testing"
	"time"

	"github.com/sparkifydata/sparkify-etl/internal/model"
)

func TestBuildSongplaysJoin(t *testing.T) {
	catalog := []model.SongRecord{
		songRecord("S1", "Test Song", "A1", "Test Artist", 2018),
	}
	events := []model.LogEvent{
		nextSongEvent(1541106106796, "26", "Test Song", "Test Artist"),
		nextSongEvent(1541106206796, "26", "Unknown Song", "Unknown Artist"),
	}

	rows, stats := BuildSongplays(events, catalog, time.UTC)
	if len(rows) != 2 {
		t.Fatalf("expected one fact row per play event, got %d", len(rows))
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit / 1 miss", stats)
	}

	matched := rows[0]
	if matched.SongID == nil || *matched.SongID != "S1" {
		t.Errorf("matched song_id = %v, want S1", matched.SongID)
	}
	if matched.ArtistID == nil || *matched.ArtistID != "A1" {
		t.Errorf("matched artist_id = %v, want A1", matched.ArtistID)
	}

	// Unmatched rows are preserved with null ids, not dropped.
	missed := rows[1]
	if missed.SongID != nil || missed.ArtistID != nil {
		t.Errorf("unmatched row should have nil song_id/artist_id, got %v/%v",
			missed.SongID, missed.ArtistID)
	}
	if missed.UserID == nil || *missed.UserID != "26" {
		t.Errorf("unmatched row lost event fields: user_id = %v", missed.UserID)
	}
}

func TestBuildSongplaysJoinIsExactMatch(t *testing.T) {
	catalog := []model.SongRecord{
		songRecord("S1", "Test Song", "A1", "Test Artist", 2018),
	}
	// Case difference misses: no normalization on the join key.
	events := []model.LogEvent{
		nextSongEvent(1541106106796, "1", "test song", "Test Artist"),
	}

	rows, stats := BuildSongplays(events, catalog, time.UTC)
	if stats.Hits != 0 {
		t.Errorf("case-differing title should miss, got %d hits", stats.Hits)
	}
	if len(rows) != 1 || rows[0].SongID != nil {
		t.Errorf("missed row should survive with nil song_id")
	}
}

func TestBuildSongplaysIgnoresNonPlays(t *testing.T) {
	events := []model.LogEvent{
		{Page: model.String("Login"), TS: model.Int64(1)},
		nextSongEvent(1541106106796, "1", "s", "a"),
	}

	rows, _ := BuildSongplays(events, nil, time.UTC)
	if len(rows) != 1 {
		t.Fatalf("expected only NextSong events in the fact table, got %d rows", len(rows))
	}
}

func TestSongplayIDDenseAndTimeOrdered(t *testing.T) {
	// Deliberately out of time order, with one duplicate timestamp.
	events := []model.LogEvent{
		nextSongEvent(3000, "u3", "s", "a"),
		nextSongEvent(1000, "u1", "s", "a"),
		nextSongEvent(2000, "u2", "s", "a"),
		nextSongEvent(2000, "u2b", "s", "a"),
	}

	rows, _ := BuildSongplays(events, nil, time.UTC)
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}

	for i, row := range rows {
		if row.SongplayID != int64(i)+1 {
			t.Errorf("songplay_id at %d = %d, want dense 1..N", i, row.SongplayID)
		}
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].StartTime.Before(rows[i-1].StartTime) {
			t.Errorf("rows not ordered by start_time at %d", i)
		}
	}

	// The stable sort keeps equal timestamps in input order.
	if *rows[1].UserID != "u2" || *rows[2].UserID != "u2b" {
		t.Errorf("tie order = (%s, %s), want (u2, u2b)", *rows[1].UserID, *rows[2].UserID)
	}
}

func TestBuildSongplaysPartitionColumns(t *testing.T) {
	events := []model.LogEvent{
		nextSongEvent(1541106106796, "1", "s", "a"), // 2018-11
	}

	rows, _ := BuildSongplays(events, nil, time.UTC)
	if rows[0].Year != 2018 || rows[0].Month != 11 {
		t.Errorf("partition columns = (%d, %d), want (2018, 11)", rows[0].Year, rows[0].Month)
	}
	if got := rows[0].PartitionValues(); got[0] != "2018" || got[1] != "11" {
		t.Errorf("PartitionValues = %v", got)
	}
}

func TestBuildSongplaysDuplicateCatalogKey(t *testing.T) {
	catalog := []model.SongRecord{
		songRecord("S1", "Same Title", "A1", "Same Artist", 2001),
		songRecord("S2", "Same Title", "A2", "Same Artist", 2002),
	}
	events := []model.LogEvent{
		nextSongEvent(1000, "1", "Same Title", "Same Artist"),
	}

	rows, _ := BuildSongplays(events, catalog, time.UTC)
	// First catalog entry wins, and the event still yields exactly one row.
	if len(rows) != 1 || *rows[0].SongID != "S1" {
		t.Errorf("expected single row joined to S1")
	}
}
