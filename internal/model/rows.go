package model

import (
	"strconv"
	"time"
)

// Dataset names under the output root. The .parquet suffix names the dataset
// directory, not a single file.
const (
	DatasetSongs     = "songs.parquet"
	DatasetArtists   = "artists.parquet"
	DatasetUsers     = "users.parquet"
	DatasetTime      = "time.parquet"
	DatasetSongplays = "songplays.parquet"
)

// SongRow is one row of the songs dimension, unique by song_id.
type SongRow struct {
	SongID   *string  `parquet:"song_id,optional"`
	Title    *string  `parquet:"title,optional"`
	ArtistID *string  `parquet:"artist_id,optional"`
	Duration *float64 `parquet:"duration,optional"`
	Year     *int32   `parquet:"year,optional"`
}

// PartitionValues returns the (year, artist_id) partition values.
func (r SongRow) PartitionValues() []string {
	return []string{int32Value(r.Year), stringValue(r.ArtistID)}
}

// ArtistRow is one row of the artists dimension, unique by artist_id.
type ArtistRow struct {
	ArtistID  *string  `parquet:"artist_id,optional"`
	Name      *string  `parquet:"name,optional"`
	Location  *string  `parquet:"location,optional"`
	Latitude  *float64 `parquet:"latitude,optional"`
	Longitude *float64 `parquet:"longitude,optional"`
}

// PartitionValues returns nil; the artists dataset is unpartitioned.
func (ArtistRow) PartitionValues() []string { return nil }

// UserRow is one row of the users dimension, unique by user_id. Level is an
// arbitrary first-seen snapshot for users who changed tiers mid-dataset.
type UserRow struct {
	UserID    *string `parquet:"user_id,optional"`
	FirstName *string `parquet:"first_name,optional"`
	LastName  *string `parquet:"last_name,optional"`
	Gender    *string `parquet:"gender,optional"`
	Level     *string `parquet:"level,optional"`
}

// PartitionValues returns nil; the users dataset is unpartitioned.
func (UserRow) PartitionValues() []string { return nil }

// TimeRow is one row of the time dimension, unique by start_time.
type TimeRow struct {
	StartTime time.Time `parquet:"start_time,timestamp(millisecond)"`
	Hour      int32     `parquet:"hour"`
	Day       int32     `parquet:"day"`
	Week      int32     `parquet:"week"`
	Month     int32     `parquet:"month"`
	Year      int32     `parquet:"year"`
	Weekday   int32     `parquet:"weekday"`
}

// PartitionValues returns the (year, month) partition values.
func (r TimeRow) PartitionValues() []string {
	return []string{formatInt32(r.Year), formatInt32(r.Month)}
}

// SongplayRow is one row of the songplays fact table. SongID and ArtistID are
// nil when the play had no catalog match.
type SongplayRow struct {
	SongplayID int64     `parquet:"songplay_id"`
	StartTime  time.Time `parquet:"start_time,timestamp(millisecond)"`
	UserID     *string   `parquet:"user_id,optional"`
	Level      *string   `parquet:"level,optional"`
	SongID     *string   `parquet:"song_id,optional"`
	ArtistID   *string   `parquet:"artist_id,optional"`
	SessionID  *int64    `parquet:"session_id,optional"`
	Location   *string   `parquet:"location,optional"`
	UserAgent  *string   `parquet:"user_agent,optional"`
	Month      int32     `parquet:"month"`
	Year       int32     `parquet:"year"`
}

// PartitionValues returns the (year, month) partition values.
func (r SongplayRow) PartitionValues() []string {
	return []string{formatInt32(r.Year), formatInt32(r.Month)}
}

func formatInt32(v int32) string {
	return strconv.FormatInt(int64(v), 10)
}

func int32Value(v *int32) string {
	if v == nil {
		return ""
	}
	return formatInt32(*v)
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
