// Package model defines the input records and star-schema rows of the
// Sparkify lake ETL.
package model

// SongRecord is one entry of the song catalog, decoded permissively: a field
// that fails type coercion is nil, never a record-level failure.
type SongRecord struct {
	SongID          *string
	Title           *string
	ArtistID        *string
	ArtistName      *string
	ArtistLocation  *string
	ArtistLatitude  *float64
	ArtistLongitude *float64
	Duration        *float64
	Year            *int32
	NumSongs        *int32
}

// LogEvent is one user action from the session logs. Only events with
// Page == PageNextSong represent song plays.
type LogEvent struct {
	TS        *int64 // epoch milliseconds
	Page      *string
	UserID    *string
	FirstName *string
	LastName  *string
	Gender    *string
	Level     *string
	Song      *string
	Artist    *string
	SessionID *int64
	Location  *string
	UserAgent *string
}

// PageNextSong marks the log events that count as song plays.
const PageNextSong = "NextSong"

// IsNextSong reports whether the event is a song play.
func (e *LogEvent) IsNextSong() bool {
	return e.Page != nil && *e.Page == PageNextSong
}

// String returns a pointer to s. Convenience for building records.
func String(s string) *string { return &s }

// Float64 returns a pointer to f.
func Float64(f float64) *float64 { return &f }

// Int64 returns a pointer to i.
func Int64(i int64) *int64 { return &i }

// Int32 returns a pointer to i.
func Int32(i int32) *int32 { return &i }
