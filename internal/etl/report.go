package etl

import (
	"log/slog"
	"time"
)

// RunReport summarizes one ETL run. Counters are best-effort observability;
// the tables themselves are the source of truth.
type RunReport struct {
	RunID string

	SongRecords int64
	LogEvents   int64

	MalformedSongLines int64
	MalformedLogLines  int64
	RejectedRecords    int64
	CoercionFailures   int64

	SongsRows    int64
	ArtistsRows  int64
	UsersRows    int64
	TimeRows     int64
	SongplayRows int64

	JoinHits   int64
	JoinMisses int64

	SongPipelineDuration time.Duration
	LogPipelineDuration  time.Duration
}

// MatchRate returns the fraction of fact rows that matched the catalog.
// A rate of 0 over a non-empty fact table is a data-quality signal,
// not an error.
func (r *RunReport) MatchRate() float64 {
	total := r.JoinHits + r.JoinMisses
	if total == 0 {
		return 0
	}
	return float64(r.JoinHits) / float64(total)
}

// Log emits the report through the given logger.
func (r *RunReport) Log(log *slog.Logger) {
	log.Info("run complete",
		"song_records", r.SongRecords,
		"log_events", r.LogEvents,
		"malformed_song_lines", r.MalformedSongLines,
		"malformed_log_lines", r.MalformedLogLines,
		"rejected_records", r.RejectedRecords,
		"songs_rows", r.SongsRows,
		"artists_rows", r.ArtistsRows,
		"users_rows", r.UsersRows,
		"time_rows", r.TimeRows,
		"songplays_rows", r.SongplayRows,
		"join_match_rate", r.MatchRate(),
		"song_pipeline_duration", r.SongPipelineDuration,
		"log_pipeline_duration", r.LogPipelineDuration,
	)
}
