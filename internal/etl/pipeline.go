// Package etl orchestrates the two Sparkify pipelines: song metadata into the
// songs/artists dimensions, session logs into the users/time dimensions and
// the songplays fact table.
package etl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sparkifydata/sparkify-etl/internal/config"
	"github.com/sparkifydata/sparkify-etl/internal/logging"
	"github.com/sparkifydata/sparkify-etl/internal/metrics"
	"github.com/sparkifydata/sparkify-etl/internal/model"
	"github.com/sparkifydata/sparkify-etl/internal/source"
	"github.com/sparkifydata/sparkify-etl/internal/storage"
	"github.com/sparkifydata/sparkify-etl/internal/transform"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

// ETL wires sources, the transform core, and the lake store into the two
// pipelines. Sources are read-only; every run fully rebuilds every dataset.
type ETL struct {
	cfg     config.Config
	songSrc source.LineSource
	logSrc  source.LineSource
	store   storage.LakeStore
	decoder *source.Decoder
	loc     *time.Location
	log     *slog.Logger
}

// New creates the ETL. songSrc and logSrc stream the song catalog and the
// session logs; store receives the star-schema datasets.
func New(cfg config.Config, songSrc, logSrc source.LineSource, store storage.LakeStore) (*ETL, error) {
	loc := time.UTC
	if cfg.ETL.Timezone != "" && cfg.ETL.Timezone != "UTC" {
		parsed, err := time.LoadLocation(cfg.ETL.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %s: %w", cfg.ETL.Timezone, err)
		}
		loc = parsed
	}

	return &ETL{
		cfg:     cfg,
		songSrc: songSrc,
		logSrc:  logSrc,
		store:   store,
		decoder: source.NewDecoder(),
		loc:     loc,
		log:     logging.Component("etl"),
	}, nil
}

// Run executes the song pipeline, then the log pipeline. The song catalog is
// read once and shared: the log pipeline joins against the raw catalog, not
// the songs dataset.
func (e *ETL) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{RunID: logging.NewRunID()}
	log := e.log.With("run_id", report.RunID)
	log.Info("starting run", "version", Version)

	catalog, err := e.loadSongRecords(ctx, report)
	if err != nil {
		return report, err
	}
	if err := e.runSongPipeline(ctx, catalog, report); err != nil {
		return report, err
	}

	events, err := e.loadLogEvents(ctx, report)
	if err != nil {
		return report, err
	}
	if err := e.runLogPipeline(ctx, events, catalog, report); err != nil {
		return report, err
	}

	e.observeRun(report)
	report.Log(log)
	return report, nil
}

// RunSongPipeline runs only the song pipeline: catalog in, songs and artists
// dimensions out.
func (e *ETL) RunSongPipeline(ctx context.Context) (*RunReport, error) {
	report := &RunReport{RunID: logging.NewRunID()}
	catalog, err := e.loadSongRecords(ctx, report)
	if err != nil {
		return report, err
	}
	if err := e.runSongPipeline(ctx, catalog, report); err != nil {
		return report, err
	}
	return report, nil
}

// RunLogPipeline runs only the log pipeline. It reads the song catalog itself
// for the fact-table join; it does not depend on the song pipeline's output.
func (e *ETL) RunLogPipeline(ctx context.Context) (*RunReport, error) {
	report := &RunReport{RunID: logging.NewRunID()}
	catalog, err := e.loadSongRecords(ctx, report)
	if err != nil {
		return report, err
	}
	events, err := e.loadLogEvents(ctx, report)
	if err != nil {
		return report, err
	}
	if err := e.runLogPipeline(ctx, events, catalog, report); err != nil {
		return report, err
	}
	return report, nil
}

func (e *ETL) loadSongRecords(ctx context.Context, report *RunReport) ([]model.SongRecord, error) {
	records, stats, err := decodeLines(ctx, e.songSrc, e.cfg.ETL.Workers, e.cfg.ETL.Strict,
		e.log.With("source", "song_data"), e.decoder.DecodeSong)
	if err != nil {
		return nil, fmt.Errorf("read song data: %w", err)
	}

	report.SongRecords = stats.Records
	report.MalformedSongLines = stats.MalformedLines
	report.RejectedRecords += stats.RejectedRecords
	report.CoercionFailures += stats.CoercionFailures
	if m := metrics.Get(); m != nil {
		m.RecordsRead.WithLabelValues("song_data").Add(float64(stats.Records))
		m.MalformedLines.WithLabelValues("song_data").Add(float64(stats.MalformedLines))
		m.RejectedRecords.WithLabelValues("song_data").Add(float64(stats.RejectedRecords))
	}

	e.log.Info("song data loaded", "records", stats.Records, "malformed", stats.MalformedLines)
	return records, nil
}

func (e *ETL) loadLogEvents(ctx context.Context, report *RunReport) ([]model.LogEvent, error) {
	events, stats, err := decodeLines(ctx, e.logSrc, e.cfg.ETL.Workers, e.cfg.ETL.Strict,
		e.log.With("source", "log_data"), e.decoder.DecodeLog)
	if err != nil {
		return nil, fmt.Errorf("read log data: %w", err)
	}

	report.LogEvents = stats.Records
	report.MalformedLogLines = stats.MalformedLines
	report.RejectedRecords += stats.RejectedRecords
	report.CoercionFailures += stats.CoercionFailures
	if m := metrics.Get(); m != nil {
		m.RecordsRead.WithLabelValues("log_data").Add(float64(stats.Records))
		m.MalformedLines.WithLabelValues("log_data").Add(float64(stats.MalformedLines))
		m.RejectedRecords.WithLabelValues("log_data").Add(float64(stats.RejectedRecords))
	}

	e.log.Info("log data loaded", "events", stats.Records, "malformed", stats.MalformedLines)
	return events, nil
}

// runSongPipeline derives and publishes the songs and artists dimensions.
func (e *ETL) runSongPipeline(ctx context.Context, catalog []model.SongRecord, report *RunReport) error {
	start := time.Now()

	songs := transform.BuildSongs(catalog)
	if err := publishTable(ctx, e, model.DatasetSongs, []string{"year", "artist_id"}, songs); err != nil {
		return err
	}
	report.SongsRows = int64(len(songs))

	artists := transform.BuildArtists(catalog)
	if err := publishTable(ctx, e, model.DatasetArtists, nil, artists); err != nil {
		return err
	}
	report.ArtistsRows = int64(len(artists))

	report.SongPipelineDuration = time.Since(start)
	if m := metrics.Get(); m != nil {
		m.PipelineDuration.WithLabelValues("song").Observe(report.SongPipelineDuration.Seconds())
	}
	return nil
}

// runLogPipeline derives and publishes the users and time dimensions and the
// songplays fact table.
func (e *ETL) runLogPipeline(ctx context.Context, events []model.LogEvent, catalog []model.SongRecord, report *RunReport) error {
	start := time.Now()

	users := transform.BuildUsers(events)
	if err := publishTable(ctx, e, model.DatasetUsers, nil, users); err != nil {
		return err
	}
	report.UsersRows = int64(len(users))

	timeRows := transform.BuildTime(events, e.loc)
	if err := publishTable(ctx, e, model.DatasetTime, []string{"year", "month"}, timeRows); err != nil {
		return err
	}
	report.TimeRows = int64(len(timeRows))

	songplays, joinStats := transform.BuildSongplays(events, catalog, e.loc)
	if err := publishTable(ctx, e, model.DatasetSongplays, []string{"year", "month"}, songplays); err != nil {
		return err
	}
	report.SongplayRows = int64(len(songplays))
	report.JoinHits = joinStats.Hits
	report.JoinMisses = joinStats.Misses

	if joinStats.Hits == 0 && joinStats.Misses > 0 {
		e.log.Warn("no play event matched the song catalog", "plays", joinStats.Misses)
	}

	report.LogPipelineDuration = time.Since(start)
	if m := metrics.Get(); m != nil {
		m.PipelineDuration.WithLabelValues("log").Observe(report.LogPipelineDuration.Seconds())
	}
	return nil
}

// publishTable writes one star-schema table through the dataset writer.
func publishTable[T storage.Partitioned](ctx context.Context, e *ETL, name string, partitionBy []string, rows []T) error {
	start := time.Now()

	spec := storage.DatasetSpec{
		Name:        name,
		PartitionBy: partitionBy,
		Compression: e.cfg.Output.Compression,
		Producer: storage.ProducerInfo{
			Name:    "sparkify-etl",
			Version: Version,
			GitSHA:  GitSHA,
		},
	}

	manifest, err := storage.WriteDataset(ctx, e.store, spec, rows)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	if m := metrics.Get(); m != nil {
		m.RowsEmitted.WithLabelValues(name).Add(float64(manifest.RowCount))
		m.WriteDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		var bytes int64
		for _, f := range manifest.Files {
			bytes += f.ByteSize
		}
		m.BytesWritten.WithLabelValues(name).Add(float64(bytes))
	}
	return nil
}

func (e *ETL) observeRun(report *RunReport) {
	m := metrics.Get()
	if m == nil {
		return
	}
	m.JoinHits.Add(float64(report.JoinHits))
	m.JoinMisses.Add(float64(report.JoinMisses))
	m.JoinMatchRate.Set(report.MatchRate())
}
