package etl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/sparkifydata/sparkify-etl/internal/config"
	"github.com/sparkifydata/sparkify-etl/internal/model"
	"github.com/sparkifydata/sparkify-etl/internal/source"
	"github.com/sparkifydata/sparkify-etl/internal/storage"
)

const songData = `{"song_id":"SOTEST1","title":"Test Song","artist_id":"ARTEST1","artist_name":"Test Artist","artist_location":"Oakland, CA","artist_latitude":37.8,"artist_longitude":-122.27,"duration":218.93,"year":2018,"num_songs":1}
{"song_id":"SOTEST2","title":"Other Song","artist_id":"ARTEST2","artist_name":"Other Artist","artist_location":"","artist_latitude":null,"artist_longitude":null,"duration":199.1,"year":0,"num_songs":1}
{"song_id":"SOTEST1","title":"Test Song","artist_id":"ARTEST1","artist_name":"Test Artist","artist_location":"Oakland, CA","artist_latitude":37.8,"artist_longitude":-122.27,"duration":218.93,"year":2018,"num_songs":1}
`

const logData = `{"ts":1541106106796,"page":"NextSong","userId":"26","firstName":"Ryan","lastName":"Smith","gender":"M","level":"free","song":"Test Song","artist":"Test Artist","sessionId":583,"location":"San Jose, CA","userAgent":"Mozilla/5.0"}
{"ts":1541106006796,"page":"NextSong","userId":"26","firstName":"Ryan","lastName":"Smith","gender":"M","level":"free","song":"No Such Song","artist":"Nobody","sessionId":583,"location":"San Jose, CA","userAgent":"Mozilla/5.0"}
{"ts":1541106206796,"page":"Home","userId":"80","firstName":"Tegan","lastName":"Levine","gender":"F","level":"paid","song":null,"artist":null,"sessionId":602,"location":"Portland, OR","userAgent":"Mozilla/5.0"}
not valid json
`

func writeInput(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func newTestETL(t *testing.T, inputDir, outputDir string) *ETL {
	t.Helper()

	cfg := config.Default()
	cfg.Input.LocalDir = inputDir
	cfg.Output.LocalDir = outputDir
	cfg.ETL.Workers = 2

	songSrc, err := source.New(source.Config{Backend: "local", LocalDir: inputDir, Prefix: "song_data/"})
	if err != nil {
		t.Fatalf("song source: %v", err)
	}
	logSrc, err := source.New(source.Config{Backend: "local", LocalDir: inputDir, Prefix: "log_data/"})
	if err != nil {
		t.Fatalf("log source: %v", err)
	}
	store, err := storage.NewLakeStore(storage.StorageConfig{Backend: "local", LocalDir: outputDir})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	e, err := New(cfg, songSrc, logSrc, store)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func readParquet[T any](t *testing.T, path string) []T {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	rows, err := parquet.Read[T](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("parquet read %s: %v", path, err)
	}
	return rows
}

func TestRunEndToEnd(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	writeInput(t, inputDir, "song_data/A/A/A/songs.json", songData)
	writeInput(t, inputDir, "log_data/2018/11/events.json", logData)

	e := newTestETL(t, inputDir, outputDir)
	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.SongRecords != 3 || report.LogEvents != 3 {
		t.Errorf("records read = %d songs / %d events", report.SongRecords, report.LogEvents)
	}
	if report.MalformedLogLines != 1 {
		t.Errorf("malformed log lines = %d, want 1", report.MalformedLogLines)
	}
	if report.SongsRows != 2 || report.ArtistsRows != 2 {
		t.Errorf("dimension rows = %d songs / %d artists", report.SongsRows, report.ArtistsRows)
	}
	if report.UsersRows != 2 {
		t.Errorf("users rows = %d, want 2 (non-play user included)", report.UsersRows)
	}
	if report.TimeRows != 2 || report.SongplayRows != 2 {
		t.Errorf("time rows = %d, songplays = %d", report.TimeRows, report.SongplayRows)
	}
	if report.JoinHits != 1 || report.JoinMisses != 1 {
		t.Errorf("join = %d hits / %d misses", report.JoinHits, report.JoinMisses)
	}

	// songs partitioned by (year, artist_id)
	songs := readParquet[model.SongRow](t,
		filepath.Join(outputDir, "songs.parquet/year=2018/artist_id=ARTEST1/part-00000.parquet"))
	if len(songs) != 1 || *songs[0].SongID != "SOTEST1" {
		t.Errorf("songs partition = %+v", songs)
	}

	// songplays partitioned by (year, month), ordered dense surrogate keys
	plays := readParquet[model.SongplayRow](t,
		filepath.Join(outputDir, "songplays.parquet/year=2018/month=11/part-00000.parquet"))
	if len(plays) != 2 {
		t.Fatalf("songplays rows = %d, want 2", len(plays))
	}
	for i, row := range plays {
		if row.SongplayID != int64(i)+1 {
			t.Errorf("songplay_id = %d at %d, want dense 1..N", row.SongplayID, i)
		}
	}
	// The earlier event is the catalog miss; the later one matched.
	if plays[0].SongID != nil {
		t.Errorf("earliest play should be the unmatched one, got song_id=%v", plays[0].SongID)
	}
	if plays[1].SongID == nil || *plays[1].SongID != "SOTEST1" {
		t.Errorf("matched play song_id = %v, want SOTEST1", plays[1].SongID)
	}

	// users and artists are unpartitioned single files
	users := readParquet[model.UserRow](t,
		filepath.Join(outputDir, "users.parquet/part-00000.parquet"))
	if len(users) != 2 {
		t.Errorf("users rows = %d", len(users))
	}
}

func TestRunIsIdempotent(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	writeInput(t, inputDir, "song_data/songs.json", songData)
	writeInput(t, inputDir, "log_data/events.json", logData)

	e := newTestETL(t, inputDir, outputDir)
	ctx := context.Background()

	if _, err := e.Run(ctx); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	first := readParquet[model.SongplayRow](t,
		filepath.Join(outputDir, "songplays.parquet/year=2018/month=11/part-00000.parquet"))

	if _, err := e.Run(ctx); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	second := readParquet[model.SongplayRow](t,
		filepath.Join(outputDir, "songplays.parquet/year=2018/month=11/part-00000.parquet"))

	if len(first) != len(second) {
		t.Fatalf("row counts differ across runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].SongplayID != second[i].SongplayID ||
			!first[i].StartTime.Equal(second[i].StartTime) {
			t.Errorf("row %d differs across runs", i)
		}
	}
}

func TestRunPipelinesIndependently(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	writeInput(t, inputDir, "song_data/songs.json", songData)
	writeInput(t, inputDir, "log_data/events.json", logData)

	e := newTestETL(t, inputDir, outputDir)

	// The log pipeline reads the raw catalog itself; it must work without the
	// song pipeline having run.
	report, err := e.RunLogPipeline(context.Background())
	if err != nil {
		t.Fatalf("RunLogPipeline failed: %v", err)
	}
	if report.JoinHits != 1 {
		t.Errorf("join hits = %d, want 1", report.JoinHits)
	}
	if _, err := os.Stat(filepath.Join(outputDir, "songs.parquet")); !os.IsNotExist(err) {
		t.Errorf("log pipeline should not write the songs dataset")
	}
}

func TestStrictModeRejectsBadRecords(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	// One clean record, one with a coercion failure (bool in a string field).
	writeInput(t, inputDir, "song_data/songs.json",
		`{"song_id":"S1","title":"Good","artist_id":"A1","artist_name":"X","duration":1.0,"year":2000,"num_songs":1}
{"song_id":"S2","title":true,"artist_id":"A2","artist_name":"Y","duration":1.0,"year":2000,"num_songs":1}
`)
	writeInput(t, inputDir, "log_data/events.json", "")

	cfg := config.Default()
	cfg.Input.LocalDir = inputDir
	cfg.Output.LocalDir = outputDir
	cfg.ETL.Strict = true

	songSrc, _ := source.New(source.Config{Backend: "local", LocalDir: inputDir, Prefix: "song_data/"})
	logSrc, _ := source.New(source.Config{Backend: "local", LocalDir: inputDir, Prefix: "log_data/"})
	store, _ := storage.NewLakeStore(storage.StorageConfig{Backend: "local", LocalDir: outputDir})

	e, err := New(cfg, songSrc, logSrc, store)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	report, err := e.RunSongPipeline(context.Background())
	if err != nil {
		t.Fatalf("RunSongPipeline failed: %v", err)
	}
	if report.SongRecords != 1 || report.RejectedRecords != 1 {
		t.Errorf("strict mode: records=%d rejected=%d, want 1/1", report.SongRecords, report.RejectedRecords)
	}
}
