package source

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func TestDecodeSong(t *testing.T) {
	line := []byte(`{"song_id":"SOAAAA1","title":"My Song","artist_id":"ARAAAA1",` +
		`"artist_name":"My Artist","artist_location":"Oakland, CA",` +
		`"artist_latitude":37.8,"artist_longitude":-122.27,` +
		`"duration":218.932,"year":2004,"num_songs":1}`)

	rec, failures, err := NewDecoder().DecodeSong(line)
	if err != nil {
		t.Fatalf("DecodeSong failed: %v", err)
	}
	if failures != 0 {
		t.Errorf("failures = %d, want 0", failures)
	}
	if *rec.SongID != "SOAAAA1" || *rec.Title != "My Song" {
		t.Errorf("decoded (%s, %s)", *rec.SongID, *rec.Title)
	}
	if *rec.Year != 2004 || *rec.Duration != 218.932 {
		t.Errorf("decoded year=%d duration=%f", *rec.Year, *rec.Duration)
	}
}

func TestDecodeSongCoercion(t *testing.T) {
	tests := []struct {
		name         string
		line         string
		wantFailures int
		check        func(t *testing.T, d *Decoder, line []byte)
	}{
		{
			name:         "null fields stay nil without failure",
			line:         `{"song_id":"S1","artist_latitude":null,"year":null}`,
			wantFailures: 0,
		},
		{
			name:         "missing fields yield nil",
			line:         `{"song_id":"S1"}`,
			wantFailures: 0,
		},
		{
			name:         "bool in string field nulls the field",
			line:         `{"song_id":"S1","title":true}`,
			wantFailures: 1,
		},
		{
			name:         "object in numeric field nulls the field",
			line:         `{"song_id":"S1","duration":{"x":1}}`,
			wantFailures: 1,
		},
		{
			name:         "numeric string coerces to float",
			line:         `{"song_id":"S1","duration":"218.93"}`,
			wantFailures: 0,
		},
		{
			name:         "non-numeric string fails float coercion",
			line:         `{"song_id":"S1","duration":"long"}`,
			wantFailures: 1,
		},
		{
			name:         "extra fields are ignored",
			line:         `{"song_id":"S1","genre":"jazz","nested":{"a":1}}`,
			wantFailures: 0,
		},
	}

	d := NewDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, failures, err := d.DecodeSong([]byte(tt.line))
			if err != nil {
				t.Fatalf("DecodeSong failed: %v", err)
			}
			if failures != tt.wantFailures {
				t.Errorf("failures = %d, want %d", failures, tt.wantFailures)
			}
			if rec.SongID == nil || *rec.SongID != "S1" {
				t.Errorf("song_id should survive coercion failures elsewhere")
			}
		})
	}
}

func TestDecodeLog(t *testing.T) {
	line := []byte(`{"ts":1541106106796,"page":"NextSong","userId":"26",` +
		`"firstName":"Ryan","lastName":"Smith","gender":"M","level":"free",` +
		`"song":"Test Song","artist":"Test Artist","sessionId":583,` +
		`"location":"San Jose-Sunnyvale-Santa Clara, CA","userAgent":"Mozilla/5.0"}`)

	ev, failures, err := NewDecoder().DecodeLog(line)
	if err != nil {
		t.Fatalf("DecodeLog failed: %v", err)
	}
	if failures != 0 {
		t.Errorf("failures = %d, want 0", failures)
	}
	if *ev.TS != 1541106106796 || *ev.SessionID != 583 {
		t.Errorf("ts=%d session=%d", *ev.TS, *ev.SessionID)
	}
	if !ev.IsNextSong() {
		t.Error("event should be a play")
	}
}

func TestDecodeLogNumericUserID(t *testing.T) {
	// Some log drops carry userId as a JSON number; it reads as a string field.
	ev, failures, err := NewDecoder().DecodeLog([]byte(`{"ts":1,"page":"Home","userId":26}`))
	if err != nil {
		t.Fatalf("DecodeLog failed: %v", err)
	}
	if failures != 0 {
		t.Errorf("failures = %d, want 0", failures)
	}
	if ev.UserID == nil || *ev.UserID != "26" {
		t.Errorf("userId = %v, want \"26\"", ev.UserID)
	}
}

func TestDecodeMalformedLine(t *testing.T) {
	for _, line := range []string{`not json`, `[1,2,3]`, `"just a string"`, `null`} {
		_, _, err := NewDecoder().DecodeLog([]byte(line))
		if !errors.Is(err, ErrMalformedLine) {
			t.Errorf("DecodeLog(%q) err = %v, want ErrMalformedLine", line, err)
		}
	}
}

func TestIsDataFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"song_data/A/A/A/TRAAAAW128F429D538.json", true},
		{"log_data/2018/11/2018-11-01-events.json.gz", true},
		{"log_data/2018/11/2018-11-01-events.json.zst", true},
		{"log_data/2018/11/_manifest.txt", false},
		{"readme.md", false},
	}
	for _, tt := range tests {
		if got := IsDataFile(tt.path); got != tt.want {
			t.Errorf("IsDataFile(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestOpenReaderGzip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte(`{"ts":1}`))
	gw.Close()

	r, closer, err := OpenReader("events.json.gz", &buf)
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer closer.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != `{"ts":1}` {
		t.Errorf("read %q", data)
	}
}

func TestOpenReaderZstd(t *testing.T) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	zw.Write([]byte(`{"ts":2}`))
	zw.Close()

	r, closer, err := OpenReader("events.json.zst", &buf)
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer closer.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != `{"ts":2}` {
		t.Errorf("read %q", data)
	}
}
