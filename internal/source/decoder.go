package source

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/sparkifydata/sparkify-etl/internal/model"
)

// ErrMalformedLine is returned when a line is not a JSON object.
var ErrMalformedLine = errors.New("malformed json line")

// Decoder parses newline-delimited JSON into typed records.
//
// Decoding is permissive: a field that cannot be coerced to its declared type
// becomes nil and is counted, never a row-level failure. Unknown fields are
// ignored.
type Decoder struct{}

// NewDecoder creates a record decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// IsDataFile reports whether path looks like an ingestible NDJSON file,
// optionally compressed.
func IsDataFile(path string) bool {
	return strings.HasSuffix(path, ".json") ||
		strings.HasSuffix(path, ".json.gz") ||
		strings.HasSuffix(path, ".json.zst")
}

// OpenReader wraps r with the decompressor implied by the path suffix.
// The returned closer must be closed before r.
func OpenReader(path string, r io.Reader) (io.Reader, io.Closer, error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip reader for %s: %w", path, err)
		}
		return gz, gz, nil
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, fmt.Errorf("zstd reader for %s: %w", path, err)
		}
		return zr, closerFunc(func() error { zr.Close(); return nil }), nil
	default:
		return r, closerFunc(func() error { return nil }), nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// DecodeSong decodes one catalog line into a SongRecord. The returned count
// is the number of declared fields that failed coercion.
func (d *Decoder) DecodeSong(line []byte) (*model.SongRecord, int, error) {
	raw, err := decodeObject(line)
	if err != nil {
		return nil, 0, err
	}

	c := coercer{raw: raw}
	rec := &model.SongRecord{
		SongID:          c.str("song_id"),
		Title:           c.str("title"),
		ArtistID:        c.str("artist_id"),
		ArtistName:      c.str("artist_name"),
		ArtistLocation:  c.str("artist_location"),
		ArtistLatitude:  c.float("artist_latitude"),
		ArtistLongitude: c.float("artist_longitude"),
		Duration:        c.float("duration"),
		Year:            c.int32("year"),
		NumSongs:        c.int32("num_songs"),
	}
	return rec, c.failures, nil
}

// DecodeLog decodes one session-log line into a LogEvent.
func (d *Decoder) DecodeLog(line []byte) (*model.LogEvent, int, error) {
	raw, err := decodeObject(line)
	if err != nil {
		return nil, 0, err
	}

	c := coercer{raw: raw}
	ev := &model.LogEvent{
		TS:        c.int64("ts"),
		Page:      c.str("page"),
		UserID:    c.str("userId"),
		FirstName: c.str("firstName"),
		LastName:  c.str("lastName"),
		Gender:    c.str("gender"),
		Level:     c.str("level"),
		Song:      c.str("song"),
		Artist:    c.str("artist"),
		SessionID: c.int64("sessionId"),
		Location:  c.str("location"),
		UserAgent: c.str("userAgent"),
	}
	return ev, c.failures, nil
}

func decodeObject(line []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	if raw == nil {
		return nil, ErrMalformedLine
	}
	return raw, nil
}

// coercer applies per-field type coercion over a decoded JSON object,
// counting failures.
type coercer struct {
	raw      map[string]any
	failures int
}

func (c *coercer) str(field string) *string {
	v, ok := c.raw[field]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		return &t
	case float64:
		s := formatNumber(t)
		return &s
	default:
		c.failures++
		return nil
	}
}

func (c *coercer) float(field string) *float64 {
	v, ok := c.raw[field]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return &f
		}
		c.failures++
		return nil
	default:
		c.failures++
		return nil
	}
}

func (c *coercer) int64(field string) *int64 {
	v, ok := c.raw[field]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case float64:
		i := int64(t)
		return &i
	case string:
		if i, err := strconv.ParseInt(t, 10, 64); err == nil {
			return &i
		}
		c.failures++
		return nil
	default:
		c.failures++
		return nil
	}
}

func (c *coercer) int32(field string) *int32 {
	i := c.int64(field)
	if i == nil {
		return nil
	}
	v := int32(*i)
	return &v
}

// formatNumber renders a JSON number the way it would read as a string field:
// integral values without a decimal point.
func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
