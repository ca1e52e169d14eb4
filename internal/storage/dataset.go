package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// HiveDefaultPartition is the directory value for a null partition key,
// matching the convention of Hive-style readers.
const HiveDefaultPartition = "__HIVE_DEFAULT_PARTITION__"

// ManifestFile is the per-dataset manifest object name.
const ManifestFile = "_manifest.json"

// Partitioned yields the partition values of a row, aligned with the
// dataset's PartitionBy columns. Unpartitioned rows return nil.
type Partitioned interface {
	PartitionValues() []string
}

// DatasetSpec describes a dataset to publish.
type DatasetSpec struct {
	Name        string   // dataset directory, e.g. "songs.parquet"
	PartitionBy []string // hive partition column names, outermost first
	Compression string   // "snappy" | "zstd" | "gzip" | "none"
	Producer    ProducerInfo
}

// WriteDataset publishes rows as a partitioned parquet dataset with full
// overwrite semantics.
//
// Rows are grouped by partition values and encoded one parquet file per
// partition. All files are first written under temp keys; only after every
// temp write succeeds are the previous dataset objects deleted and the new
// files promoted, so the existing dataset stays readable until the final
// swap begins. A failure mid-promote leaves the destination undefined, which
// is acceptable: every run is a full, idempotent rebuild.
func WriteDataset[T Partitioned](ctx context.Context, store LakeStore, spec DatasetSpec, rows []T) (*Manifest, error) {
	log := slog.With("component", "storage", "dataset", spec.Name)

	codec, err := codecFor(spec.Compression)
	if err != nil {
		return nil, err
	}

	parts, order := groupByPartition(spec, rows)

	manifest := &Manifest{
		Dataset:     spec.Name,
		PartitionBy: spec.PartitionBy,
		RowCount:    int64(len(rows)),
		Producer:    spec.Producer,
		CreatedAt:   time.Now().UTC(),
	}

	// Encode and stage every partition file under a temp key.
	var tempKeys, finalKeys []string
	for _, dir := range order {
		data, err := encodeParquet(parts[dir], codec)
		if err != nil {
			store.Abort(ctx, tempKeys)
			return nil, fmt.Errorf("encode %s partition %q: %w", spec.Name, dir, err)
		}

		key := partitionFileKey(spec.Name, dir)
		tempKey, err := store.WriteTemp(ctx, key, data)
		if err != nil {
			store.Abort(ctx, tempKeys)
			return nil, fmt.Errorf("stage %s: %w", key, err)
		}

		tempKeys = append(tempKeys, tempKey)
		finalKeys = append(finalKeys, key)
		manifest.Files = append(manifest.Files, FileInfo{
			Key:      key,
			RowCount: int64(len(parts[dir])),
			ByteSize: int64(len(data)),
			Checksum: ComputeChecksum(data),
		})
	}

	// Full overwrite: clear whatever the previous run left behind.
	existing, err := store.List(ctx, spec.Name+"/")
	if err != nil {
		store.Abort(ctx, tempKeys)
		return nil, fmt.Errorf("list existing %s: %w", spec.Name, err)
	}
	staged := make(map[string]bool, len(tempKeys))
	for _, k := range tempKeys {
		staged[k] = true
	}
	for _, key := range existing {
		if staged[key] {
			continue
		}
		if err := store.Delete(ctx, key); err != nil {
			store.Abort(ctx, tempKeys)
			return nil, fmt.Errorf("clear stale object %s: %w", key, err)
		}
	}

	for i, tempKey := range tempKeys {
		if err := store.Promote(ctx, tempKey, finalKeys[i]); err != nil {
			store.Abort(ctx, tempKeys[i:])
			return nil, fmt.Errorf("promote %s: %w", finalKeys[i], err)
		}
	}

	data, err := manifest.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	manifestKey := spec.Name + "/" + ManifestFile
	if err := store.Write(ctx, manifestKey, data); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	log.Info("dataset published",
		"rows", manifest.RowCount,
		"files", len(manifest.Files),
		"uri", store.URI(spec.Name))
	return manifest, nil
}

// groupByPartition buckets rows by their rendered partition directory and
// returns a deterministic (sorted) directory order. Unpartitioned datasets
// produce the single empty directory.
func groupByPartition[T Partitioned](spec DatasetSpec, rows []T) (map[string][]T, []string) {
	parts := make(map[string][]T)
	for _, row := range rows {
		dir := partitionDir(spec.PartitionBy, row.PartitionValues())
		parts[dir] = append(parts[dir], row)
	}
	if len(parts) == 0 {
		// An empty input still publishes an empty dataset.
		parts[""] = nil
	}

	order := make([]string, 0, len(parts))
	for dir := range parts {
		order = append(order, dir)
	}
	sort.Strings(order)
	return parts, order
}

// partitionDir renders hive-style partition path segments, e.g.
// "year=2018/month=11". Missing values render as the hive null partition.
func partitionDir(columns, values []string) string {
	if len(columns) == 0 {
		return ""
	}
	segs := make([]string, len(columns))
	for i, col := range columns {
		val := ""
		if i < len(values) {
			val = values[i]
		}
		if val == "" {
			val = HiveDefaultPartition
		} else {
			val = url.PathEscape(val)
		}
		segs[i] = col + "=" + val
	}
	return strings.Join(segs, "/")
}

func partitionFileKey(dataset, dir string) string {
	if dir == "" {
		return dataset + "/part-00000.parquet"
	}
	return dataset + "/" + dir + "/part-00000.parquet"
}

// encodeParquet renders rows into a single in-memory parquet file.
func encodeParquet[T any](rows []T, codec compress.Codec) ([]byte, error) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[T](&buf, parquet.Compression(codec))
	if len(rows) > 0 {
		if _, err := w.Write(rows); err != nil {
			return nil, fmt.Errorf("write rows: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}
	return buf.Bytes(), nil
}

func codecFor(name string) (compress.Codec, error) {
	switch name {
	case "", "snappy":
		return &parquet.Snappy, nil
	case "zstd":
		return &parquet.Zstd, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "none", "uncompressed":
		return &parquet.Uncompressed, nil
	default:
		return nil, fmt.Errorf("unknown compression codec: %s", name)
	}
}
