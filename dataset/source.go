package dataset

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/YuminosukeSato/churn/pkg/errors"
	"github.com/YuminosukeSato/churn/pkg/log"
	"github.com/gocarina/gocsv"
)

// Source fetches the full raw record set in one call.
type Source interface {
	FetchAll(ctx context.Context) ([]RawRecord, error)
}

// CSVSource reads raw records from a delimited file with a header row.
type CSVSource struct {
	Path string
}

// FetchAll implements Source.
func (s *CSVSource) FetchAll(ctx context.Context) ([]RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", s.Path)
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", s.Path)
	}
	log.GetLoggerWithName("dataset").Debug("read csv",
		log.SourceKey, "csv",
		"path", s.Path,
		log.SamplesKey, len(records),
	)
	return records, nil
}

// ReadCSV parses delimited rows keyed by the header row.
func ReadCSV(r io.Reader) ([]RawRecord, error) {
	rows, err := gocsv.CSVToMaps(r)
	if err != nil {
		return nil, err
	}
	records := make([]RawRecord, len(rows))
	for i, row := range rows {
		records[i] = RawRecord(row)
	}
	return records, nil
}

// WriteCSV writes records with a header row. Known fields come first in
// RawFields order, then any extra keys sorted by name.
func WriteCSV(w io.Writer, records []RawRecord) error {
	header := headerFor(records)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for _, rec := range records {
		for i, h := range header {
			row[i] = rec[h]
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func headerFor(records []RawRecord) []string {
	seen := make(map[string]bool)
	for _, rec := range records {
		for k := range rec {
			seen[k] = true
		}
	}
	header := make([]string, 0, len(seen))
	for _, f := range RawFields {
		if seen[f] {
			header = append(header, f)
			delete(seen, f)
		}
	}
	extra := make([]string, 0, len(seen))
	for k := range seen {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return append(header, extra...)
}

// CachedSource prefers a cached CSV snapshot and falls back to Primary,
// writing the cache after a successful primary fetch.
type CachedSource struct {
	Primary   Source
	CachePath string
	UseCache  bool
}

// FetchAll implements Source.
func (s *CachedSource) FetchAll(ctx context.Context) ([]RawRecord, error) {
	logger := log.GetLoggerWithName("dataset").With("cache", s.CachePath)

	if s.UseCache && s.CachePath != "" {
		if _, err := os.Stat(s.CachePath); err == nil {
			logger.Info("using cached snapshot", log.SourceKey, "cache")
			return (&CSVSource{Path: s.CachePath}).FetchAll(ctx)
		}
	}
	if s.Primary == nil {
		return nil, errors.NewConfigurationError("source", "no cache file and no primary source", s.CachePath)
	}

	records, err := s.Primary.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	if s.CachePath == "" {
		return records, nil
	}
	if err := WriteCSVFile(s.CachePath, records); err != nil {
		return nil, err
	}
	logger.Info("wrote cached snapshot", log.SamplesKey, len(records))
	return records, nil
}

// WriteCSVFile writes records to path through a temp file, so a failed
// write never leaves a truncated snapshot behind.
func WriteCSVFile(path string, records []RawRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create cache dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".churn-cache-*.csv")
	if err != nil {
		return errors.Wrap(err, "create cache file")
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, records); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write cache file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close cache file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "install cache file")
}
