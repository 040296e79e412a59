// Package export writes harvest results to timestamped files in the output
// directory: the full dataset as JSON and JSONL, an instruction-tuning
// variant, and a run statistics summary.
package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/arvinsingh/fictech-harvester/internal/model"
)

// minTrainingLength filters entries whose description is too short to make
// a useful training example.
const minTrainingLength = 100

const timestampLayout = "20060102_150405"

// Exporter writes dataset files into one directory.
type Exporter struct {
	dir string
	now func() time.Time
}

// Option customizes an Exporter.
type Option func(*Exporter)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// New creates an Exporter targeting dir.
func New(dir string, opts ...Option) *Exporter {
	e := &Exporter{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// All writes every output format and returns the created file paths.
func (e *Exporter) All(entries []model.DatasetEntry, stats *model.RunStats) ([]string, error) {
	stamp := e.now().UTC().Format(timestampLayout)

	writers := []func() (string, error){
		func() (string, error) { return e.writeJSON(entries, stamp) },
		func() (string, error) { return e.writeJSONL(entries, stamp) },
		func() (string, error) { return e.writeTraining(entries, stamp) },
		func() (string, error) { return e.writeStats(stats, stamp) },
	}

	paths := make([]string, 0, len(writers))
	for _, w := range writers {
		path, err := w()
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	zap.L().Info("dataset exported",
		zap.Int("entries", len(entries)),
		zap.Strings("files", paths),
	)
	return paths, nil
}

// writeJSON writes the entries as one pretty-printed JSON array.
func (e *Exporter) writeJSON(entries []model.DatasetEntry, stamp string) (string, error) {
	if entries == nil {
		entries = []model.DatasetEntry{}
	}
	return e.writeFile("fictech_data_"+stamp+".json", func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	})
}

// writeJSONL writes one entry per line.
func (e *Exporter) writeJSONL(entries []model.DatasetEntry, stamp string) (string, error) {
	return e.writeFile("fictech_data_"+stamp+".jsonl", func(f *os.File) error {
		enc := json.NewEncoder(f)
		for _, entry := range entries {
			if err := enc.Encode(entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeTraining writes instruction-tuning examples, skipping entries with
// descriptions under minTrainingLength characters.
func (e *Exporter) writeTraining(entries []model.DatasetEntry, stamp string) (string, error) {
	return e.writeFile("training_data_"+stamp+".jsonl", func(f *os.File) error {
		enc := json.NewEncoder(f)
		for _, entry := range entries {
			if len(entry.Description) < minTrainingLength {
				continue
			}
			if err := enc.Encode(entry.TrainingExample()); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeStats writes the run statistics summary.
func (e *Exporter) writeStats(stats *model.RunStats, stamp string) (string, error) {
	return e.writeFile("harvest_stats_"+stamp+".json", func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	})
}

func (e *Exporter) writeFile(name string, write func(*os.File) error) (string, error) {
	if err := os.MkdirAll(e.dir, 0o750); err != nil {
		return "", eris.Wrapf(err, "export: create dir %s", e.dir)
	}

	path := filepath.Join(e.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "export: create %s", path)
	}

	if err := write(f); err != nil {
		f.Close()
		return "", eris.Wrapf(err, "export: write %s", path)
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrapf(err, "export: close %s", path)
	}
	return path, nil
}
