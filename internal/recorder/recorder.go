// Package recorder captures raw generator traffic to CSV files.
package recorder

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shaunagostinho/mhs5200/internal/mhs5200"
)

// Recorder is an mhs5200.Tracer that appends one CSV row per transfer and
// starts a new file every MaxRows rows.
type Recorder struct {
	mu      sync.Mutex
	dir     string
	maxRows int
	enabled bool
	log     logrus.FieldLogger
	now     func() time.Time

	file   *os.File
	writer *csv.Writer
	rows   int
	seq    int
}

// Config holds recorder configuration.
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	MaxRows int    `yaml:"max_rows,omitempty" json:"maxRows,omitempty"`
}

const (
	defaultDir     = "/var/log/mhs5200"
	maxRowsPerFile = 100_000
)

var csvHeader = []string{"timestamp", "direction", "length", "hex", "text"}

// New creates a Recorder. Files are created lazily on the first row.
func New(cfg Config, log logrus.FieldLogger) *Recorder {
	if cfg.Path == "" {
		cfg.Path = defaultDir
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = maxRowsPerFile
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Recorder{
		dir:     cfg.Path,
		maxRows: cfg.MaxRows,
		enabled: cfg.Enabled,
		log:     log.WithField("component", "recorder"),
		now:     time.Now,
	}
}

// SetEnabled toggles recording at runtime. Disabling closes the open file.
func (r *Recorder) SetEnabled(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = on
	if !on {
		r.closeFile()
	}
}

// IsEnabled returns whether recording is active.
func (r *Recorder) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Trace implements mhs5200.Tracer. Failures are logged, never returned,
// so a full disk does not interrupt the device session.
func (r *Recorder) Trace(dir mhs5200.Direction, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return
	}

	now := r.now()
	if r.writer == nil || r.rows >= r.maxRows {
		if err := r.rotateFile(now); err != nil {
			r.log.Errorf("rotate failed: %v", err)
			return
		}
	}

	row := []string{
		now.Format(time.RFC3339Nano),
		dir.String(),
		strconv.Itoa(len(data)),
		hex.EncodeToString(data),
		mhs5200.Dump(data),
	}
	if err := r.writer.Write(row); err != nil {
		r.log.Errorf("write failed: %v", err)
		return
	}
	r.writer.Flush()
	r.rows++
}

// Close flushes and closes the current file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeFile()
}

func (r *Recorder) rotateFile(now time.Time) error {
	r.closeFile()

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", r.dir, err)
	}

	r.seq++
	name := fmt.Sprintf("mhs5200_%s_%03d.csv", now.Format("2006-01-02_150405"), r.seq)
	path := filepath.Join(r.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	r.file = f
	r.writer = csv.NewWriter(f)
	r.rows = 0

	if err := r.writer.Write(csvHeader); err != nil {
		return err
	}
	r.writer.Flush()

	r.log.Infof("opened %s", path)
	return r.writer.Error()
}

func (r *Recorder) closeFile() error {
	var err error
	if r.writer != nil {
		r.writer.Flush()
		err = r.writer.Error()
		r.writer = nil
	}
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
		r.file = nil
	}
	return err
}
