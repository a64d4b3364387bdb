package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
)

const (
	dayLayout = "2006-01-02"

	// housekeepingInterval is how often an idle rotator checks for a new day
	// and prunes expired files.
	housekeepingInterval = time.Minute
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("rotator closed")

// Rotator is an io.Writer over one diagnostics file per day, named
// <prefix>_<YYYY-MM-DD>.log. The day is checked on every write, so a card
// read just after midnight lands in the new day's file. Finished days are
// gzipped in the background.
type Rotator struct {
	dir    string
	prefix string
	clock  func() time.Time
	logger *logrus.Logger

	mu     sync.Mutex
	file   *os.File
	day    string
	closed bool

	compressing sync.WaitGroup
}

// NewRotator creates dir if needed and opens the file for the current day.
// Days follow UTC when useUTC is set, local time otherwise.
func NewRotator(dir, prefix string, useUTC bool, logger *logrus.Logger) (*Rotator, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	clock := time.Now
	if useUTC {
		clock = func() time.Time { return time.Now().UTC() }
	}

	r := &Rotator{
		dir:    dir,
		prefix: prefix,
		clock:  clock,
		logger: logger,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.switchDay(r.today()); err != nil {
		return nil, fmt.Errorf("failed to initialize log file: %w", err)
	}
	return r, nil
}

func (r *Rotator) today() string {
	return r.clock().Format(dayLayout)
}

func (r *Rotator) pathFor(day string) string {
	return filepath.Join(r.dir, r.prefix+"_"+day+".log")
}

// switchDay makes day the current file, queueing the previous one for
// compression. It reports whether a previous file was closed. Callers hold mu.
func (r *Rotator) switchDay(day string) (bool, error) {
	if r.file != nil && r.day == day {
		return false, nil
	}

	path := r.pathFor(day)
	next, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return false, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	prev, prevDay := r.file, r.day
	r.file, r.day = next, day
	r.logger.WithField("file", path).Info("Opened diagnostics file")

	if prev == nil {
		return false, nil
	}
	if err := prev.Close(); err != nil {
		r.logger.WithError(err).WithField("day", prevDay).Warn("Failed to close previous diagnostics file")
	}

	prevPath := r.pathFor(prevDay)
	r.compressing.Add(1)
	go func() {
		defer r.compressing.Done()
		r.compress(prevPath)
	}()
	return true, nil
}

// rollover moves to a new file if the day changed since the last write.
func (r *Rotator) rollover() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	rotated, err := r.switchDay(r.today())
	if err != nil {
		r.logger.WithError(err).Error("Failed to rotate diagnostics file")
		return false
	}
	return rotated
}

// Write appends p to the file for the current day.
func (r *Rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}
	if _, err := r.switchDay(r.today()); err != nil {
		return 0, err
	}
	return r.file.Write(p)
}

// Start rolls idle files over at day boundaries and, when maxDays is
// positive, prunes expired days. It returns when ctx is done.
func (r *Rotator) Start(ctx context.Context, maxDays int) {
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.rollover() || maxDays <= 0 {
				continue
			}
			if _, err := r.Prune(maxDays); err != nil {
				r.logger.WithError(err).Warn("Failed to prune diagnostics files")
			}
		}
	}
}

// compress gzips path into path.gz and removes the original. The archive is
// written under a temporary name so a failed run never leaves a truncated
// .gz behind.
func (r *Rotator) compress(path string) {
	log := r.logger.WithField("file", path)
	if err := gzipFile(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("Nothing to compress")
			return
		}
		log.WithError(err).Error("Failed to compress diagnostics file")
		return
	}
	log.Debug("Compressed diagnostics file")
}

func gzipFile(path string) (err error) {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	target := path + ".gz"
	tmp := target + ".tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dst.Close()
			os.Remove(tmp)
		}
	}()

	zw := gzip.NewWriter(dst)
	zw.Name = filepath.Base(path)
	if info, statErr := src.Stat(); statErr == nil {
		zw.ModTime = info.ModTime()
	}
	if _, err = io.Copy(zw, src); err != nil {
		return err
	}
	if err = zw.Close(); err != nil {
		return err
	}
	if err = dst.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp, target); err != nil {
		return err
	}
	return os.Remove(path)
}

// Close closes the current file and waits for background compression.
// Further writes fail with ErrClosed.
func (r *Rotator) Close() error {
	r.mu.Lock()
	var err error
	if !r.closed {
		r.closed = true
		err = r.file.Close()
		r.file = nil
	}
	r.mu.Unlock()

	r.compressing.Wait()
	return err
}

// Current returns the path of the file being written.
func (r *Rotator) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pathFor(r.day)
}

// Files lists this rotator's day files, plain and compressed, oldest first.
func (r *Rotator) Files() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(r.dir, r.prefix+"_*.log*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}

	var days []string
	for _, f := range files {
		if _, ok := r.dayOf(f); ok {
			days = append(days, f)
		}
	}
	sort.Strings(days)
	return days, nil
}

// dayOf parses the day out of a file name written by this rotator.
func (r *Rotator) dayOf(path string) (time.Time, bool) {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".gz")
	name = strings.TrimSuffix(name, ".log")
	day, ok := strings.CutPrefix(name, r.prefix+"_")
	if !ok {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(dayLayout, day, r.clock().Location())
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Prune removes day files more than maxDays before today, judged by the day
// in the file name. The current file is never removed. It returns the number
// of files removed.
func (r *Rotator) Prune(maxDays int) (int, error) {
	if maxDays <= 0 {
		return 0, fmt.Errorf("maxDays must be positive")
	}

	files, err := r.Files()
	if err != nil {
		return 0, err
	}

	now := r.clock()
	cutoff := time.Date(now.Year(), now.Month(), now.Day()-maxDays, 0, 0, 0, 0, now.Location())
	current := r.Current()

	removed := 0
	for _, f := range files {
		day, _ := r.dayOf(f)
		if f == current || !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(f); err != nil {
			r.logger.WithError(err).WithField("file", f).Warn("Failed to remove expired diagnostics file")
			continue
		}
		removed++
	}

	if removed > 0 {
		r.logger.WithField("count", removed).Info("Pruned expired diagnostics files")
	}
	return removed, nil
}
