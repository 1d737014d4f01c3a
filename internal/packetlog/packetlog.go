// Package packetlog journals every inbound synchronization packet to an
// on-disk, time-bucketed log for postmortem debugging. Price tick runs and
// specification payloads are compressed because they dominate the stream but
// carry little forensic value.
package packetlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/agiliumtrade/metaapi-go/internal/packet"
)

// Options configures the packet logger.
type Options struct {
	Enabled                bool
	Root                   string        // log root directory
	FileNumberLimit        int           // most recent buckets kept
	LogFileSizeInHours     int           // bucket width in hours
	CompressPrices         bool          // collapse contiguous price runs
	CompressSpecifications bool          // strip specification payloads
	FlushInterval          time.Duration // queue flush period
}

// DefaultOptions returns the standard logger configuration.
func DefaultOptions() Options {
	return Options{
		Enabled:                true,
		Root:                   "./.metaapi/logs",
		FileNumberLimit:        12,
		LogFileSizeInHours:     4,
		CompressPrices:         true,
		CompressSpecifications: true,
		FlushInterval:          time.Second,
	}
}

// Record is one journal line.
type Record struct {
	Time           time.Time `json:"time"`
	SequenceNumber int64     `json:"sequenceNumber,omitempty"`
	Message        string    `json:"message"`
}

// Logger appends packets to the journal asynchronously.
type Logger struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	queue []queued
	runs  map[string]*priceRun // accountID -> open price run

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type queued struct {
	accountID string
	record    Record
}

// priceRun tracks a run of contiguous price packets for one account.
type priceRun struct {
	first      int64
	last       int64
	lastPacket []byte
	lastTime   time.Time
}

// New creates a packet logger. Call Start before logging.
func New(opts Options, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Root == "" {
		opts.Root = DefaultOptions().Root
	}
	if opts.FileNumberLimit == 0 {
		opts.FileNumberLimit = DefaultOptions().FileNumberLimit
	}
	if opts.LogFileSizeInHours == 0 {
		opts.LogFileSizeInHours = DefaultOptions().LogFileSizeInHours
	}
	if opts.FlushInterval == 0 {
		opts.FlushInterval = DefaultOptions().FlushInterval
	}
	return &Logger{
		opts:   opts,
		logger: logger,
		now:    time.Now,
		runs:   make(map[string]*priceRun),
	}
}

// SetClock overrides the time source. Intended for tests.
func (l *Logger) SetClock(now func() time.Time) {
	l.now = now
}

// Start launches the flush goroutine.
func (l *Logger) Start() {
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.wg.Add(1)
	go l.flushLoop()
}

// Stop terminates the flush goroutine, closes open price runs and flushes
// outstanding records.
func (l *Logger) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
	l.mu.Lock()
	for accountID := range l.runs {
		l.closeRunLocked(accountID)
	}
	l.mu.Unlock()
	l.flush()
}

// LogPacket queues a packet for journaling and returns immediately.
// Status packets are skipped; they arrive constantly and say nothing useful
// after the fact.
func (l *Logger) LogPacket(p *packet.SyncPacket) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch p.Type {
	case packet.TypeStatus:
		return

	case packet.TypeSpecifications:
		if l.opts.CompressSpecifications {
			l.closeRunLocked(p.AccountID)
			l.enqueueLocked(p.AccountID, l.shortSpecificationsLocked(p))
			return
		}

	case packet.TypePrices:
		if seq, ok := p.Seq(); ok && l.opts.CompressPrices {
			run := l.runs[p.AccountID]
			if run != nil && seq == run.last+1 {
				run.last = seq
				run.lastPacket = p.Raw
				run.lastTime = l.now()
				return
			}
			l.closeRunLocked(p.AccountID)
			l.enqueueLocked(p.AccountID, Record{
				Time:           l.now(),
				SequenceNumber: seq,
				Message:        string(p.Raw),
			})
			l.runs[p.AccountID] = &priceRun{first: seq, last: seq}
			return
		}
	}

	l.closeRunLocked(p.AccountID)
	rec := Record{Time: l.now(), Message: string(p.Raw)}
	if seq, ok := p.Seq(); ok {
		rec.SequenceNumber = seq
	}
	l.enqueueLocked(p.AccountID, rec)
}

// ReadLogs returns journal records for an account, in write order, optionally
// bounded by [from, to].
func (l *Logger) ReadLogs(accountID string, from, to *time.Time) ([]Record, error) {
	entries, err := os.ReadDir(l.opts.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log root: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var records []Record
	for _, name := range names {
		path := filepath.Join(l.opts.Root, name, accountID+".log")
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("open log file: %w", err)
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			var rec Record
			if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
				l.logger.Warn("skipping malformed log record", "path", path, "error", err)
				continue
			}
			if from != nil && rec.Time.Before(*from) {
				continue
			}
			if to != nil && rec.Time.After(*to) {
				continue
			}
			records = append(records, rec)
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("scan log file: %w", err)
		}
	}
	return records, nil
}

// shortSpecificationsLocked builds the compressed specifications record.
func (l *Logger) shortSpecificationsLocked(p *packet.SyncPacket) Record {
	short := struct {
		Type           packet.Type `json:"type"`
		SequenceNumber *int64      `json:"sequenceNumber,omitempty"`
	}{Type: p.Type, SequenceNumber: p.SequenceNumber}
	data, _ := json.Marshal(short)

	rec := Record{Time: l.now(), Message: string(data)}
	if seq, ok := p.Seq(); ok {
		rec.SequenceNumber = seq
	}
	return rec
}

// closeRunLocked finishes an open price run: the last packet of a multi-packet
// run is written verbatim followed by a terminator naming the range.
func (l *Logger) closeRunLocked(accountID string) {
	run := l.runs[accountID]
	if run == nil {
		return
	}
	delete(l.runs, accountID)
	if run.last == run.first {
		return
	}
	l.enqueueLocked(accountID, Record{
		Time:           run.lastTime,
		SequenceNumber: run.last,
		Message:        string(run.lastPacket),
	})
	l.enqueueLocked(accountID, Record{
		Time:    run.lastTime,
		Message: fmt.Sprintf("Recorded price packets %d-%d", run.first, run.last),
	})
}

func (l *Logger) enqueueLocked(accountID string, rec Record) {
	l.queue = append(l.queue, queued{accountID: accountID, record: rec})
}

// flushLoop periodically persists queued records.
func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.flush()
		}
	}
}

// flush writes all queued records and applies bucket retention.
func (l *Logger) flush() {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	files := make(map[string]*os.File)
	for _, q := range batch {
		dir := filepath.Join(l.opts.Root, l.bucketName(q.record.Time))
		path := filepath.Join(dir, q.accountID+".log")
		f, ok := files[path]
		if !ok {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				l.logger.Error("failed to create log bucket", "dir", dir, "error", err)
				continue
			}
			var err error
			f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				l.logger.Error("failed to open log file", "path", path, "error", err)
				continue
			}
			files[path] = f
		}
		line, err := json.Marshal(q.record)
		if err != nil {
			l.logger.Error("failed to encode log record", "error", err)
			continue
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			l.logger.Error("failed to write log record", "path", path, "error", err)
		}
	}
	for _, f := range files {
		f.Close()
	}

	l.deleteOldBuckets()
}

// bucketName returns the bucket directory name for t. The suffix is the
// bucket index within the day, not the starting hour.
func (l *Logger) bucketName(t time.Time) string {
	return fmt.Sprintf("%s-%02d", t.Format("2006-01-02"), t.Hour()/l.opts.LogFileSizeInHours)
}

// deleteOldBuckets removes the oldest bucket directories beyond the limit.
func (l *Logger) deleteOldBuckets() {
	entries, err := os.ReadDir(l.opts.Root)
	if err != nil {
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) <= l.opts.FileNumberLimit {
		return
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-l.opts.FileNumberLimit] {
		if err := os.RemoveAll(filepath.Join(l.opts.Root, name)); err != nil {
			l.logger.Warn("failed to delete expired log bucket", "bucket", name, "error", err)
		}
	}
}
