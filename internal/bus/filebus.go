package bus

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/arbiter/internal/clock"
	"github.com/Iron-Ham/arbiter/internal/errors"
	"github.com/Iron-Ham/arbiter/internal/logging"
	"github.com/Iron-Ham/arbiter/internal/message"
)

const (
	logFileName   = "bus.log"
	rotatedSuffix = ".1"
	readChunk     = 32 << 10
)

// FileBus is a Bus backed by per-resource append-only logs in a directory
// shared by every participating process.
type FileBus struct {
	dir          string
	codec        message.Codec
	pollInterval time.Duration
	maxLogBytes  int64
	logger       *logging.Logger
	clock        clock.Clock

	mu     sync.Mutex
	subs   map[*fileSubscription]struct{}
	closed bool
}

// NewFileBus returns a FileBus rooted at dir, creating it if needed.
func NewFileBus(dir string, opts ...Option) (*FileBus, error) {
	if dir == "" {
		return nil, errors.NewBusError("open", errors.New("bus directory is required"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewBusError("open", err)
	}
	b := &FileBus{
		dir:          dir,
		codec:        message.JSONCodec{},
		pollInterval: DefaultPollInterval,
		maxLogBytes:  DefaultMaxLogBytes,
		logger:       logging.NopLogger(),
		clock:        clock.Real(),
		subs:         make(map[*fileSubscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Dir returns the bus root directory.
func (b *FileBus) Dir() string { return b.dir }

// Codec returns the record encoding in use.
func (b *FileBus) Codec() message.Codec { return b.codec }

// ResourceDir returns the directory holding the log of resourceID.
func (b *FileBus) ResourceDir(resourceID string) string {
	return filepath.Join(b.dir, escapeResource(resourceID))
}

// escapeResource maps an identifier to a single path element.
func escapeResource(id string) string {
	switch id {
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}
	return url.PathEscape(id)
}

// Publish appends m to its resource log.
func (b *FileBus) Publish(ctx context.Context, m message.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return errors.NewBusError("publish", err).WithResource(m.ResourceIdentifier)
	}
	data, err := b.codec.Marshal(m)
	if err != nil {
		return errors.NewBusError("publish", err).WithResource(m.ResourceIdentifier)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.NewBusError("publish", errors.New("bus closed")).WithResource(m.ResourceIdentifier)
	}

	dir := b.ResourceDir(m.ResourceIdentifier)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewBusError("publish", err).WithResource(m.ResourceIdentifier)
	}
	if err := b.appendLocked(dir, data); err != nil {
		return errors.NewBusError("publish", err).WithResource(m.ResourceIdentifier)
	}
	return nil
}

// appendLocked writes one record under the directory's flock, rotating the
// log first when the record would push it past the size limit.
func (b *FileBus) appendLocked(dir string, data []byte) error {
	lock := newFileLock(dir)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	path := filepath.Join(dir, logFileName)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 && info.Size()+int64(len(data)) > b.maxLogBytes {
		if err := os.Rename(path, path+rotatedSuffix); err != nil {
			return errors.Wrapf(err, "rotate %s", path)
		}
		b.logger.Debug("rotated bus log", "path", path, "size", info.Size())
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open %s for append", path)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("append to log: %w", err)
	}
	return f.Close()
}

// History decodes the retained log of resourceID, oldest first. Records
// that fail to decode are skipped.
func (b *FileBus) History(resourceID string) ([]message.Message, error) {
	path := filepath.Join(b.ResourceDir(resourceID), logFileName)
	var out []message.Message
	for _, p := range []string{path + rotatedSuffix, path} {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.NewBusError("history", err).WithResource(resourceID)
		}
		for len(data) > 0 {
			m, rest, err := b.codec.Unmarshal(data)
			if errors.Is(err, message.ErrIncomplete) {
				break
			}
			data = rest
			if err == nil {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// Subscribe starts tailing the log of resourceID from its current end.
func (b *FileBus) Subscribe(resourceID string, h Handler) (Subscription, error) {
	if resourceID == "" {
		return nil, errors.NewBusError("subscribe", errors.New("resource identifier is required"))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.NewBusError("subscribe", errors.New("bus closed")).WithResource(resourceID)
	}

	dir := b.ResourceDir(resourceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewBusError("subscribe", err).WithResource(resourceID)
	}
	s := &fileSubscription{
		bus:        b,
		resourceID: resourceID,
		path:       filepath.Join(dir, logFileName),
		handler:    h,
		logger:     b.logger.With("resource", resourceID),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	if err := s.open(dir); err != nil {
		return nil, errors.NewBusError("subscribe", err).WithResource(resourceID)
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err = watcher.Add(dir); err != nil {
			_ = watcher.Close()
			watcher = nil
		}
	}
	if err != nil {
		s.logger.Warn("filesystem notifications unavailable, polling only", "error", err)
	}
	s.watcher = watcher
	s.ticker = b.clock.NewTicker(b.pollInterval)

	b.subs[s] = struct{}{}
	go s.run()
	return s, nil
}

// Close cancels every subscription and rejects further use.
func (b *FileBus) Close() error {
	b.mu.Lock()
	b.closed = true
	subs := make([]*fileSubscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
	return nil
}

func (b *FileBus) forget(s *fileSubscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// fileSubscription tails one resource log. Only the run goroutine touches
// file, offset and buf once it has started.
type fileSubscription struct {
	bus        *FileBus
	resourceID string
	path       string
	handler    Handler
	logger     *logging.Logger

	file   *os.File
	offset int64
	buf    []byte

	watcher *fsnotify.Watcher
	ticker  clock.Ticker

	stopped atomic.Bool
	once    sync.Once
	stopCh  chan struct{}
	done    chan struct{}
}

// open positions the subscription at the current end of the log. The
// flock keeps a concurrent rotation from swapping the file in between.
func (s *fileSubscription) open(dir string) error {
	lock := newFileLock(dir)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open %s", s.path)
	}
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("seek log: %w", err)
	}
	s.file = f
	s.offset = end
	return nil
}

// Cancel stops the subscription and waits for an in-progress delivery to
// return. It must not be called from the subscription's own handler.
func (s *fileSubscription) Cancel() {
	s.once.Do(func() {
		s.stopped.Store(true)
		close(s.stopCh)
	})
	<-s.done
}

func (s *fileSubscription) run() {
	defer close(s.done)
	defer s.bus.forget(s)
	defer s.ticker.Stop()
	defer func() { _ = s.file.Close() }()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if s.watcher != nil {
		defer func() { _ = s.watcher.Close() }()
		events = s.watcher.Events
		errs = s.watcher.Errors
	}

	for {
		select {
		case <-s.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Name == s.path || ev.Name == s.path+rotatedSuffix {
				s.drain()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("bus watcher error", "error", err)
		case <-s.ticker.C():
			s.drain()
		}
	}
}

// drain delivers every complete record appended since the last read and
// follows the log across rotation.
func (s *fileSubscription) drain() {
	for !s.stopped.Load() {
		s.readAvailable()

		cur, err := os.Stat(s.path)
		if err != nil {
			// Between rename and the next append there is no current log.
			return
		}
		mine, err := s.file.Stat()
		if err != nil {
			s.logger.Warn("stat bus log", "error", err)
			return
		}
		if os.SameFile(cur, mine) {
			if cur.Size() < s.offset {
				s.logger.Warn("bus log truncated, restarting from the beginning", "offset", s.offset, "size", cur.Size())
				if _, err := s.file.Seek(0, io.SeekStart); err == nil {
					s.offset = 0
					s.buf = nil
					continue
				}
			}
			return
		}

		// The log was rotated. Nothing appends to the old file any more,
		// so one more read reaches its true end.
		s.readAvailable()
		next, err := os.Open(s.path)
		if err != nil {
			return
		}
		if len(s.buf) > 0 {
			s.logger.Warn("discarding partial record at end of rotated log", "bytes", len(s.buf))
		}
		_ = s.file.Close()
		s.file = next
		s.offset = 0
		s.buf = nil
	}
}

func (s *fileSubscription) readAvailable() {
	chunk := make([]byte, readChunk)
	for {
		n, err := s.file.Read(chunk)
		if n > 0 {
			s.offset += int64(n)
			s.buf = append(s.buf, chunk[:n]...)
			s.deliver()
		}
		if err != nil {
			if err != io.EOF {
				s.logger.Warn("read bus log", "error", err)
			}
			return
		}
	}
}

func (s *fileSubscription) deliver() {
	codec := s.bus.codec
	for len(s.buf) > 0 {
		m, rest, err := codec.Unmarshal(s.buf)
		if errors.Is(err, message.ErrIncomplete) {
			s.buf = append([]byte(nil), rest...)
			return
		}
		s.buf = rest
		if err != nil {
			s.logger.Warn("skipping undecodable bus record", "error", err)
			continue
		}
		if m.ResourceIdentifier != s.resourceID {
			continue
		}
		if s.stopped.Load() {
			return
		}
		s.handler(m)
	}
	s.buf = nil
}
