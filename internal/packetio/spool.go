package packetio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/1ureka/radiolink/internal/util"
)

const (
	spoolQueueSize = 1024

	// An outbox file is read once it has not been modified for this long.
	spoolSettle = 50 * time.Millisecond
)

// Spool exchanges packets through two directories. Every regular file that
// appears in outbox is one outbound packet; it is removed once read. Every
// delivered packet becomes a new file in inbox.
//
// Producers should write to a dot-file and rename it into outbox: dot-files
// are ignored, and a rename is seen as a single create event. Files written
// in place are picked up once they have been quiet for spoolSettle.
type Spool struct {
	outbox string
	inbox  string

	watcher *fsnotify.Watcher
	queue   chan string
	seq     atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
}

// OpenSpool creates both directories if needed, queues files already
// waiting in outbox, and starts watching it.
func OpenSpool(outbox, inbox string) (*Spool, error) {
	for _, dir := range []string{outbox, inbox} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create spool directory: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(outbox); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", outbox, err)
	}

	// Queue existing files; os.ReadDir sorts by name.
	entries, err := os.ReadDir(outbox)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to list %s: %w", outbox, err)
	}

	s := &Spool{
		outbox:  outbox,
		inbox:   inbox,
		watcher: watcher,
		queue:   make(chan string, spoolQueueSize+len(entries)),
		done:    make(chan struct{}),
	}
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			s.enqueue(filepath.Join(outbox, e.Name()))
		}
	}

	go s.watch()
	util.LogInfo("spool: reading %s, delivering to %s", outbox, inbox)
	return s, nil
}

func (s *Spool) watch() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			s.enqueue(event.Name)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			util.LogWarning("spool: watcher error: %v", err)
		}
	}
}

func (s *Spool) enqueue(path string) {
	select {
	case s.queue <- path:
	case <-s.done:
	}
}

// ReadPacket returns the contents of the next outbox file and removes it.
// Paths queued twice (create + write) are read once.
func (s *Spool) ReadPacket(ctx context.Context) ([]byte, error) {
	for {
		var path string
		select {
		case path = <-s.queue:
		case <-s.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		info, err := s.settle(ctx, path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() || info.Size() == 0 {
			continue
		}

		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove %s: %w", path, err)
		}

		util.LogDebug("spool: read %s (%d bytes)", filepath.Base(path), len(data))
		return data, nil
	}
}

// settle waits until path has gone spoolSettle without a modification and
// returns its final FileInfo.
func (s *Spool) settle(ctx context.Context, path string) (fs.FileInfo, error) {
	for {
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}

		wait := spoolSettle - time.Since(info.ModTime())
		if wait <= 0 {
			return info, nil
		}
		wait = min(wait, spoolSettle)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.done:
			timer.Stop()
			return nil, ErrClosed
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

// WritePacket stores packet in inbox under a unique, time-ordered name. The
// file is written under a dot-name and renamed, so readers never see a
// partial packet.
func (s *Spool) WritePacket(packet []byte) error {
	name := fmt.Sprintf("%s-%06d.pkt", time.Now().UTC().Format("20060102T150405.000"), s.seq.Add(1))
	tmp := filepath.Join(s.inbox, "."+name)

	if err := os.WriteFile(tmp, packet, 0o644); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.inbox, name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish packet: %w", err)
	}
	return nil
}

// Close stops the watcher. Pending ReadPacket calls return ErrClosed.
func (s *Spool) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.watcher.Close()
	})
	return err
}
