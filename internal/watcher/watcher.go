// Package watcher reports session files that changed and then stayed quiet
// for a debounce interval, so they can be rescored.
package watcher

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/blake2b"
)

// Event describes a session file whose content settled.
type Event struct {
	Path      string
	Hash      [32]byte
	Size      int64
	Timestamp time.Time
}

// Watcher monitors session files and the directories holding them.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	paths     []string
	interval  time.Duration

	// files named explicitly; directory entries are accepted when empty
	only map[string]bool

	// path -> last modification time, pending files only
	state   map[string]time.Time
	stateMu sync.RWMutex

	// path -> hash of the last emitted event
	seen map[string][32]byte

	events chan Event
	errors chan error

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher over paths. A path may be a file or a directory;
// directories are watched one level deep. A file is reported once it has
// been unchanged for debounce.
func New(paths []string, debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		paths:     paths,
		interval:  debounce,
		only:      make(map[string]bool),
		state:     make(map[string]time.Time),
		seen:      make(map[string][32]byte),
		events:    make(chan Event, 100),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}, nil
}

// Events returns the channel of settled files.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start begins watching. Files that already exist are reported after the
// first debounce interval.
func (w *Watcher) Start() error {
	var hasDir bool
	for _, path := range w.paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return err
		}

		if info.IsDir() {
			hasDir = true
			if err := w.fsWatcher.Add(absPath); err != nil {
				return err
			}

			entries, err := os.ReadDir(absPath)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				if !entry.IsDir() {
					w.trackFile(filepath.Join(absPath, entry.Name()))
				}
			}
			continue
		}

		// Editors replace files by rename, so the parent directory is
		// watched instead of the file itself.
		w.only[absPath] = true
		if err := w.fsWatcher.Add(filepath.Dir(absPath)); err != nil {
			return err
		}
		w.trackFile(absPath)
	}
	if hasDir {
		w.only = nil
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return nil
}

// Stop shuts the watcher down and closes both channels.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.fsWatcher.Close()
}

func (w *Watcher) accepts(path string) bool {
	return w.only == nil || w.only[path]
}

func (w *Watcher) trackFile(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	w.stateMu.Lock()
	w.state[path] = info.ModTime()
	w.stateMu.Unlock()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !w.accepts(event.Name) {
				continue
			}

			info, err := os.Stat(event.Name)
			if err != nil || info.IsDir() {
				continue
			}

			w.stateMu.Lock()
			w.state[event.Name] = time.Now()
			w.stateMu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.sendErr(err)
		}
	}
}

func (w *Watcher) sendErr(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

// tick returns how often pending files are checked.
func (w *Watcher) tick() time.Duration {
	t := w.interval / 2
	if t <= 0 {
		t = 10 * time.Millisecond
	}
	if t > time.Second {
		t = time.Second
	}
	return t
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.tick())
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			w.checkStableFiles(now)
		}
	}
}

type stableFile struct {
	path    string
	lastMod time.Time
}

// checkStableFiles emits events for files unchanged since the debounce
// threshold. The state lock is not held while hashing.
func (w *Watcher) checkStableFiles(now time.Time) {
	threshold := now.Add(-w.interval)

	var stable []stableFile
	w.stateMu.RLock()
	for path, lastMod := range w.state {
		if !lastMod.After(threshold) {
			stable = append(stable, stableFile{path: path, lastMod: lastMod})
		}
	}
	w.stateMu.RUnlock()

	if len(stable) == 0 {
		return
	}

	type hashResult struct {
		stableFile
		hash [32]byte
		size int64
		err  error
	}
	results := make([]hashResult, len(stable))
	for i, sf := range stable {
		hash, size, err := HashFile(sf.path)
		results[i] = hashResult{stableFile: sf, hash: hash, size: size, err: err}
	}

	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	for _, r := range results {
		if r.err != nil {
			delete(w.state, r.path)
			w.sendErr(r.err)
			continue
		}

		current, exists := w.state[r.path]
		if !exists || !current.Equal(r.lastMod) {
			// Modified while hashing; wait for it to settle again.
			continue
		}

		if prev, ok := w.seen[r.path]; ok && prev == r.hash {
			delete(w.state, r.path)
			continue
		}

		event := Event{
			Path:      r.path,
			Hash:      r.hash,
			Size:      r.size,
			Timestamp: now,
		}

		select {
		case w.events <- event:
			w.seen[r.path] = r.hash
			delete(w.state, r.path)
		default:
			// Channel full, retry on the next tick.
		}
	}
}

// HashFile streams a file through BLAKE2b-256.
func HashFile(path string) ([32]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, 0, err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return [32]byte{}, 0, err
	}
	size, err := io.Copy(h, f)
	if err != nil {
		return [32]byte{}, 0, err
	}

	var hash [32]byte
	copy(hash[:], h.Sum(nil))
	return hash, size, nil
}

// WatchedPaths returns the configured paths.
func (w *Watcher) WatchedPaths() []string {
	return w.paths
}

// TrackedFiles returns the number of files waiting to settle.
func (w *Watcher) TrackedFiles() int {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return len(w.state)
}
