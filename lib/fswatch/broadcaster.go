// Package fswatch watches the served root and fans filesystem changes out to subscribers.
package fswatch

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nrednav/cuid2"
	"github.com/samber/lo"

	"github.com/onkernel/workspace-companion/lib/metrics"
	"github.com/onkernel/workspace-companion/lib/pathguard"
)

var (
	ErrAlreadyStarted = errors.New("watcher already started")
	ErrClosed         = errors.New("watcher closed")
)

type EventKind string

const (
	EventAdd       EventKind = "add"
	EventChange    EventKind = "change"
	EventDelete    EventKind = "delete"
	EventAddDir    EventKind = "addDir"
	EventDeleteDir EventKind = "deleteDir"
)

// Notification is one change under the root. Path is root-relative with forward slashes.
type Notification struct {
	Kind      EventKind `json:"event"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

const subscriptionBuffer = 128

// Subscription receives notifications until it is removed or the broadcaster closes,
// at which point C is closed.
type Subscription struct {
	ID string
	C  <-chan Notification

	ch chan Notification
}

type state int

const (
	stateStopped state = iota
	stateWatching
	stateClosed
)

// Broadcaster owns the fsnotify watcher and the subscriber set.
type Broadcaster struct {
	root string
	log  *slog.Logger

	mu          sync.RWMutex
	state       state
	subscribers map[*Subscription]struct{}

	watcher *fsnotify.Watcher
	done    chan struct{}

	dirMu sync.Mutex
	dirs  map[string]struct{} // watched directories, absolute
	// removed holds directories already reported as deleteDir; inotify reports a
	// deleted directory once from its parent and once from itself.
	removed map[string]struct{}
}

// New returns a stopped broadcaster for root, which must be canonical.
func New(root string, log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{
		root:        root,
		log:         log,
		subscribers: make(map[*Subscription]struct{}),
		dirs:        make(map[string]struct{}),
		removed:     make(map[string]struct{}),
		done:        make(chan struct{}),
	}
}

// Start registers every non-hidden directory under the root and begins forwarding
// events. Files that already exist are not reported.
func (b *Broadcaster) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateWatching:
		return ErrAlreadyStarted
	case stateClosed:
		return ErrClosed
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	b.watcher = w
	if err := b.addRecursive(b.root, nil); err != nil {
		_ = w.Close()
		b.watcher = nil
		return err
	}
	b.state = stateWatching
	go b.loop(w)
	b.dirMu.Lock()
	watched := len(b.dirs)
	b.dirMu.Unlock()
	b.log.Info("file watcher started", "root", b.root, "dirs", watched)
	return nil
}

// Close stops watching and closes every subscription. It is safe to call more than
// once and before Start.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	if b.state == stateClosed {
		b.mu.Unlock()
		return nil
	}
	wasWatching := b.state == stateWatching
	b.state = stateClosed
	w := b.watcher
	subs := lo.Keys(b.subscribers)
	b.subscribers = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}
	metrics.SetFileSubscribers(0)

	var err error
	if w != nil {
		err = w.Close()
	}
	if wasWatching {
		<-b.done
	}
	return err
}

// Subscribe adds a member to the subscriber set. It fails once the broadcaster is closed.
func (b *Broadcaster) Subscribe() (*Subscription, error) {
	ch := make(chan Notification, subscriptionBuffer)
	sub := &Subscription{ID: cuid2.Generate(), C: ch, ch: ch}

	b.mu.Lock()
	if b.state == stateClosed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.subscribers[sub] = struct{}{}
	n := len(b.subscribers)
	b.mu.Unlock()

	metrics.SetFileSubscribers(n)
	return sub, nil
}

// Unsubscribe removes sub and closes its channel. Unknown or already removed
// subscriptions are ignored.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	_, ok := b.subscribers[sub]
	if ok {
		delete(b.subscribers, sub)
		close(sub.ch)
	}
	n := len(b.subscribers)
	b.mu.Unlock()

	if ok {
		metrics.SetFileSubscribers(n)
	}
}

// Count returns the number of live subscriptions.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish delivers n to every subscriber without blocking; subscribers whose buffer
// is full miss it.
func (b *Broadcaster) Publish(n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub.ch <- n:
		default:
			metrics.RecordDroppedNotification()
			b.log.Warn("dropping file notification for slow subscriber", "subscriber_id", sub.ID, "path", n.Path)
		}
	}
	metrics.RecordFileChange(string(n.Kind))
}

func (b *Broadcaster) loop(w *fsnotify.Watcher) {
	defer close(b.done)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			b.handle(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			b.log.Error("fsnotify error", "err", err)
		}
	}
}

func (b *Broadcaster) handle(ev fsnotify.Event) {
	rel := pathguard.Relative(b.root, ev.Name)
	if rel == "" || hidden(rel) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		b.dirMu.Lock()
		delete(b.removed, ev.Name)
		b.dirMu.Unlock()
		info, err := os.Stat(ev.Name)
		if err != nil {
			// gone again before we looked
			return
		}
		if !info.IsDir() {
			b.Publish(Notification{Kind: EventAdd, Path: rel})
			return
		}
		b.Publish(Notification{Kind: EventAddDir, Path: rel})
		// children created before the watch was registered would otherwise be missed
		if err := b.addRecursive(ev.Name, b.Publish); err != nil {
			b.log.Error("failed to watch new directory", "err", err, "path", rel)
		}
	case ev.Has(fsnotify.Write):
		b.Publish(Notification{Kind: EventChange, Path: rel})
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		wasDir, seen := b.forgetDir(ev.Name)
		switch {
		case seen:
		case wasDir:
			b.Publish(Notification{Kind: EventDeleteDir, Path: rel})
		default:
			b.Publish(Notification{Kind: EventDelete, Path: rel})
		}
	}
}

// addRecursive watches dir and every non-hidden directory below it. When emit is
// non-nil, entries found below dir are reported as additions.
func (b *Broadcaster) addRecursive(dir string, emit func(Notification)) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		rel := pathguard.Relative(b.root, p)
		if rel != "" && hidden(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if emit != nil {
				emit(Notification{Kind: EventAdd, Path: rel})
			}
			return nil
		}
		if err := b.watcher.Add(p); err != nil {
			return err
		}
		b.trackDir(p)
		if emit != nil && p != dir {
			emit(Notification{Kind: EventAddDir, Path: rel})
		}
		return nil
	})
}

func (b *Broadcaster) trackDir(p string) {
	b.dirMu.Lock()
	b.dirs[p] = struct{}{}
	b.dirMu.Unlock()
}

// forgetDir drops p and everything beneath it from the tracked directories. wasDir
// reports whether p was a tracked directory; seen reports that its removal was
// already handled.
func (b *Broadcaster) forgetDir(p string) (wasDir, seen bool) {
	b.dirMu.Lock()
	defer b.dirMu.Unlock()
	if _, ok := b.removed[p]; ok {
		delete(b.removed, p)
		return false, true
	}
	if _, ok := b.dirs[p]; !ok {
		return false, false
	}
	for d := range b.dirs {
		if pathguard.Within(p, d) {
			delete(b.dirs, d)
		}
	}
	b.removed[p] = struct{}{}
	return true, false
}

func hidden(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
