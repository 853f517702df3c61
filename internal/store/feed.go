package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/joescharf/issueboard/internal/models"
)

var errStoreClosed = errors.New("store closed")

// snapshot is one full read of the collection. seq increases with every read,
// so a subscriber can discard snapshots older than the one it already has.
type snapshot struct {
	seq    uint64
	issues []*models.Issue
}

// watcher reports commits made outside this store. It calls ready once it is
// observing, then changed after every commit, until stop is closed.
type watcher func(stop <-chan struct{}, ready func(), changed func())

// feed fans full-collection snapshots out to subscribers. Local writes call
// publish directly; writes from other processes are reported by the watcher,
// which runs only while someone is subscribed.
type feed struct {
	list  func(ctx context.Context) ([]*models.Issue, error)
	watch watcher

	loadMu sync.Mutex
	seq    uint64

	// publishMu makes publish the single producer for every subscription channel.
	publishMu sync.Mutex

	mu        sync.Mutex
	nextID    int
	subs      map[int]*subscription
	watching  bool
	closed    bool
	stop      chan struct{}
	watchDone chan struct{}
}

type subscription struct {
	fn   func([]*models.Issue)
	ch   chan snapshot
	done chan struct{}
	once sync.Once
	last uint64
}

func newFeed(list func(context.Context) ([]*models.Issue, error), watch watcher) *feed {
	return &feed{
		list:  list,
		watch: watch,
		subs:  make(map[int]*subscription),
		stop:  make(chan struct{}),
	}
}

func (f *feed) load(ctx context.Context) (snapshot, error) {
	f.loadMu.Lock()
	defer f.loadMu.Unlock()
	issues, err := f.list(ctx)
	if err != nil {
		return snapshot{}, err
	}
	f.seq++
	return snapshot{seq: f.seq, issues: issues}, nil
}

// subscribe delivers the current collection to fn before returning, then
// delivers every later snapshot from a dedicated goroutine. If fn falls
// behind, intermediate snapshots are skipped and only the newest is delivered.
func (f *feed) subscribe(fn func([]*models.Issue)) (func(), error) {
	sub := &subscription{
		fn:   fn,
		ch:   make(chan snapshot, 1),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, errStoreClosed
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	f.startWatcherLocked()
	f.mu.Unlock()

	initial, err := f.load(context.Background())
	if err != nil {
		f.remove(id)
		return nil, err
	}
	sub.last = initial.seq
	fn(cloneIssues(initial.issues))

	go sub.run()

	return func() { f.remove(id) }, nil
}

func (f *feed) remove(id int) {
	f.mu.Lock()
	sub, ok := f.subs[id]
	delete(f.subs, id)
	f.mu.Unlock()
	if ok {
		sub.stop()
	}
}

// publish reads the collection once and offers it to every subscriber.
func (f *feed) publish(ctx context.Context) {
	f.publishMu.Lock()
	defer f.publishMu.Unlock()

	f.mu.Lock()
	subs := make([]*subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	snap, err := f.load(context.WithoutCancel(ctx))
	if err != nil {
		slog.Warn("load snapshot for subscribers", "error", err)
		return
	}
	for _, sub := range subs {
		sub.offer(snap)
	}
}

// startWatcherLocked returns once the watcher is observing, so no commit can
// fall between it and the first snapshot unnoticed.
func (f *feed) startWatcherLocked() {
	if f.watching || f.watch == nil {
		return
	}
	f.watching = true
	f.watchDone = make(chan struct{})

	readyCh := make(chan struct{})
	var once sync.Once
	ready := func() { once.Do(func() { close(readyCh) }) }
	changed := func() { f.publish(context.Background()) }

	go func() {
		defer close(f.watchDone)
		defer ready()
		f.watch(f.stop, ready, changed)
	}()
	<-readyCh
}

func (f *feed) close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := f.subs
	f.subs = make(map[int]*subscription)
	watching := f.watching
	close(f.stop)
	f.mu.Unlock()

	if watching {
		<-f.watchDone
	}
	for _, sub := range subs {
		sub.stop()
	}
}

// offer replaces any undelivered snapshot with snap. Only publish calls it.
func (s *subscription) offer(snap snapshot) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case snap := <-s.ch:
			if snap.seq <= s.last {
				continue
			}
			s.last = snap.seq
			s.fn(cloneIssues(snap.issues))
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func cloneIssues(issues []*models.Issue) []*models.Issue {
	out := make([]*models.Issue, len(issues))
	for i, issue := range issues {
		c := *issue
		out[i] = &c
	}
	return out
}
