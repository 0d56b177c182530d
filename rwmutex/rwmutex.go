package rwmutex

import "sync"

// Locker is the set of operations shared by RWMutex and sync.RWMutex.
type Locker interface {
	Lock()
	Unlock()
	TryLock() bool
	RLock()
	RUnlock()
	TryRLock() bool
}

var (
	_ Locker = (*RWMutex)(nil)
	_ Locker = (*sync.RWMutex)(nil)
)

// A RWMutex is a reader/writer mutual exclusion lock.
// The lock can be held by an arbitrary number of readers or a single writer.
// Use New to create one; the zero value is not usable.
//
// By default the lock prefers readers: RLock never waits while no writer
// holds the lock, so a continuous stream of readers can keep a blocked Lock
// waiting indefinitely. New(WithWriterPreference()) changes that.
//
// A RWMutex must not be copied after first use. It is not reentrant.
type RWMutex struct {
	gate sync.Mutex
	// general is signalled when the writer leaves; readers wait on it.
	general *sync.Cond
	// drained is signalled when the lock becomes free for a writer.
	drained *sync.Cond

	readers        int
	writer         bool
	waitingWriters int

	preferWriters bool
}

// Option configures a RWMutex.
type Option func(*RWMutex)

// WithWriterPreference makes new readers wait while a writer is blocked in
// Lock. This trades reader throughput for writer progress.
func WithWriterPreference() Option {
	return func(rw *RWMutex) {
		rw.preferWriters = true
	}
}

// New creates *RWMutex in the unlocked state.
func New(opts ...Option) *RWMutex {
	rw := &RWMutex{}
	rw.general = sync.NewCond(&rw.gate)
	rw.drained = sync.NewCond(&rw.gate)
	for _, opt := range opts {
		opt(rw)
	}
	return rw
}

// State is a snapshot of the lock bookkeeping.
type State struct {
	Readers        int
	Writer         bool
	WaitingWriters int
}

// State returns the current bookkeeping. The result may be stale by the time
// the caller looks at it.
func (rw *RWMutex) State() State {
	rw.gate.Lock()
	defer rw.gate.Unlock()

	return State{
		Readers:        rw.readers,
		Writer:         rw.writer,
		WaitingWriters: rw.waitingWriters,
	}
}

// Lock locks rw for writing.
// If the lock is already locked for reading or writing,
// Lock blocks until the lock is available.
func (rw *RWMutex) Lock() {
	rw.gate.Lock()
	defer rw.gate.Unlock()

	rw.waitingWriters++
	for rw.readers > 0 || rw.writer {
		rw.drained.Wait()
	}
	rw.waitingWriters--
	rw.writer = true
}

// TryLock tries to lock rw for writing and reports whether it succeeded.
func (rw *RWMutex) TryLock() bool {
	rw.gate.Lock()
	defer rw.gate.Unlock()

	if rw.readers > 0 || rw.writer {
		return false
	}
	rw.writer = true
	return true
}

// Unlock unlocks rw for writing. It is a run-time error if rw is
// not locked for writing on entry to Unlock.
//
// As with Mutexes, a locked RWMutex is not associated with a particular
// goroutine. One goroutine may RLock (Lock) a RWMutex and then
// arrange for another goroutine to RUnlock (Unlock) it.
func (rw *RWMutex) Unlock() {
	rw.gate.Lock()
	if !rw.writer {
		rw.gate.Unlock()
		panic("rwmutex: Unlock of unlocked RWMutex")
	}
	rw.writer = false
	rw.gate.Unlock()

	// Readers and the next writer race for the lock; nobody is queued.
	rw.general.Broadcast()
	rw.drained.Signal()
}

// RLock locks rw for reading.
//
// It should not be used for recursive read locking when writer preference
// is enabled; a blocked Lock call then excludes new readers.
func (rw *RWMutex) RLock() {
	rw.gate.Lock()
	defer rw.gate.Unlock()

	for rw.writer || rw.writerFirst() {
		rw.general.Wait()
	}
	rw.readers++
}

// TryRLock tries to lock rw for reading and reports whether it succeeded.
// Without writer preference, waiting writers do not make it fail.
func (rw *RWMutex) TryRLock() bool {
	rw.gate.Lock()
	defer rw.gate.Unlock()

	if rw.writer || rw.writerFirst() {
		return false
	}
	rw.readers++
	return true
}

// RUnlock undoes a single RLock call;
// it does not affect other simultaneous readers.
// It is a run-time error if rw is not locked for reading
// on entry to RUnlock.
func (rw *RWMutex) RUnlock() {
	rw.gate.Lock()
	if rw.readers == 0 {
		rw.gate.Unlock()
		panic("rwmutex: RUnlock of unlocked RWMutex")
	}
	rw.readers--
	last := rw.readers == 0
	rw.gate.Unlock()

	if last {
		rw.drained.Signal()
		rw.general.Signal()
	}
}

// RLocker returns a sync.Locker interface that implements
// the Lock and Unlock methods by calling rw.RLock and rw.RUnlock.
func (rw *RWMutex) RLocker() sync.Locker {
	return (*rlocker)(rw)
}

func (rw *RWMutex) writerFirst() bool {
	return rw.preferWriters && rw.waitingWriters > 0
}

type rlocker RWMutex

func (r *rlocker) Lock()   { (*RWMutex)(r).RLock() }
func (r *rlocker) Unlock() { (*RWMutex)(r).RUnlock() }
