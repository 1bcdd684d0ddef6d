// Package pool implements a bounded pool of database connections leased to
// one request at a time.
//
// A Pool never holds more than MaxSize connections, counting leased, idle
// and in-creation ones. Acquire waits on a per-caller channel when the pool
// is exhausted; a Release hands its connection (or, for a discarded
// connection, the right to create a replacement) directly to the oldest
// waiter.
package pool

import (
	"container/list"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"time"
)

// Sentinel errors.
var (
	ErrTimeout  = errors.New("pool: acquire timed out")
	ErrClosed   = errors.New("pool: closed")
	ErrReleased = errors.New("pool: connection already released")
)

// Conn is the underlying connection a Lease wraps. *sql.Conn implements it.
type Conn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PingContext(ctx context.Context) error
	Close() error
}

// Opener creates a new connection.
type Opener func(ctx context.Context) (Conn, error)

// FromDB returns an Opener that takes dedicated connections from db.
func FromDB(db *sql.DB) Opener {
	return func(ctx context.Context) (Conn, error) {
		return db.Conn(ctx)
	}
}

// Options configures a Pool.
type Options struct {
	MaxSize        int           // default 5
	AcquireTimeout time.Duration // default 5s
}

// Stats is a snapshot of the pool's bookkeeping.
type Stats struct {
	MaxSize  int `json:"maxSize"`
	Leased   int `json:"leased"`
	Idle     int `json:"idle"`
	Creating int `json:"creating"`
	Waiting  int `json:"waiting"`
}

// Pool is a bounded connection pool. It is safe for concurrent use.
type Pool struct {
	open    Opener
	max     int
	timeout time.Duration

	mu       sync.Mutex
	idle     []Conn
	leased   int
	creating int
	waiters  list.List // of chan grant
	closed   bool
}

// grant is what a Release hands to a waiter: a connection, or permission to
// create one when conn is nil.
type grant struct {
	conn Conn
}

// New creates a Pool. No connection is opened until the first Acquire.
func New(open Opener, opts Options) *Pool {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 5
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 5 * time.Second
	}
	return &Pool{
		open:    open,
		max:     opts.MaxSize,
		timeout: opts.AcquireTimeout,
	}
}

// Acquire leases a connection. It waits up to the configured acquire timeout
// for one to become available and returns ErrTimeout when none does. The
// returned Lease must be released exactly once.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.leased++
		p.mu.Unlock()
		return p.lease(conn), nil
	}
	if p.total() < p.max {
		p.creating++
		p.mu.Unlock()
		return p.create(ctx)
	}

	ch := make(chan grant, 1)
	elem := p.waiters.PushBack(ch)
	p.mu.Unlock()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	var err error
	select {
	case g, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		return p.take(ctx, g)
	case <-timer.C:
		err = ErrTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}

	p.mu.Lock()
	if !p.removeWaiter(elem) {
		// A grant raced the timeout; it is already counted against the
		// pool and must be handed back.
		p.mu.Unlock()
		if g, ok := <-ch; ok {
			p.giveBack(g)
		}
		return nil, err
	}
	p.mu.Unlock()
	return nil, err
}

// Release returns a leased connection. Unhealthy connections are closed and
// replaced lazily by a later Acquire. Releasing the same lease twice returns
// ErrReleased.
func (p *Pool) Release(l *Lease) error {
	p.mu.Lock()
	if l.released {
		p.mu.Unlock()
		return ErrReleased
	}
	l.released = true
	p.leased--

	if l.unhealthy || p.closed {
		p.grantSlotLocked()
		p.mu.Unlock()
		destroy(l.conn)
		return nil
	}

	if ch := p.popWaiter(); ch != nil {
		p.leased++
		ch <- grant{conn: l.conn}
		p.mu.Unlock()
		return nil
	}

	p.idle = append(p.idle, l.conn)
	p.mu.Unlock()
	return nil
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		MaxSize:  p.max,
		Leased:   p.leased,
		Idle:     len(p.idle),
		Creating: p.creating,
		Waiting:  p.waiters.Len(),
	}
}

// Ping checks the database through a leased connection.
func (p *Pool) Ping(ctx context.Context) error {
	l, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	err = l.Conn().PingContext(ctx)
	if err != nil {
		l.MarkUnhealthy()
	}
	_ = p.Release(l)
	return err
}

// Close closes idle connections and fails pending waiters with ErrClosed.
// Leased connections are closed when they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	var waiting []chan grant
	for e := p.waiters.Front(); e != nil; e = e.Next() {
		waiting = append(waiting, e.Value.(chan grant))
	}
	p.waiters.Init()
	p.mu.Unlock()

	for _, ch := range waiting {
		close(ch)
	}
	var errs []error
	for _, c := range idle {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (p *Pool) total() int {
	return p.leased + len(p.idle) + p.creating
}

func (p *Pool) lease(c Conn) *Lease {
	return &Lease{conn: c, pool: p}
}

// create opens a connection for a slot already counted in p.creating.
func (p *Pool) create(ctx context.Context) (*Lease, error) {
	conn, err := p.open(ctx)

	p.mu.Lock()
	p.creating--
	if err != nil {
		p.grantSlotLocked()
		p.mu.Unlock()
		return nil, err
	}
	if p.closed {
		p.mu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	p.leased++
	p.mu.Unlock()
	return p.lease(conn), nil
}

// take turns a grant received by a waiter into a lease.
func (p *Pool) take(ctx context.Context, g grant) (*Lease, error) {
	if g.conn == nil {
		return p.create(ctx)
	}
	return p.lease(g.conn), nil
}

// giveBack returns a grant nobody will use.
func (p *Pool) giveBack(g grant) {
	if g.conn != nil {
		_ = p.Release(p.lease(g.conn))
		return
	}
	p.mu.Lock()
	p.creating--
	p.grantSlotLocked()
	p.mu.Unlock()
}

// grantSlotLocked passes freed capacity to the oldest waiter, if any.
func (p *Pool) grantSlotLocked() {
	if p.closed {
		return
	}
	if ch := p.popWaiter(); ch != nil {
		p.creating++
		ch <- grant{}
	}
}

func (p *Pool) popWaiter() chan grant {
	e := p.waiters.Front()
	if e == nil {
		return nil
	}
	p.waiters.Remove(e)
	return e.Value.(chan grant)
}

func (p *Pool) removeWaiter(elem *list.Element) bool {
	for e := p.waiters.Front(); e != nil; e = e.Next() {
		if e == elem {
			p.waiters.Remove(e)
			return true
		}
	}
	return false
}

// destroy closes a connection so that database/sql drops it instead of
// recycling it.
func destroy(c Conn) {
	if raw, ok := c.(interface{ Raw(func(any) error) error }); ok {
		_ = raw.Raw(func(any) error { return driver.ErrBadConn })
	}
	_ = c.Close()
}
