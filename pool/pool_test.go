package pool_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/oasql/pool"
)

type fakeConn struct {
	id     int
	closed atomic.Bool
}

func (c *fakeConn) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("fake")
}

func (c *fakeConn) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errors.New("fake")
}

func (c *fakeConn) PingContext(context.Context) error { return nil }

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

type opener struct {
	mu    sync.Mutex
	conns []*fakeConn
	fail  error
}

func (o *opener) open(context.Context) (pool.Conn, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return nil, o.fail
	}
	c := &fakeConn{id: len(o.conns) + 1}
	o.conns = append(o.conns, c)
	return c, nil
}

func (o *opener) opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.conns)
}

func newPool(t *testing.T, size int, timeout time.Duration) (*pool.Pool, *opener) {
	t.Helper()
	o := &opener{}
	p := pool.New(o.open, pool.Options{MaxSize: size, AcquireTimeout: timeout})
	t.Cleanup(func() { _ = p.Close() })
	return p, o
}

func TestPool_reusesReleasedConnections(t *testing.T) {
	t.Parallel()

	p, o := newPool(t, 2, time.Second)

	for range 3 {
		l, err := p.Acquire(context.Background())
		require.NoError(t, err)
		require.NoError(t, l.Release())
	}

	assert.Equal(t, 1, o.opened())
	assert.Equal(t, pool.Stats{MaxSize: 2, Idle: 1}, p.Stats())
}

func TestPool_excessCallersWaitForRelease(t *testing.T) {
	t.Parallel()

	p, o := newPool(t, 2, 5*time.Second)

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)
	second, err := p.Acquire(context.Background())
	require.NoError(t, err)

	got := make(chan *pool.Lease, 1)
	go func() {
		l, err := p.Acquire(context.Background())
		assert.NoError(t, err)
		got <- l
	}()

	require.Eventually(t, func() bool { return p.Stats().Waiting == 1 }, time.Second, 5*time.Millisecond)
	select {
	case <-got:
		t.Fatal("acquire returned while the pool was exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Release())

	select {
	case l := <-got:
		assert.Same(t, first.Conn(), l.Conn())
		require.NoError(t, l.Release())
	case <-time.After(time.Second):
		t.Fatal("waiter was not handed the released connection")
	}

	require.NoError(t, second.Release())
	assert.Equal(t, 2, o.opened())
}

func TestPool_acquireTimeout(t *testing.T) {
	t.Parallel()

	p, _ := newPool(t, 1, 50*time.Millisecond)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Acquire(context.Background())
	require.ErrorIs(t, err, pool.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 0, p.Stats().Waiting)

	require.NoError(t, held.Release())

	l, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, l.Release())
}

func TestPool_contextCancel(t *testing.T) {
	t.Parallel()

	p, _ := newPool(t, 1, time.Minute)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer func() { require.NoError(t, held.Release()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_doubleRelease(t *testing.T) {
	t.Parallel()

	p, _ := newPool(t, 1, time.Second)

	l, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, l.Release())

	before := p.Stats()
	require.ErrorIs(t, l.Release(), pool.ErrReleased)
	assert.Equal(t, before, p.Stats())
}

func TestPool_unhealthyConnectionIsReplaced(t *testing.T) {
	t.Parallel()

	p, o := newPool(t, 1, time.Second)

	l, err := p.Acquire(context.Background())
	require.NoError(t, err)
	broken := l.Conn().(*fakeConn)

	l.MarkUnhealthy()
	require.NoError(t, l.Release())

	assert.True(t, broken.closed.Load())
	assert.Equal(t, pool.Stats{MaxSize: 1}, p.Stats())

	next, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, broken, next.Conn())
	assert.Equal(t, 2, o.opened())
	require.NoError(t, next.Release())
}

func TestPool_unhealthyReleaseWakesWaiter(t *testing.T) {
	t.Parallel()

	p, o := newPool(t, 1, 5*time.Second)

	l, err := p.Acquire(context.Background())
	require.NoError(t, err)

	got := make(chan error, 1)
	go func() {
		w, err := p.Acquire(context.Background())
		if err == nil {
			err = w.Release()
		}
		got <- err
	}()
	require.Eventually(t, func() bool { return p.Stats().Waiting == 1 }, time.Second, 5*time.Millisecond)

	l.MarkUnhealthy()
	require.NoError(t, l.Release())

	select {
	case err := <-got:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by discarded connection")
	}
	assert.Equal(t, 2, o.opened())
}

func TestPool_neverExceedsMaxSize(t *testing.T) {
	t.Parallel()

	const size = 3
	p, o := newPool(t, size, 5*time.Second)

	var (
		inUse   atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := p.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			n := inUse.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			s := p.Stats()
			assert.LessOrEqual(t, s.Leased+s.Idle+s.Creating, size)
			time.Sleep(time.Duration(i%3) * time.Millisecond)
			if i%7 == 0 {
				l.MarkUnhealthy()
			}
			inUse.Add(-1)
			assert.NoError(t, l.Release())
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, int(maxSeen.Load()), size)
	s := p.Stats()
	assert.Equal(t, 0, s.Leased)
	assert.Equal(t, 0, s.Waiting)
	assert.LessOrEqual(t, s.Idle, size)
	assert.GreaterOrEqual(t, o.opened(), 1)
}

func TestPool_openFailure(t *testing.T) {
	t.Parallel()

	o := &opener{fail: errors.New("dial tcp: refused")}
	p := pool.New(o.open, pool.Options{MaxSize: 1, AcquireTimeout: time.Second})

	_, err := p.Acquire(context.Background())
	require.EqualError(t, err, "dial tcp: refused")
	assert.Equal(t, pool.Stats{MaxSize: 1}, p.Stats())
}

func TestPool_close(t *testing.T) {
	t.Parallel()

	o := &opener{}
	p := pool.New(o.open, pool.Options{MaxSize: 1, AcquireTimeout: 5 * time.Second})

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	got := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		got <- err
	}()
	require.Eventually(t, func() bool { return p.Stats().Waiting == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Close())
	select {
	case err := <-got:
		require.ErrorIs(t, err, pool.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter not failed by Close")
	}

	require.NoError(t, held.Release())
	assert.True(t, held.Conn().(*fakeConn).closed.Load())

	_, err = p.Acquire(context.Background())
	require.ErrorIs(t, err, pool.ErrClosed)
}

func TestPool_ping(t *testing.T) {
	t.Parallel()

	p, _ := newPool(t, 1, time.Second)
	require.NoError(t, p.Ping(context.Background()))
	assert.Equal(t, 1, p.Stats().Idle)
}
