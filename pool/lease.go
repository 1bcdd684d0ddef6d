package pool

// Lease is a connection leased from a Pool. It is owned by exactly one
// in-flight request and must be released exactly once.
type Lease struct {
	conn      Conn
	pool      *Pool
	released  bool
	unhealthy bool
}

// Conn returns the leased connection.
func (l *Lease) Conn() Conn { return l.conn }

// MarkUnhealthy flags the connection as broken; it is discarded on release.
func (l *Lease) MarkUnhealthy() { l.unhealthy = true }

// Release returns the lease to its pool.
func (l *Lease) Release() error { return l.pool.Release(l) }
