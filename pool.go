package cpqlorm

import (
	"database/sql"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// ConfigurePool applies connection-pool sizing to db, mirroring the
// teacher's ConfigureConnectionPool free function. This is the one piece
// of "connection provider" surface spec.md's entity manager still needs
// to own per §5 ("Connection: owned exclusively by one entity manager
// for its lifetime") even though dialect-specific DSN/driver selection
// is out of scope (§1).
func ConfigurePool(db *sql.DB, maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
	db.SetConnMaxIdleTime(maxIdleTime)
}

// LoadBalancer picks one of several replica connections. Grounded on the
// teacher's resolver.go.
type LoadBalancer interface {
	Next(replicas []*sql.DB) *sql.DB
}

// RoundRobinLoadBalancer cycles through replicas in order.
type RoundRobinLoadBalancer struct {
	counter uint64
}

func (b *RoundRobinLoadBalancer) Next(replicas []*sql.DB) *sql.DB {
	if len(replicas) == 0 {
		return nil
	}
	n := atomic.AddUint64(&b.counter, 1)
	return replicas[n%uint64(len(replicas))]
}

// RandomLoadBalancer picks a uniformly random replica.
type RandomLoadBalancer struct{}

func (RandomLoadBalancer) Next(replicas []*sql.DB) *sql.DB {
	if len(replicas) == 0 {
		return nil
	}
	return replicas[rand.IntN(len(replicas))]
}

// Resolver routes reads to a replica and writes to the primary. It is an
// optional, ambient extension to the entity manager's single-connection
// model (spec.md §5 describes a manager bound to "its own connection";
// primary/replica routing is an orthogonal scaling knob some deployments
// of this core need, so it sits entirely behind the executor boundary —
// the entity manager's public operations are unaffected by whether a
// Resolver is configured).
type Resolver struct {
	primary  *sql.DB
	replicas []*sql.DB
	lb       LoadBalancer
}

// NewResolver builds a Resolver. lb defaults to round-robin if nil.
func NewResolver(primary *sql.DB, replicas []*sql.DB, lb LoadBalancer) *Resolver {
	if lb == nil {
		lb = &RoundRobinLoadBalancer{}
	}
	return &Resolver{primary: primary, replicas: replicas, lb: lb}
}

// Primary returns the write connection.
func (r *Resolver) Primary() *sql.DB { return r.primary }

// Replica returns a load-balanced read connection, falling back to the
// primary if no replicas are configured.
func (r *Resolver) Replica() *sql.DB {
	if len(r.replicas) == 0 {
		return r.primary
	}
	if db := r.lb.Next(r.replicas); db != nil {
		return db
	}
	return r.primary
}
