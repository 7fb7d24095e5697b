package cpqlorm

import (
	"container/list"
	"context"
	"database/sql"
	"hash/fnv"
	"sync"
)

// stmtShardCount shards the statement cache to reduce lock contention
// under concurrent flush/query activity, same rationale as the teacher's
// stmt_cache.go.
const stmtShardCount = 64

// StmtCache is a thread-safe, sharded LRU cache of prepared statements,
// keyed by SQL text. It is an implementation detail of the executor
// boundary (SPEC_FULL.md §4: ambient stack), not a spec.md contract: the
// SQL generator produces the same handful of SQL shapes repeatedly (one
// per distinct CPQL text x dialect), so preparing each shape once pays
// off across many executions. Grounded on the teacher's stmt_cache.go.
type StmtCache struct {
	shards   [stmtShardCount]*stmtShard
	capacity int
}

type stmtShard struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	lru     *list.List
	capacity int
}

type stmtEntry struct {
	key  string
	stmt *sql.Stmt
}

// NewStmtCache creates a cache with the given total capacity, spread
// evenly across shards. A non-positive capacity defaults to 100.
func NewStmtCache(capacity int) *StmtCache {
	if capacity <= 0 {
		capacity = 100
	}
	perShard := capacity / stmtShardCount
	if perShard < 1 {
		perShard = 1
	}
	c := &StmtCache{capacity: capacity}
	for i := range c.shards {
		c.shards[i] = &stmtShard{
			items:    make(map[string]*list.Element),
			lru:      list.New(),
			capacity: perShard,
		}
	}
	return c
}

func (c *StmtCache) shardFor(key string) *stmtShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%stmtShardCount]
}

// Prepare returns a cached *sql.Stmt for query, preparing and caching a
// new one via db if absent.
func (c *StmtCache) Prepare(ctx context.Context, db *sql.DB, query string) (*sql.Stmt, error) {
	shard := c.shardFor(query)

	shard.mu.Lock()
	if el, ok := shard.items[query]; ok {
		shard.lru.MoveToFront(el)
		entry := el.Value.(*stmtEntry)
		shard.mu.Unlock()
		return entry.stmt, nil
	}
	shard.mu.Unlock()

	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if el, ok := shard.items[query]; ok {
		shard.lru.MoveToFront(el)
		_ = stmt.Close()
		return el.Value.(*stmtEntry).stmt, nil
	}

	el := shard.lru.PushFront(&stmtEntry{key: query, stmt: stmt})
	shard.items[query] = el

	if shard.lru.Len() > shard.capacity {
		oldest := shard.lru.Back()
		if oldest != nil {
			shard.lru.Remove(oldest)
			evicted := oldest.Value.(*stmtEntry)
			delete(shard.items, evicted.key)
			_ = evicted.stmt.Close()
		}
	}

	return stmt, nil
}

// Close releases every prepared statement held by the cache.
func (c *StmtCache) Close() error {
	var firstErr error
	for _, shard := range c.shards {
		shard.mu.Lock()
		for el := shard.lru.Front(); el != nil; el = el.Next() {
			if err := el.Value.(*stmtEntry).stmt.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		shard.items = make(map[string]*list.Element)
		shard.lru.Init()
		shard.mu.Unlock()
	}
	return firstErr
}
