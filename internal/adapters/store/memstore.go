package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pitstop/pkg/metrics"
)

// MemStore implements DocumentStore with in-process maps. It backs a
// single-instance deployment and every test; transactions are serialized
// under one lock, which trivially satisfies the single-key isolation the
// contract requires.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]map[string]map[string]any
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string]map[string]map[string]any),
	}
}

// Get returns the document or ErrNotFound.
func (s *MemStore) Get(ctx context.Context, collection, id string) (Document, error) {
	defer observe("get")()
	if err := ctx.Err(); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.data[collection][id]
	if !ok {
		metrics.RecordStoreOpError("get", "not_found")
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return Document{ID: id, Fields: cloneFields(fields)}, nil
}

// Query returns all documents matching every filter.
func (s *MemStore) Query(ctx context.Context, collection string, filters []Filter, opts ...QueryOption) ([]Document, error) {
	defer observe("query")()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var qo QueryOptions
	for _, opt := range opts {
		opt(&qo)
	}

	s.mu.RLock()
	docs := make([]Document, 0)
	for id, fields := range s.data[collection] {
		if matchesAll(fields, filters) {
			docs = append(docs, Document{ID: id, Fields: cloneFields(fields)})
		}
	}
	s.mu.RUnlock()

	// Deterministic base order before any explicit ordering.
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	if qo.OrderBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			less := lessValues(docs[i].Fields[qo.OrderBy], docs[j].Fields[qo.OrderBy])
			if qo.Descending {
				return !less && !equalValues(docs[i].Fields[qo.OrderBy], docs[j].Fields[qo.OrderBy])
			}
			return less
		})
	}
	if qo.Limit > 0 && len(docs) > qo.Limit {
		docs = docs[:qo.Limit]
	}
	return docs, nil
}

// Set creates or fully replaces a document.
func (s *MemStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	defer observe("set")()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if id == "" {
		metrics.RecordStoreOpError("set", "validation")
		return fmt.Errorf("empty document id: %w", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(collection, id, fields)
	return nil
}

// Update merges fields into an existing document.
func (s *MemStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	defer observe("update")()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.data[collection][id]
	if !ok {
		metrics.RecordStoreOpError("update", "not_found")
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	for k, v := range fields {
		existing[k] = v
	}
	return nil
}

// Add creates a document with a generated id and returns the id.
func (s *MemStore) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	defer observe("add")()
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(collection, id, fields)
	return id, nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *MemStore) Delete(ctx context.Context, collection, id string) error {
	defer observe("delete")()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[collection], id)
	return nil
}

// RunTransaction executes fn under the store lock. Serializing transactions
// gives read-your-write isolation without conflict retries in-process.
func (s *MemStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	defer observe("transaction")()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s}
	if err := fn(ctx, tx); err != nil {
		metrics.RecordStoreOpError("transaction", "aborted")
		return err
	}
	tx.commitLocked()
	return nil
}

// BatchWrite applies independent writes best-effort.
func (s *MemStore) BatchWrite(ctx context.Context, ops []WriteOp) error {
	defer observe("batch_write")()

	var errs []error
	for _, op := range ops {
		var err error
		switch op.Kind {
		case WriteSet:
			err = s.Set(ctx, op.Collection, op.ID, op.Fields)
		case WriteUpdate:
			err = s.Update(ctx, op.Collection, op.ID, op.Fields)
		case WriteDelete:
			err = s.Delete(ctx, op.Collection, op.ID)
		default:
			err = fmt.Errorf("unknown write kind %q: %w", op.Kind, ErrValidation)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s/%s: %w", op.Kind, op.Collection, op.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of documents in a collection (test helper).
func (s *MemStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[collection])
}

func (s *MemStore) setLocked(collection, id string, fields map[string]any) {
	if s.data[collection] == nil {
		s.data[collection] = make(map[string]map[string]any)
	}
	s.data[collection][id] = cloneFields(fields)
}

// memTx buffers writes until the transaction function returns without error.
type memTx struct {
	store  *MemStore
	writes []WriteOp
}

func (t *memTx) Get(ctx context.Context, collection, id string) (Document, error) {
	// Read-your-write: scan buffered writes newest-first.
	for i := len(t.writes) - 1; i >= 0; i-- {
		w := t.writes[i]
		if w.Collection != collection || w.ID != id {
			continue
		}
		switch w.Kind {
		case WriteDelete:
			return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		case WriteSet:
			return Document{ID: id, Fields: cloneFields(w.Fields)}, nil
		case WriteUpdate:
			base, err := t.baseGet(collection, id)
			if err != nil {
				return Document{}, err
			}
			for k, v := range w.Fields {
				base.Fields[k] = v
			}
			return base, nil
		}
	}
	return t.baseGet(collection, id)
}

func (t *memTx) baseGet(collection, id string) (Document, error) {
	fields, ok := t.store.data[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return Document{ID: id, Fields: cloneFields(fields)}, nil
}

func (t *memTx) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	t.writes = append(t.writes, WriteOp{Kind: WriteSet, Collection: collection, ID: id, Fields: cloneFields(fields)})
	return nil
}

func (t *memTx) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if _, err := t.Get(ctx, collection, id); err != nil {
		return err
	}
	t.writes = append(t.writes, WriteOp{Kind: WriteUpdate, Collection: collection, ID: id, Fields: cloneFields(fields)})
	return nil
}

func (t *memTx) Delete(ctx context.Context, collection, id string) error {
	t.writes = append(t.writes, WriteOp{Kind: WriteDelete, Collection: collection, ID: id})
	return nil
}

// commitLocked flushes buffered writes. Caller holds the store lock.
func (t *memTx) commitLocked() {
	for _, w := range t.writes {
		switch w.Kind {
		case WriteSet:
			t.store.setLocked(w.Collection, w.ID, w.Fields)
		case WriteUpdate:
			if existing, ok := t.store.data[w.Collection][w.ID]; ok {
				for k, v := range w.Fields {
					existing[k] = v
				}
			}
		case WriteDelete:
			delete(t.store.data[w.Collection], w.ID)
		}
	}
}

// matchesAll reports whether fields satisfy every filter.
func matchesAll(fields map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := fields[f.Field]
		if !ok {
			return false
		}
		switch f.Op {
		case OpEqual:
			if !equalValues(v, f.Value) {
				return false
			}
		case OpIn:
			if !inValues(v, f.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func inValues(v, set any) bool {
	switch s := set.(type) {
	case []any:
		for _, candidate := range s {
			if equalValues(v, candidate) {
				return true
			}
		}
	case []string:
		for _, candidate := range s {
			if equalValues(v, candidate) {
				return true
			}
		}
	}
	return false
}

// equalValues compares two field values, normalizing numeric types.
func equalValues(a, b any) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	return a == b
}

// lessValues orders two field values of the same kind.
func lessValues(a, b any) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af < bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av < bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Before(bv)
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// observe returns a closure recording the operation latency on completion.
func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.RecordStoreOpLatency(op, float64(time.Since(start).Microseconds())/1000.0)
	}
}
