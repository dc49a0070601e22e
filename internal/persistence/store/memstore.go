package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemStore keeps every game in process memory. Transactions buffer their
// writes and apply them atomically on Commit; reads see committed state
// overlaid with the transaction's own writes. A writing transaction fails
// to commit with ErrConflict when anything it read has been committed by
// another transaction since.
type MemStore struct {
	mu    sync.RWMutex
	games map[string]map[string]map[string][]byte // game -> kind -> key -> doc
	vers  map[string]*memVersions
	seq   uint64
}

type memVersions struct {
	kinds map[string]uint64
	keys  map[string]map[string]uint64
}

func NewMemory() *MemStore {
	return &MemStore{games: map[string]map[string]map[string][]byte{}, vers: map[string]*memVersions{}}
}

// versions must be called with mu held.
func (m *MemStore) versions(game string) *memVersions {
	v := m.vers[game]
	if v == nil {
		v = &memVersions{kinds: map[string]uint64{}, keys: map[string]map[string]uint64{}}
		m.vers[game] = v
	}
	return v
}

func (m *MemStore) Begin(ctx context.Context, game string) (*Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newTx(game, &memTx{
		s:      m,
		game:   game,
		writes: map[string]map[string]*memWrite{},
		reads:  map[string]map[string]uint64{},
		scans:  map[string]uint64{},
	}), nil
}

func (m *MemStore) Games(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.games))
	for g, kinds := range m.games {
		if len(kinds[KindTurn]) > 0 {
			out = append(out, g)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemStore) Close() error { return nil }

type memWrite struct {
	doc     []byte
	deleted bool
}

type memTx struct {
	s      *MemStore
	game   string
	writes map[string]map[string]*memWrite
	reads  map[string]map[string]uint64 // kind -> key -> version first seen
	scans  map[string]uint64            // kind -> version first seen
}

// seen records the committed version of a key read from shared state.
// Callers hold s.mu.
func (t *memTx) seen(kind, key string) {
	byKey := t.reads[kind]
	if byKey == nil {
		byKey = map[string]uint64{}
		t.reads[kind] = byKey
	}
	if _, ok := byKey[key]; !ok {
		var ver uint64
		if v := t.s.vers[t.game]; v != nil {
			ver = v.keys[kind][key]
		}
		byKey[key] = ver
	}
}

func (t *memTx) scanned(kind string) {
	if _, ok := t.scans[kind]; ok {
		return
	}
	var ver uint64
	if v := t.s.vers[t.game]; v != nil {
		ver = v.kinds[kind]
	}
	t.scans[kind] = ver
}

func (t *memTx) get(_ context.Context, kind, key string) ([]byte, bool, error) {
	if w, ok := t.writes[kind][key]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return w.doc, true, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	t.seen(kind, key)
	b, ok := t.s.games[t.game][kind][key]
	return b, ok, nil
}

func (t *memTx) list(_ context.Context, kind, prefix string) ([][]byte, error) {
	merged := map[string][]byte{}
	t.s.mu.RLock()
	t.scanned(kind)
	for k, b := range t.s.games[t.game][kind] {
		if strings.HasPrefix(k, prefix) {
			merged[k] = b
		}
	}
	t.s.mu.RUnlock()
	for k, w := range t.writes[kind] {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if w.deleted {
			delete(merged, k)
		} else {
			merged[k] = w.doc
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, merged[k])
	}
	return out, nil
}

func (t *memTx) put(_ context.Context, kind, key string, doc []byte) error {
	t.write(kind, key, &memWrite{doc: doc})
	return nil
}

func (t *memTx) del(_ context.Context, kind, key string) error {
	t.write(kind, key, &memWrite{deleted: true})
	return nil
}

func (t *memTx) write(kind, key string, w *memWrite) {
	byKey := t.writes[kind]
	if byKey == nil {
		byKey = map[string]*memWrite{}
		t.writes[kind] = byKey
	}
	byKey[key] = w
}

func (t *memTx) commit() error {
	if len(t.writes) == 0 {
		t.writes = nil
		return nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	vers := t.s.versions(t.game)
	if err := t.validate(vers); err != nil {
		t.writes = nil
		return err
	}
	t.s.seq++
	kinds := t.s.games[t.game]
	if kinds == nil {
		kinds = map[string]map[string][]byte{}
		t.s.games[t.game] = kinds
	}
	for kind, byKey := range t.writes {
		dst := kinds[kind]
		if dst == nil {
			dst = map[string][]byte{}
			kinds[kind] = dst
		}
		keyVers := vers.keys[kind]
		if keyVers == nil {
			keyVers = map[string]uint64{}
			vers.keys[kind] = keyVers
		}
		vers.kinds[kind] = t.s.seq
		for k, w := range byKey {
			keyVers[k] = t.s.seq
			if w.deleted {
				delete(dst, k)
			} else {
				dst[k] = w.doc
			}
		}
	}
	t.writes = nil
	return nil
}

func (t *memTx) validate(vers *memVersions) error {
	for kind, ver := range t.scans {
		if vers.kinds[kind] != ver {
			return fmt.Errorf("%s changed since read: %w", kind, ErrConflict)
		}
	}
	for kind, byKey := range t.reads {
		for k, ver := range byKey {
			if vers.keys[kind][k] != ver {
				return fmt.Errorf("%s %q changed since read: %w", kind, k, ErrConflict)
			}
		}
	}
	return nil
}

func (t *memTx) rollback() error {
	t.writes = nil
	return nil
}
