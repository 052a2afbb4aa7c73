package code_management

import (
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

type codeLock struct {
	mu   sync.Mutex
	refs int
}

// LockTable コードごとの排他区間。使われていないエントリは削除される。
type LockTable struct {
	locks *xsync.MapOf[string, *codeLock]
}

// NewLockTable 新しいLockTableを作成
func NewLockTable() *LockTable {
	return &LockTable{locks: xsync.NewMapOf[string, *codeLock]()}
}

// Lock コードの排他区間に入る。戻り値の関数で抜ける。
func (t *LockTable) Lock(code string) (unlock func()) {
	l, _ := t.locks.Compute(code, func(old *codeLock, loaded bool) (*codeLock, bool) {
		if !loaded {
			old = &codeLock{}
		}
		old.refs++
		return old, false
	})
	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			t.locks.Compute(code, func(old *codeLock, loaded bool) (*codeLock, bool) {
				old.refs--
				return old, old.refs == 0
			})
		})
	}
}

// LockAll 複数コードの排他区間に昇順で入る
func (t *LockTable) LockAll(codes []string) (unlock func()) {
	sorted := append([]string{}, codes...)
	sort.Strings(sorted)

	unlocks := make([]func(), 0, len(sorted))
	for i, code := range sorted {
		if i > 0 && sorted[i-1] == code {
			continue
		}
		unlocks = append(unlocks, t.Lock(code))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// Len 保持しているエントリ数を返す
func (t *LockTable) Len() int {
	return t.locks.Size()
}
