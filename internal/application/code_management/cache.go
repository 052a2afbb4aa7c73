package code_management

import (
	"sort"
	"sync"

	"redeem-server/internal/domain/redemption_code"
)

// Cache 永続化の完了を待たずに最新状態を返すコードのキャッシュ。
// 書き込み待ちのコードは再読み込みで上書きしない。
type Cache struct {
	mu      sync.RWMutex
	codes   map[string]*redemption_code.RedemptionCode
	pending map[string]int
}

// NewCache 新しいCacheを作成
func NewCache() *Cache {
	return &Cache{
		codes:   map[string]*redemption_code.RedemptionCode{},
		pending: map[string]int{},
	}
}

// Get コードのコピーを返す
func (c *Cache) Get(code string) (*redemption_code.RedemptionCode, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rc, ok := c.codes[code]
	if !ok {
		return nil, false
	}
	return rc.Clone(), true
}

// Has コードが存在するかを返す
func (c *Cache) Has(code string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.codes[code]
	return ok
}

// Deleted 削除の書き込み待ちかどうかを返す
func (c *Cache) Deleted(code string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.codes[code]
	return !ok && c.pending[code] > 0
}

// Put 変更を反映し、書き込み待ちとして記録する
func (c *Cache) Put(codes ...*redemption_code.RedemptionCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rc := range codes {
		c.codes[rc.Code()] = rc.Clone()
		c.pending[rc.Code()]++
	}
}

// Remove 削除を反映し、書き込み待ちとして記録する
func (c *Cache) Remove(codes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, code := range codes {
		delete(c.codes, code)
		c.pending[code]++
	}
}

// Settle 書き込みの完了を記録
func (c *Cache) Settle(codes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, code := range codes {
		if c.pending[code] <= 1 {
			delete(c.pending, code)
			continue
		}
		c.pending[code]--
	}
}

// Store 永続化層から読み込んだコードを、書き込み待ちでなければ反映する
func (c *Cache) Store(rc *redemption_code.RedemptionCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[rc.Code()] > 0 {
		return
	}
	c.codes[rc.Code()] = rc.Clone()
}

// Evict 書き込み待ちでなければ削除
func (c *Cache) Evict(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[code] > 0 {
		return
	}
	delete(c.codes, code)
}

// Replace 全体を置き換える。書き込み待ちのコードは現在の状態を保つ。
func (c *Cache) Replace(codes []*redemption_code.RedemptionCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[string]*redemption_code.RedemptionCode, len(codes))
	for _, rc := range codes {
		next[rc.Code()] = rc.Clone()
	}
	for code := range c.pending {
		if rc, ok := c.codes[code]; ok {
			next[code] = rc
		} else {
			delete(next, code)
		}
	}
	c.codes = next
}

// Clear 全コードを削除し、書き込み待ちとして記録する
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for code := range c.codes {
		c.pending[code]++
	}
	c.codes = map[string]*redemption_code.RedemptionCode{}
}

// Codes コード文字列を昇順で返す
func (c *Cache) Codes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.codes))
	for code := range c.codes {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// All 全コードのコピーを返す
func (c *Cache) All() []*redemption_code.RedemptionCode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*redemption_code.RedemptionCode, 0, len(c.codes))
	for _, rc := range c.codes {
		out = append(out, rc.Clone())
	}
	return out
}

// Len コード数を返す
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.codes)
}

// Index 索引を作成
func (c *Cache) Index() redemption_code.Index {
	return redemption_code.BuildIndex(c.All())
}
