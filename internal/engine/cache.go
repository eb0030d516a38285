package engine

import (
	"sync"

	"github.com/shaiso/sdtmflow/internal/table"
)

// entry — сохранённый результат узла.
type entry struct {
	// data — выходной dataset (nil для неудачного выполнения).
	data *table.Dataset

	// failure — ошибка выполнения (nil для успешного).
	failure *Failure

	// notes — предупреждения шага.
	notes []string

	// seq — порядковый номер записи, уникальный в пределах кэша.
	seq uint64

	// generation — Generation узла на момент выполнения.
	generation uint64

	// inputs — seq записей источников по портам на момент выполнения.
	inputs []uint64
}

func (e *entry) succeeded() bool {
	return e.failure == nil && e.data != nil
}

// CacheInfo — сводка по кэшу результатов.
type CacheInfo struct {
	// Entries — всего записей.
	Entries int `json:"entries"`

	// Succeeded, Failed — записи по исходу.
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	// Rows — суммарное количество строк в сохранённых dataset'ах.
	Rows int `json:"rows"`

	// Hits, Misses — обращения с момента создания движка.
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// cache — результаты узлов по ID. Чтение доступно из других горутин.
type cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	seq     uint64
	hits    uint64
	misses  uint64
}

func newCache() *cache {
	return &cache{
		entries: make(map[string]*entry),
	}
}

func (c *cache) get(id string) (*entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// put сохраняет запись, присваивая ей следующий seq.
func (c *cache) put(id string, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	e.seq = c.seq
	c.entries[id] = e
}

// remove удаляет записи и возвращает количество удалённых.
func (c *cache) remove(ids ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := c.entries[id]; ok {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

func (c *cache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

func (c *cache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *cache) record(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func (c *cache) info() CacheInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info := CacheInfo{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
	for _, e := range c.entries {
		if e.succeeded() {
			info.Succeeded++
			info.Rows += e.data.NumRows()
		} else {
			info.Failed++
		}
	}
	return info
}
