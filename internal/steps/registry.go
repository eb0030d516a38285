package steps

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/sdtmflow/internal/domain"
)

// Registry — реестр реализаций узлов по типу.
//
// Потокобезопасен. Поиск принимает и устаревшие имена классов
// ("ColumnRenamerNode" → rename).
type Registry struct {
	mu    sync.RWMutex
	steps map[domain.NodeKind]Step
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[domain.NodeKind]Step),
	}
}

// DefaultRegistry создаёт реестр со всеми девятью типами узлов.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(NewSourceStep())
	r.Register(NewRenameStep())
	r.Register(NewExpressionStep())
	r.Register(NewConstantStep())
	r.Register(NewFilterStep())
	r.Register(NewMappingStep())
	r.Register(NewKeepDropStep())
	r.Register(NewDomainStep())
	r.Register(NewJoinStep())

	return r
}

// Register регистрирует шаг в реестре.
// Если шаг с таким типом уже существует, он будет перезаписан.
func (r *Registry) Register(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[domain.NodeKind(step.Type())] = step
}

// Get возвращает шаг по типу.
// Возвращает ErrStepNotFound, если шаг не найден.
func (r *Registry) Get(kind string) (Step, error) {
	k, err := domain.ParseNodeKind(kind)
	if err != nil {
		k = domain.NodeKind(kind)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	step, exists := r.steps[k]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, kind)
	}
	return step, nil
}

// Has проверяет, зарегистрирован ли шаг.
func (r *Registry) Has(kind string) bool {
	_, err := r.Get(kind)
	return err == nil
}

// Types возвращает отсортированный список зарегистрированных типов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.steps))
	for k := range r.steps {
		types = append(types, string(k))
	}
	sort.Strings(types)
	return types
}

// Count возвращает количество зарегистрированных шагов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}

// Unregister удаляет шаг из реестра.
func (r *Registry) Unregister(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.steps, domain.NodeKind(kind))
}
