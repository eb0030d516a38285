package steps

import (
	"context"
	"strings"

	"github.com/shaiso/sdtmflow/internal/domain"
)

// DomainStep — записывает колонку DOMAIN с кодом домена SDTM.
//
// Конфигурация:
//
//	{"domain": "DM"}
//
// Код должен входить в словарь domain.DomainCodes. Существующая колонка
// DOMAIN перезаписывается, новая добавляется в конец.
type DomainStep struct{}

// NewDomainStep создаёт новый DomainStep.
func NewDomainStep() *DomainStep {
	return &DomainStep{}
}

// Type возвращает тип шага.
func (s *DomainStep) Type() string {
	return string(domain.KindDomain)
}

// InputPorts возвращает количество входных портов.
func (s *DomainStep) InputPorts() int {
	return 1
}

// Execute добавляет колонку DOMAIN.
func (s *DomainStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	in, err := requireInput(req, 0)
	if err != nil {
		return nil, err
	}

	code := strings.ToUpper(strings.TrimSpace(GetConfigStringAny(req.Config, "domain", "selected_domain")))
	if code == "" {
		return nil, configError("domain is required")
	}
	if !domain.IsDomainCode(code) {
		return nil, configError("unknown SDTM domain %q", code)
	}

	out := in.WithColumn(domain.DomainColumn, func(int) any { return code })
	return NewResponse(out), nil
}
