package domain

import (
	"fmt"
	"sort"
)

// NodeKind — тип узла преобразования. Набор типов закрыт.
type NodeKind string

const (
	// KindSource — источник данных (CSV, inline-строки или загруженный dataset).
	KindSource NodeKind = "source"

	// KindRename — переименование колонок.
	KindRename NodeKind = "rename"

	// KindExpression — вычисляемые колонки (строковые функции, custom-выражения).
	KindExpression NodeKind = "expression"

	// KindConstant — колонки с константным значением.
	KindConstant NodeKind = "constant"

	// KindFilter — фильтрация строк по предикату.
	KindFilter NodeKind = "filter"

	// KindMapping — условное отображение значений.
	KindMapping NodeKind = "mapping"

	// KindKeepDrop — проекция на список колонок.
	KindKeepDrop NodeKind = "keep_drop"

	// KindDomain — колонка DOMAIN с кодом SDTM домена.
	KindDomain NodeKind = "domain"

	// KindJoin — реляционное соединение двух dataset'ов.
	KindJoin NodeKind = "join"
)

// legacyKinds — имена классов узлов из сохранённых flow старого формата.
var legacyKinds = map[string]NodeKind{
	"DataInputNode":           KindSource,
	"ColumnRenamerNode":       KindRename,
	"ExpressionBuilderNode":   KindExpression,
	"ConstantValueColumnNode": KindConstant,
	"RowFilterNode":           KindFilter,
	"ConditionalMappingNode":  KindMapping,
	"ColumnKeepDropNode":      KindKeepDrop,
	"DomainNode":              KindDomain,
	"JoinNode":                KindJoin,
}

// AllKinds возвращает все типы узлов.
func AllKinds() []NodeKind {
	return []NodeKind{
		KindSource, KindRename, KindExpression, KindConstant, KindFilter,
		KindMapping, KindKeepDrop, KindDomain, KindJoin,
	}
}

// ParseNodeKind разбирает тип узла, включая устаревшие имена классов.
func ParseNodeKind(s string) (NodeKind, error) {
	if k, ok := legacyKinds[s]; ok {
		return k, nil
	}
	k := NodeKind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("unknown node kind %q", s)
	}
	return k, nil
}

// IsValid возвращает true для известных типов.
func (k NodeKind) IsValid() bool {
	switch k {
	case KindSource, KindRename, KindExpression, KindConstant, KindFilter,
		KindMapping, KindKeepDrop, KindDomain, KindJoin:
		return true
	default:
		return false
	}
}

// InputPorts возвращает количество входных портов узла данного типа.
func (k NodeKind) InputPorts() int {
	switch k {
	case KindSource:
		return 0
	case KindJoin:
		return 2
	case KindRename, KindExpression, KindConstant, KindFilter,
		KindMapping, KindKeepDrop, KindDomain:
		return 1
	default:
		return 0
	}
}

// PortName возвращает имя входного порта для сообщений об ошибках.
func (k NodeKind) PortName(port int) string {
	if k == KindJoin {
		switch port {
		case 0:
			return "left"
		case 1:
			return "right"
		}
	}
	if port == 0 {
		return "input"
	}
	return fmt.Sprintf("input %d", port)
}

// String возвращает строковое представление NodeKind.
func (k NodeKind) String() string {
	return string(k)
}

// DomainColumn — имя колонки, которую заполняет узел domain.
const DomainColumn = "DOMAIN"

// domainCodes — коды доменов SDTM.
var domainCodes = map[string]string{
	// Trial Design
	"TA": "Trial Arms", "TD": "Trial Disease Assessments", "TE": "Trial Elements",
	"TI": "Trial Inclusion/Exclusion Criteria", "TM": "Trial Disease Milestones",
	"TS": "Trial Summary", "TV": "Trial Visits",
	// Special Purpose
	"DM": "Demographics", "SV": "Subject Visits", "SE": "Subject Elements",
	"CO": "Comments", "SM": "Subject Disease Milestones",
	// Interventions
	"AG": "Procedure Agents", "CM": "Concomitant Medications", "EC": "Exposure as Collected",
	"EX": "Exposure", "ML": "Meal Data", "PR": "Procedures", "SU": "Substance Use",
	// Events
	"AE": "Adverse Events", "APMH": "Associated Persons Medical History",
	"CE": "Clinical Events", "DS": "Disposition", "DV": "Protocol Deviations",
	"HO": "Healthcare Encounters", "MH": "Medical History",
	// Findings
	"CV": "Cardiovascular System Findings", "DA": "Product Accountability",
	"DD": "Death Details", "EG": "ECG Test Results", "FT": "Functional Tests",
	"IE": "Inclusion/Exclusion Criteria Not Met", "IS": "Immunogenicity Specimen Assessments",
	"LB": "Laboratory Test Results", "LC": "Laboratory Test Results for Conventional Units",
	"MB": "Microbiology Specimen", "MI": "Microscopic Findings", "MK": "Musculoskeletal System Findings",
	"MO": "Morphology", "MS": "Microbiology Susceptibility", "NV": "Nervous System Findings",
	"OE": "Ophthalmic Examinations", "PC": "Pharmacokinetics Concentrations",
	"PE": "Physical Examination", "PP": "Pharmacokinetics Parameters",
	"QS": "Questionnaires", "RE": "Respiratory System Findings", "RP": "Reproductive System Findings",
	"RS": "Disease Response and Clin Classification", "SC": "Subject Characteristics",
	"SS": "Subject Status", "TR": "Tumor/Lesion Results", "TU": "Tumor/Lesion Identification",
	"UR": "Urinary System Findings", "VS": "Vital Signs", "FA": "Findings About",
	"SR": "Skin Response", "OI": "Non-host Organism Identifiers",
}

// IsDomainCode проверяет, входит ли код в словарь доменов SDTM.
func IsDomainCode(code string) bool {
	_, ok := domainCodes[code]
	return ok
}

// DomainDescription возвращает описание домена.
func DomainDescription(code string) string {
	return domainCodes[code]
}

// DomainCodes возвращает отсортированный список кодов доменов.
func DomainCodes() []string {
	codes := make([]string, 0, len(domainCodes))
	for c := range domainCodes {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
