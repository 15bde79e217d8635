package compliance

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Source keys of the raw analysis record besides the two markers.
const (
	fieldTrafficLight = "semaforo"
	fieldRationale    = "justificacion"
	fieldCurrent      = "calificacion_actual"
	fieldTarget       = "calificacion_objetivo"
	fieldLegal        = "referencias_normativas"
	fieldChecklist    = "checklist"
	fieldInputs       = "datos_entrada"

	measureID       = "id"
	measureTitle    = "titulo"
	measureDesc     = "descripcion"
	measurePriority = "prioridad"
	measureCategory = "categoria"
	measureNotes    = "notas"
	measureCost     = "coste_estimado"
	measureCostMin  = "coste_min"
	measureCostMax  = "coste_max"
	measurePayback  = "retorno_inversion"
	measureDeps     = "dependencias"
)

const (
	issueFallbackRunes = 200
	maxChanges         = 3
	defaultCurrency    = "EUR"
)

// compliantStatuses is a strict allow-list: anything else, partial variants included, does not comply.
var compliantStatuses = map[string]bool{
	"cumple":               true,
	"cumple_completamente": true,
}

var categoryKeywords = []struct {
	category Category
	words    []string
}{
	{CategoryStructural, []string{"estructur", "structural", "cimentac", "forjado"}},
	{CategoryRegulatory, []string{"normativ", "regulat", "legal", "licencia", "permiso", "certificad"}},
	{CategoryFinancial, []string{"financ", "econom", "subvenc", "ayuda", "inversi"}},
}

var (
	sentenceRe  = regexp.MustCompile(`[^.!?\n]+[.!?]*`)
	separatorRe = regexp.MustCompile(`\r?\n|[•·▪]|\s[-–]\s|^\s*[-–*]\s`)

	recommendationNS = uuid.NewSHA1(uuid.NameSpaceURL, []byte("estate-compliance/recommendation"))
)

// Map converts a normalized raw record into a Record.
func Map(raw Object) (*Record, error) {
	if !hasMarker(raw) {
		return nil, fmt.Errorf("%w: record has neither %s nor %s", ErrMapping, FieldStatus, FieldMeasures)
	}

	status := strings.ToLower(strings.TrimSpace(stringField(raw, FieldStatus)))
	complies := compliantStatuses[status]
	rationale := strings.TrimSpace(stringField(raw, fieldRationale))

	rec := &Record{
		Complies:        complies,
		Score:           score(stringField(raw, fieldTrafficLight), status, complies),
		Status:          NormalizeText(status),
		CurrentRating:   NormalizeText(stringField(raw, fieldCurrent)),
		TargetRating:    NormalizeText(stringField(raw, fieldTarget)),
		Rationale:       rationale,
		MainIssues:      mainIssues(rationale),
		Recommendations: []Recommendation{},
		LegalReferences: []string{},
		Checklist:       checklist(raw),
	}

	for _, ref := range stringList(raw, fieldLegal) {
		rec.LegalReferences = append(rec.LegalReferences, NormalizeText(ref))
	}
	if inputs, ok := raw.Get(fieldInputs); ok {
		if o, ok := inputs.(Object); ok {
			rec.InputMetrics = o.ToMap()
		}
	}

	if mv, ok := raw.Get(FieldMeasures); ok {
		if measures, ok := mv.([]any); ok {
			for i, m := range measures {
				mo, ok := m.(Object)
				if !ok {
					continue
				}
				if r, ok := recommendation(i, mo); ok {
					rec.Recommendations = append(rec.Recommendations, r)
				}
			}
		}
	}
	return rec, nil
}

func score(light, status string, complies bool) int {
	switch strings.ToLower(strings.TrimSpace(light)) {
	case "green", "verde":
		return 80
	case "yellow", "amarillo":
		return 50
	case "red", "rojo":
		return 30
	}
	switch {
	case complies:
		return 75
	case strings.Contains(status, "partial"), strings.Contains(status, "parcial"):
		return 45
	case strings.Contains(status, "uncertain"), strings.Contains(status, "incierto"),
		strings.Contains(status, "unknown"), strings.Contains(status, "desconocido"):
		return 40
	default:
		return 25
	}
}

func mainIssues(rationale string) []string {
	issues := []string{}
	if rationale == "" {
		return issues
	}
	for _, s := range sentenceRe.FindAllString(rationale, -1) {
		s = strings.TrimSpace(s)
		if s != "" && hasNegation(s) {
			issues = append(issues, s)
		}
	}
	if len(issues) == 0 {
		r := []rune(rationale)
		if len(r) > issueFallbackRunes {
			r = r[:issueFallbackRunes]
		}
		issues = append(issues, string(r))
	}
	return issues
}

func hasNegation(sentence string) bool {
	lower := strings.ToLower(sentence)
	if strings.Contains(lower, "missing") || strings.Contains(lower, "not possible") {
		return true
	}
	words := strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if w == "no" || w == "falta" || w == "faltan" {
			return true
		}
	}
	return false
}

func recommendation(i int, m Object) (Recommendation, bool) {
	desc := strings.TrimSpace(stringField(m, measureDesc))
	if desc == "" {
		return Recommendation{}, false
	}
	title := NormalizeText(stringField(m, measureTitle))
	changes := changeItems(desc, stringField(m, measureNotes))
	if title == "" {
		title = NormalizeText(changes[0])
	}

	id := strings.TrimSpace(stringField(m, measureID))
	if id == "" {
		id = uuid.NewSHA1(recommendationNS, []byte(fmt.Sprintf("%d:%s", i, title))).String()
	}

	return Recommendation{
		ID:           id,
		Title:        title,
		Description:  desc,
		Priority:     priority(m),
		Category:     category(stringField(m, measureCategory)),
		Changes:      changes,
		Cost:         costRange(m),
		Payback:      strings.TrimSpace(stringField(m, measurePayback)),
		Dependencies: stringList(m, measureDeps),
	}, true
}

// priority prefers the tri-state flag over the numeric priority
func priority(m Object) Priority {
	switch strings.ToLower(strings.TrimSpace(stringField(m, fieldTrafficLight))) {
	case "red", "rojo":
		return PriorityUrgent
	case "yellow", "amarillo":
		return PriorityImportant
	case "green", "verde":
		return PriorityRecommended
	}
	n, ok := numberField(m, measurePriority)
	switch {
	case !ok:
		return PriorityRecommended
	case n <= 3:
		return PriorityUrgent
	case n <= 6:
		return PriorityImportant
	default:
		return PriorityRecommended
	}
}

func category(s string) Category {
	lower := strings.ToLower(s)
	for _, c := range categoryKeywords {
		for _, w := range c.words {
			if strings.Contains(lower, w) {
				return c.category
			}
		}
	}
	return CategoryEnergy
}

func changeItems(desc, notes string) []string {
	if items := splitItems(desc); len(items) >= 2 {
		return firstN(items, maxChanges)
	}
	if items := splitItems(notes); len(items) > 0 {
		return firstN(items, maxChanges)
	}
	return []string{desc}
}

func splitItems(s string) []string {
	var out []string
	for _, part := range separatorRe.Split(s, -1) {
		part = strings.Trim(part, " \t-–*•·▪")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func costRange(m Object) *CostRange {
	if v, ok := m.Get(measureCost); ok {
		switch c := v.(type) {
		case Object:
			currency := stringField(c, "moneda")
			if currency == "" {
				currency = defaultCurrency
			}
			return rangeOf(c, "min", "max", currency)
		case float64:
			return &CostRange{Min: c, Max: c, Currency: defaultCurrency}
		}
	}
	return rangeOf(m, measureCostMin, measureCostMax, defaultCurrency)
}

// rangeOf reads a min/max pair; a single bound is used for both ends
func rangeOf(o Object, minKey, maxKey, currency string) *CostRange {
	lo, loOK := numberField(o, minKey)
	hi, hiOK := numberField(o, maxKey)
	switch {
	case !loOK && !hiOK:
		return nil
	case !loOK:
		lo = hi
	case !hiOK:
		hi = lo
	}
	return &CostRange{Min: lo, Max: hi, Currency: currency}
}

func checklist(raw Object) ChecklistSummary {
	sum := ChecklistSummary{Items: []ChecklistItem{}}
	v, ok := raw.Get(fieldChecklist)
	if !ok {
		return sum
	}
	add := func(label string, passed bool) {
		sum.Items = append(sum.Items, ChecklistItem{Label: NormalizeText(label), Passed: passed})
		sum.Total++
		if passed {
			sum.Passed++
		} else {
			sum.Failed++
		}
	}
	switch c := v.(type) {
	case []any:
		for _, it := range c {
			o, ok := it.(Object)
			if !ok {
				continue
			}
			label := stringField(o, "item")
			if label == "" {
				label = stringField(o, measureDesc)
			}
			cv, _ := o.Get("cumple")
			add(label, truthy(cv))
		}
	case Object:
		for _, k := range c.keys {
			add(k, truthy(c.values[k]))
		}
	}
	return sum
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "si", "sí", "yes", "true", "cumple", "ok":
			return true
		}
	}
	return false
}

func stringField(o Object, key string) string {
	v, ok := o.Get(key)
	if !ok {
		return ""
	}
	return scalarString(v)
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func numberField(o Object, key string) (float64, bool) {
	v, ok := o.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return n, err == nil
	}
	return 0, false
}

// stringList reads an array of scalars, or a single string, as a list
func stringList(o Object, key string) []string {
	out := []string{}
	v, ok := o.Get(key)
	if !ok {
		return out
	}
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			if s := strings.TrimSpace(scalarString(e)); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// NormalizeText turns "cumple_parcialmente" into "Cumple Parcialmente".
func NormalizeText(s string) string {
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " ")
	if s == "" {
		return ""
	}
	return cases.Title(language.Und).String(s)
}
