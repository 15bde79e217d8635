package compliance

import "time"

// SubjectID identifies the building being analysed
type SubjectID string

// Priority bucket of a recommendation
type Priority string

const (
	PriorityUrgent      Priority = "urgent"
	PriorityImportant   Priority = "important"
	PriorityRecommended Priority = "recommended"
)

// Category bucket of a recommendation
type Category string

const (
	CategoryEnergy     Category = "energy"
	CategoryStructural Category = "structural"
	CategoryRegulatory Category = "regulatory"
	CategoryFinancial  Category = "financial"
)

// CostRange value object, amounts in Currency
type CostRange struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
}

// Recommendation is one improvement measure derived from the analysis
type Recommendation struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Priority     Priority   `json:"priority"`
	Category     Category   `json:"category"`
	Changes      []string   `json:"changes"`
	Cost         *CostRange `json:"cost,omitempty"`
	Payback      string     `json:"payback,omitempty"`
	Dependencies []string   `json:"dependencies"`
}

// ChecklistItem is a single regulatory check
type ChecklistItem struct {
	Label  string `json:"label"`
	Passed bool   `json:"passed"`
}

// ChecklistSummary rekap checklist dari analisis
type ChecklistSummary struct {
	Total  int             `json:"total"`
	Passed int             `json:"passed"`
	Failed int             `json:"failed"`
	Items  []ChecklistItem `json:"items"`
}

// Record is the canonical compliance analysis of one building.
// A Record is never mutated after Map returns it; reloads replace it wholesale.
type Record struct {
	Complies        bool             `json:"complies"`
	Score           int              `json:"score"`
	Status          string           `json:"status"`
	CurrentRating   string           `json:"current_rating,omitempty"`
	TargetRating    string           `json:"target_rating,omitempty"`
	Rationale       string           `json:"rationale"`
	MainIssues      []string         `json:"main_issues"`
	Recommendations []Recommendation `json:"recommendations"`
	LegalReferences []string         `json:"legal_references"`
	Checklist       ChecklistSummary `json:"checklist"`
	InputMetrics    map[string]any   `json:"input_metrics"`
}

// Building is the subject record returned by the building collaborator
type Building struct {
	ID           SubjectID      `json:"id"`
	Name         string         `json:"name"`
	Address      string         `json:"address,omitempty"`
	Municipality string         `json:"municipality,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// CacheEntry is what the persistent cache stores per subject
type CacheEntry struct {
	SubjectID SubjectID `json:"subjectId"`
	Record    *Record   `json:"record"`
	StoredAt  time.Time `json:"storedAt"`
}
