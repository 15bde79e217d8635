package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bryanwahyu/estate-compliance/internal/domain/compliance"
)

func TestSystemPromptNamesEveryField(t *testing.T) {
	p := GetSystemPrompt()
	for _, field := range []string{
		"cumplimiento_actual", "semaforo", "justificacion", "checklist",
		"medidas_recomendadas", "prioridad", "coste_estimado",
	} {
		assert.Contains(t, p, field)
	}
}

func TestUserPromptEmbedsBuilding(t *testing.T) {
	p := GetUserPrompt(&compliance.Building{ID: "b-9", Name: "Torre Norte"})
	assert.Contains(t, p, `"id":"b-9"`)
	assert.Contains(t, p, `"name":"Torre Norte"`)
}
