package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/bryanwahyu/estate-compliance/internal/domain/compliance"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior building compliance auditor for Spanish residential estates. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- cumplimiento_actual is one of: cumple, cumple_completamente, parcial, incierto, no_cumple.
- semaforo is one of: verde, amarillo, rojo.
- medidas_recomendadas is an array; every measure needs a descripcion. prioridad is a number from 1 (most urgent) to 10; a measure may carry its own semaforo instead.
- Split the steps of a measure with line breaks or bullets inside descripcion.
- If data is missing, say so in justificacion and use incierto.

Schema (example with empty values):
{
  "cumplimiento_actual": "<string>",
  "semaforo": "<string>",
  "justificacion": "<string>",
  "calificacion_actual": "<A-G>",
  "calificacion_objetivo": "<A-G>",
  "referencias_normativas": ["<string>"],
  "checklist": [{"item": "<string>", "cumple": false}],
  "datos_entrada": {},
  "medidas_recomendadas": [
    {
      "titulo": "<string>",
      "descripcion": "<string>",
      "prioridad": 1,
      "categoria": "<string>",
      "coste_estimado": {"min": 0, "max": 0, "moneda": "EUR"},
      "retorno_inversion": "<string>",
      "dependencias": ["<string>"]
    }
  ]
}`
}

// GetUserPrompt builds a compact user message around the building.
func GetUserPrompt(b *compliance.Building) string {
	data, err := json.Marshal(b)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"id":%q}`, b.ID))
	}
	return fmt.Sprintf("Assess the energy and regulatory compliance of this building and respond with the JSON per schema. Building: %s", data)
}
