package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/chadiek/telecare/internal/session"
)

const summarySystem = "Vous êtes un assistant médical expérimenté, chargé d'extraire les informations clés d'une conversation téléphonique de suivi."

const summaryPromptTemplate = `Veuillez analyser l'historique de conversation ci-dessous, qui correspond à un suivi téléphonique d'un patient âgé.
Aujourd'hui, la date et l'heure actuelles sont %s et nous sommes %s.
À partir de ces échanges, créez un résumé structuré au format JSON contenant les informations suivantes :

- "patient_name": le nom du patient.
- "age": l'âge du patient.
- "conditions": un résumé des conditions ou remarques importantes évoquées (ex. alimentation, sommeil, centres d'intérêt, etc.).
- "next_appointment_datetime": la prochaine date et heure de rendez-vous au format ISO 8601 (YYYY-MM-DDTHH:MM:SS) si mentionnée, sinon "None".
- "conversation_summary": un résumé global de la conversation, en indiquant les points clés évoqués.
- "additional_notes": tout autre élément important qui ressort de la conversation.

Voici l'historique de la conversation :
%s

Veuillez produire uniquement le JSON sans explications supplémentaires.`

// summarySchema validates the shape of the model's JSON before any field is
// trusted. Anything that fails validation degrades to an empty summary.
var summarySchema = jsonschema.MustCompileString("summary.json", `{
	"type": "object",
	"properties": {
		"patient_name": {"type": ["string", "null"]},
		"age": {"type": ["integer", "number", "string", "null"]},
		"conditions": {"type": ["string", "null"]},
		"next_appointment_datetime": {"type": ["string", "null"]},
		"conversation_summary": {"type": ["string", "null"]},
		"additional_notes": {"type": ["string", "null"]}
	}
}`)

// Summarize asks the model for a structured summary of the conversation. A
// transport failure is returned to the caller; a malformed or non-conforming
// response is logged and degrades to an empty Summary with a nil error.
func (c *Client) Summarize(ctx context.Context, conversation string) (session.Summary, error) {
	now := time.Now()
	prompt := fmt.Sprintf(summaryPromptTemplate,
		now.Format("2006-01-02T15:04:05"), frenchWeekday(now.Weekday()), conversation)

	raw, err := c.complete(ctx, summarySystem, prompt)
	if err != nil {
		return session.Summary{}, err
	}
	return parseSummary(raw), nil
}

// parseSummary decodes and validates the model output. Models sometimes wrap
// JSON in markdown fences; those are stripped before decoding.
func parseSummary(raw string) session.Summary {
	raw = stripCodeFence(raw)

	var decoded interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		log.Printf("summary response is not valid JSON, using empty summary: %v", err)
		return session.Summary{}
	}
	if err := summarySchema.Validate(decoded); err != nil {
		log.Printf("summary response failed schema validation, using empty summary: %v", err)
		return session.Summary{}
	}

	fields, ok := decoded.(map[string]interface{})
	if !ok {
		return session.Summary{}
	}
	return session.Summary{
		PatientName:             stringField(fields, "patient_name"),
		Age:                     stringField(fields, "age"),
		Conditions:              stringField(fields, "conditions"),
		NextAppointmentDatetime: appointmentField(fields),
		ConversationSummary:     stringField(fields, "conversation_summary"),
		AdditionalNotes:         stringField(fields, "additional_notes"),
	}
}

func stringField(fields map[string]interface{}, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// appointmentField normalizes the model's "no appointment" spellings to the
// empty string so downstream schedule updates can key on presence.
func appointmentField(fields map[string]interface{}) string {
	v := stringField(fields, "next_appointment_datetime")
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "none", "null":
		return ""
	}
	return v
}

func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}

func frenchWeekday(d time.Weekday) string {
	switch d {
	case time.Monday:
		return "lundi"
	case time.Tuesday:
		return "mardi"
	case time.Wednesday:
		return "mercredi"
	case time.Thursday:
		return "jeudi"
	case time.Friday:
		return "vendredi"
	case time.Saturday:
		return "samedi"
	default:
		return "dimanche"
	}
}
