package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nhle/studio-pratiche/internal/money"
)

// Document field names as persisted in the case-file store.
const (
	FieldCodice               = "codice"
	FieldIndirizzo            = "indirizzo"
	FieldCliente              = "cliente"
	FieldProprieta            = "proprieta"
	FieldAgenzia              = "agenzia"
	FieldCollaboratore        = "collaboratore"
	FieldStato                = "stato"
	FieldWorkflow             = "workflow"
	FieldImportoTotale        = "importoTotale"
	FieldImportoCollaboratore = "importoCollaboratore"
	FieldImportoFirmatario    = "importoFirmatario"
	FieldTariffaForfettaria   = "tariffaForfettaria"
	FieldDataCreazione        = "dataCreazione"
	FieldDataUltimaModifica   = "dataUltimaModifica"
)

// WorkflowPath returns the dotted document path of a stage.
func WorkflowPath(id StageID) string {
	return FieldWorkflow + "." + string(id)
}

// EncodeCaseFile converts a case file to its stored document. Times stay
// time.Time so each store can map them to its native timestamp type.
func EncodeCaseFile(c CaseFile) map[string]any {
	wf := make(map[string]any, len(c.Workflow)+len(c.Extra))
	for k, v := range c.Extra {
		wf[k] = v
	}
	for id, st := range c.Workflow {
		if st != nil {
			wf[string(id)] = EncodeStage(*st)
		}
	}

	return map[string]any{
		FieldCodice:               c.Codice,
		FieldIndirizzo:            c.Indirizzo,
		FieldCliente:              c.Cliente,
		FieldProprieta:            c.Proprieta,
		FieldAgenzia:              nullableString(c.Agenzia),
		FieldCollaboratore:        c.Collaboratore,
		FieldStato:                string(c.Stato),
		FieldWorkflow:             wf,
		FieldImportoTotale:        c.ImportoTotale.InexactFloat64(),
		FieldImportoCollaboratore: c.ImportoCollaboratore.InexactFloat64(),
		FieldImportoFirmatario:    c.ImportoFirmatario.InexactFloat64(),
		FieldTariffaForfettaria:   c.FlatFee,
		FieldDataCreazione:        c.DataCreazione,
		FieldDataUltimaModifica:   c.DataUltimaModifica,
	}
}

// EncodeStage converts a stage to its stored form. Payment fields are
// flattened into the stage object, one set per role.
func EncodeStage(s WorkflowStage) map[string]any {
	notes := make([]any, 0, len(s.Notes))
	for _, n := range s.Notes {
		notes = append(notes, map[string]any{
			"id":   n.ID,
			"text": n.Text,
			"date": n.Date,
		})
	}
	tasks := make([]any, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		tasks = append(tasks, encodeTask(t))
	}

	out := map[string]any{
		"completed": s.Completed,
		"notes":     notes,
		"tasks":     tasks,
	}
	if s.Payment != nil {
		for _, role := range money.Roles {
			a := s.Payment.For(role)
			r := string(role)
			out["importoBase"+r] = a.Base.InexactFloat64()
			out["importo"+r] = a.Gross.InexactFloat64()
			out["applyCassa"+r] = a.ApplyCassa
			if role.AppliesIVA() {
				out["applyIVA"+r] = a.ApplyIVA
			}
			out["pagamento"+r+"Date"] = nullableTime(a.PaidAt)
		}
	}
	return out
}

func encodeTask(t Task) map[string]any {
	return map[string]any{
		"id":                    t.ID,
		"text":                  t.Text,
		"completed":             t.Completed,
		"completedDate":         nullableTime(t.CompletedDate),
		"createdDate":           t.CreatedDate,
		"dueDate":               nullableTime(t.DueDate),
		"priority":              nullableString(string(t.Priority)),
		"reminder":              t.Reminder,
		"googleCalendarEventId": nullableString(t.GoogleCalendarEventID),
		"sourceCalendarId":      nullableString(t.SourceCalendarID),
	}
}

// DecodeCaseFile validates a stored document and converts it to a CaseFile.
// Workflow keys outside the stage catalogue are kept in Extra.
func DecodeCaseFile(id string, doc map[string]any) (CaseFile, error) {
	c := CaseFile{
		ID:            id,
		Codice:        asString(doc[FieldCodice]),
		Indirizzo:     asString(doc[FieldIndirizzo]),
		Cliente:       asString(doc[FieldCliente]),
		Proprieta:     asString(doc[FieldProprieta]),
		Agenzia:       asString(doc[FieldAgenzia]),
		Collaboratore: asString(doc[FieldCollaboratore]),
		Stato:         Stato(asString(doc[FieldStato])),
		FlatFee:       asBool(doc[FieldTariffaForfettaria], false),
	}
	if c.Stato == "" {
		c.Stato = StatoInCorso
	}
	if !c.Stato.Valid() {
		return CaseFile{}, fmt.Errorf("case file %s: unknown stato %q", id, c.Stato)
	}

	var err error
	if c.ImportoTotale, err = asDecimal(doc[FieldImportoTotale]); err != nil {
		return CaseFile{}, fmt.Errorf("case file %s: %s: %w", id, FieldImportoTotale, err)
	}
	if c.ImportoCollaboratore, err = asDecimal(doc[FieldImportoCollaboratore]); err != nil {
		return CaseFile{}, fmt.Errorf("case file %s: %s: %w", id, FieldImportoCollaboratore, err)
	}
	if c.ImportoFirmatario, err = asDecimal(doc[FieldImportoFirmatario]); err != nil {
		return CaseFile{}, fmt.Errorf("case file %s: %s: %w", id, FieldImportoFirmatario, err)
	}
	if t, err := asTime(doc[FieldDataCreazione]); err != nil {
		return CaseFile{}, fmt.Errorf("case file %s: %s: %w", id, FieldDataCreazione, err)
	} else if t != nil {
		c.DataCreazione = *t
	}
	if t, err := asTime(doc[FieldDataUltimaModifica]); err != nil {
		return CaseFile{}, fmt.Errorf("case file %s: %s: %w", id, FieldDataUltimaModifica, err)
	} else if t != nil {
		c.DataUltimaModifica = *t
	}

	raw, _ := doc[FieldWorkflow].(map[string]any)
	c.Workflow = make(map[StageID]*WorkflowStage, len(raw))
	for key, v := range raw {
		sid := StageID(key)
		if _, ok := LookupStage(sid); !ok {
			if c.Extra == nil {
				c.Extra = make(map[string]any)
			}
			c.Extra[key] = v
			continue
		}
		m, ok := v.(map[string]any)
		if !ok {
			return CaseFile{}, fmt.Errorf("case file %s: stage %s is %T, not an object", id, key, v)
		}
		st, err := DecodeStage(sid, m)
		if err != nil {
			return CaseFile{}, fmt.Errorf("case file %s: %w", id, err)
		}
		c.Workflow[sid] = st
	}

	return c, nil
}

// DecodeStage converts a stored stage object. Missing payment fields take
// their defaults; notes and tasks stored without an id get a positional one.
func DecodeStage(id StageID, m map[string]any) (*WorkflowStage, error) {
	st := NewStage(id)
	st.Completed = asBool(m["completed"], false)

	notes, err := asList(m["notes"])
	if err != nil {
		return nil, fmt.Errorf("stage %s notes: %w", id, err)
	}
	for i, raw := range notes {
		nm, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("stage %s note %d is %T", id, i, raw)
		}
		date, err := asTime(nm["date"])
		if err != nil {
			return nil, fmt.Errorf("stage %s note %d date: %w", id, i, err)
		}
		n := Note{ID: asString(nm["id"]), Text: asString(nm["text"])}
		if n.ID == "" {
			n.ID = fmt.Sprintf("%s-note-%d", id, i)
		}
		if date != nil {
			n.Date = *date
		}
		st.Notes = append(st.Notes, n)
	}

	tasks, err := asList(m["tasks"])
	if err != nil {
		return nil, fmt.Errorf("stage %s tasks: %w", id, err)
	}
	for i, raw := range tasks {
		tm, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("stage %s task %d is %T", id, i, raw)
		}
		t, err := decodeTask(tm)
		if err != nil {
			return nil, fmt.Errorf("stage %s task %d: %w", id, i, err)
		}
		if t.ID == "" {
			t.ID = fmt.Sprintf("%s-task-%d", id, i)
		}
		st.Tasks = append(st.Tasks, t)
	}

	if st.Payment != nil {
		for _, role := range money.Roles {
			a := st.Payment.For(role)
			r := string(role)
			if a.Base, err = asDecimal(m["importoBase"+r]); err != nil {
				return nil, fmt.Errorf("stage %s importoBase%s: %w", id, r, err)
			}
			if a.Gross, err = asDecimal(m["importo"+r]); err != nil {
				return nil, fmt.Errorf("stage %s importo%s: %w", id, r, err)
			}
			a.ApplyCassa = asBool(m["applyCassa"+r], true)
			if role.AppliesIVA() {
				a.ApplyIVA = asBool(m["applyIVA"+r], true)
			}
			if a.PaidAt, err = asTime(m["pagamento"+r+"Date"]); err != nil {
				return nil, fmt.Errorf("stage %s pagamento%sDate: %w", id, r, err)
			}
		}
	}

	return st, nil
}

func decodeTask(m map[string]any) (Task, error) {
	t := Task{
		ID:                    asString(m["id"]),
		Text:                  asString(m["text"]),
		Completed:             asBool(m["completed"], false),
		Priority:              Priority(asString(m["priority"])),
		Reminder:              asInt(m["reminder"]),
		GoogleCalendarEventID: asString(m["googleCalendarEventId"]),
		SourceCalendarID:      asString(m["sourceCalendarId"]),
	}
	var err error
	if t.CompletedDate, err = asTime(m["completedDate"]); err != nil {
		return Task{}, fmt.Errorf("completedDate: %w", err)
	}
	if t.DueDate, err = asTime(m["dueDate"]); err != nil {
		return Task{}, fmt.Errorf("dueDate: %w", err)
	}
	created, err := asTime(m["createdDate"])
	if err != nil {
		return Task{}, fmt.Errorf("createdDate: %w", err)
	}
	if created != nil {
		t.CreatedDate = *created
	}
	return t, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}

func asList(v any) ([]any, error) {
	switch l := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return l, nil
	}
	return nil, fmt.Errorf("expected a list, got %T", v)
}

// asDecimal reads an amount. Missing or NaN values count as zero.
func asDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, nil
	case float64:
		if n != n {
			return decimal.Zero, nil
		}
		return decimal.NewFromFloat(n).Round(2), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		if n == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(n)
	}
	return decimal.Zero, fmt.Errorf("expected a number, got %T", v)
}

// asTime reads a timestamp stored either natively or as RFC 3339 text.
func asTime(v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if t.IsZero() {
			return nil, nil
		}
		return &t, nil
	case *time.Time:
		return t, nil
	case string:
		if t == "" {
			return nil, nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil, err
		}
		if parsed.IsZero() {
			return nil, nil
		}
		return &parsed, nil
	case float64:
		ms := int64(t)
		parsed := time.UnixMilli(ms).UTC()
		return &parsed, nil
	case json.Number:
		ms, err := strconv.ParseInt(t.String(), 10, 64)
		if err != nil {
			return nil, err
		}
		parsed := time.UnixMilli(ms).UTC()
		return &parsed, nil
	}
	return nil, fmt.Errorf("expected a timestamp, got %T", v)
}
