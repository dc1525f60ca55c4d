package workflow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/studio-pratiche/internal/model"
)

// NewCaseFile returns a case file in progress with a codice following the
// highest one issued in the same year.
func NewCaseFile(existing []model.CaseFile, cliente, indirizzo, agenzia string, now time.Time) (model.CaseFile, error) {
	if strings.TrimSpace(cliente) == "" {
		return model.CaseFile{}, fmt.Errorf("%w: cliente is required", ErrInvalidValue)
	}
	return model.CaseFile{
		Codice:             NextCodice(existing, now),
		Cliente:            strings.TrimSpace(cliente),
		Indirizzo:          strings.TrimSpace(indirizzo),
		Agenzia:            strings.TrimSpace(agenzia),
		Stato:              model.StatoInCorso,
		Workflow:           make(map[model.StageID]*model.WorkflowStage),
		DataCreazione:      now,
		DataUltimaModifica: now,
	}, nil
}

// NextCodice returns the next "YYYY-NNN" code for the year of now.
func NextCodice(existing []model.CaseFile, now time.Time) string {
	prefix := strconv.Itoa(now.Year()) + "-"
	highest := 0
	for _, cf := range existing {
		rest, ok := strings.CutPrefix(cf.Codice, prefix)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(rest); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%03d", prefix, highest+1)
}

// SetStato changes the lifecycle state of cf.
func SetStato(cf model.CaseFile, stato model.Stato, now time.Time) (model.CaseFile, error) {
	if !stato.Valid() {
		return cf, fmt.Errorf("%w: stato %q", ErrInvalidValue, stato)
	}
	out := cf.Clone()
	out.Stato = stato
	out.DataUltimaModifica = now
	return out, nil
}
