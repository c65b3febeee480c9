package flow

import (
	"log/slog"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"golang.org/x/text/cases"
)

// Global command keywords, matched against normalized input.
var (
	ExitKeywords  = []string{"salir", "cancelar", "exit"}
	ResetKeywords = []string{"menu", "menú", "0", "inicio"}
)

// Normalize trims and case-folds input for keyword matching.
func Normalize(raw string) string {
	return cases.Fold().String(strings.TrimSpace(raw))
}

// Interceptor handles the exit and reset keywords before any stage sees the input.
type Interceptor struct {
	vertical *Vertical
	exit     map[string]bool
	reset    map[string]bool
}

// NewInterceptor builds the keyword sets for a vertical.
func NewInterceptor(v *Vertical) *Interceptor {
	i := &Interceptor{
		vertical: v,
		exit:     make(map[string]bool),
		reset:    make(map[string]bool),
	}
	for _, k := range ExitKeywords {
		i.exit[Normalize(k)] = true
	}
	for _, k := range ResetKeywords {
		i.reset[Normalize(k)] = true
	}
	for _, k := range v.ResetKeywords {
		i.reset[Normalize(k)] = true
	}
	return i
}

// Intercept applies a global command to the session. ok is false when the
// input is not a command and should go to the stage machine.
func (i *Interceptor) Intercept(sess *models.Session, norm string) (res StepResult, ok bool) {
	switch {
	case i.exit[norm]:
		slog.Debug("Interceptor.Intercept: exit", "vertical", i.vertical.Name, "identity", sess.Identity, "stage", sess.Stage)
		sess.Close()
		return StepResult{
			Messages: []models.Outbound{models.Text(i.vertical.ExitReply)},
			Ended:    true,
			Outcome:  OutcomeExit,
		}, true

	case i.reset[norm]:
		slog.Debug("Interceptor.Intercept: reset", "vertical", i.vertical.Name, "identity", sess.Identity,
			"stage", sess.Stage, "clears_fields", i.vertical.ResetClearsFields)
		if i.vertical.ResetClearsFields {
			sess.Close()
		} else {
			sess.Stage = i.vertical.Initial
		}
		return StepResult{
			Messages: []models.Outbound{models.Text(i.vertical.ResetReply)},
			Outcome:  OutcomeReset,
		}, true
	}
	return StepResult{}, false
}
