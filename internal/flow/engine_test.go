package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/LeadPipe/internal/enrich"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

type fakeLookup struct {
	result models.StatusResult
	err    error
	calls  []string
}

func (f *fakeLookup) Query(_ context.Context, resource, reference string) (models.StatusResult, error) {
	f.calls = append(f.calls, resource+"/"+reference)
	return f.result, f.err
}

func newTestEngine(t *testing.T, name string, opts ...EngineOption) (*Engine, *models.Session) {
	t.Helper()
	v, err := Lookup(name, Assets{})
	if err != nil {
		t.Fatalf("Lookup(%s) failed: %v", name, err)
	}
	e, err := NewEngine(v, opts...)
	if err != nil {
		t.Fatalf("NewEngine(%s) failed: %v", name, err)
	}
	return e, models.NewSession("51999000111", name, v.Initial)
}

func send(t *testing.T, e *Engine, sess *models.Session, text string) StepResult {
	t.Helper()
	res, err := e.Handle(context.Background(), sess, text)
	if err != nil {
		t.Fatalf("Handle(%q) failed: %v", text, err)
	}
	return res
}

func lastText(res StepResult) string {
	for i := len(res.Messages) - 1; i >= 0; i-- {
		if res.Messages[i].Kind == models.OutboundText {
			return res.Messages[i].Body
		}
	}
	return ""
}

func TestAllVerticalsLoad(t *testing.T) {
	for _, name := range Names() {
		if _, err := newEngineFor(name); err != nil {
			t.Errorf("vertical %s failed to load: %v", name, err)
		}
	}
	if _, err := Lookup("bakery", Assets{}); err == nil {
		t.Error("Expected error for unknown vertical")
	}
}

func newEngineFor(name string) (*Engine, error) {
	v, err := Lookup(name, Assets{})
	if err != nil {
		return nil, err
	}
	return NewEngine(v)
}

func TestNewEngine_RejectsBrokenTables(t *testing.T) {
	tests := []struct {
		name string
		v    *Vertical
	}{
		{"missing initial", &Vertical{Name: "x", Initial: "NOPE", Stages: []Stage{{Name: "A", Kind: KindCollect, Field: "f", Next: "A"}}}},
		{"dangling next", &Vertical{Name: "x", Initial: "A", Stages: []Stage{{Name: "A", Kind: KindCollect, Field: "f", Next: "B"}}}},
		{"collect without field", &Vertical{Name: "x", Initial: "A", Stages: []Stage{{Name: "A", Kind: KindCollect, Next: "A"}}}},
		{"bad template", &Vertical{Name: "x", Initial: "A", Stages: []Stage{{Name: "A", Kind: KindPrompt, Prompt: "{{.x", Next: "A"}}}},
		{"duplicate stage", &Vertical{Name: "x", Initial: "A", Stages: []Stage{
			{Name: "A", Kind: KindPrompt, Next: "A"},
			{Name: "A", Kind: KindPrompt, Next: "A"},
		}}},
	}
	for _, tt := range tests {
		if _, err := NewEngine(tt.v); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
	if _, err := NewEngine(nil); err == nil {
		t.Error("Expected error for nil vertical")
	}
}

func TestAgencyEndToEnd(t *testing.T) {
	e, sess := newTestEngine(t, VerticalAgency)

	res := send(t, e, sess, "hola")
	if !strings.Contains(lastText(res), "¿cómo te llamas?") || sess.Stage != "ASK_NAME" {
		t.Fatalf("Expected greeting and ASK_NAME, got %q at %s", lastText(res), sess.Stage)
	}

	res = send(t, e, sess, "Ana")
	if !strings.Contains(lastText(res), "¡Gracias, *Ana*!") || sess.Stage != "ASK_SERVICE" {
		t.Fatalf("Expected service prompt, got %q at %s", lastText(res), sess.Stage)
	}

	res = send(t, e, sess, "2")
	canned := "Sistema a medida o SaaS multitenant para gestionar procesos de tu empresa."
	if sess.Get("servicio") != canned {
		t.Fatalf("Expected canned service description, got %q", sess.Get("servicio"))
	}
	if !strings.Contains(lastText(res), "📌 Interés: *"+canned+"*") {
		t.Errorf("Expected business prompt to echo the service, got %q", lastText(res))
	}

	send(t, e, sess, "clínica en Lima")
	if sess.Stage != "ASK_BUDGET" {
		t.Fatalf("Expected ASK_BUDGET, got %s", sess.Stage)
	}
	send(t, e, sess, "alto")
	if sess.Stage != "ASK_CONTACT" {
		t.Fatalf("Expected ASK_CONTACT, got %s", sess.Stage)
	}

	res = send(t, e, sess, "ana@x.com")
	summary := lastText(res)
	for _, want := range []string{"Ana", canned, "clínica en Lima", "alto", "ana@x.com"} {
		if !strings.Contains(summary, want) {
			t.Errorf("Summary missing %q: %q", want, summary)
		}
	}
	if !sess.Closed || !res.Ended || res.Outcome != OutcomeComplete {
		t.Errorf("Expected the session to be closed after completion")
	}
	if res.Record == nil {
		t.Fatal("Expected a lead record")
	}
	rec := *res.Record
	if rec.Kind != "lead" || rec.Identity != "51999000111" || rec.BusinessType != "agencia" {
		t.Errorf("Unexpected record header: %+v", rec)
	}
	keys := make([]string, 0, len(rec.Fields))
	for _, f := range rec.Fields {
		keys = append(keys, f.Key)
	}
	if strings.Join(keys, ",") != "nombre,servicio,negocio,presupuesto,contacto" {
		t.Errorf("Unexpected field order: %v", keys)
	}
	if !res.Effects.Persist || !res.Effects.Notify || res.Effects.Create {
		t.Errorf("Unexpected effects: %+v", res.Effects)
	}

	lead := enrich.Enrich(rec, e.Vertical().Source)
	if lead.ClientType != "b2b" || lead.Language != "es" || lead.Country != "Peru" {
		t.Errorf("Unexpected enrichment: %+v", lead)
	}

	// next contact starts over
	fresh := models.NewSession(sess.Identity, VerticalAgency, e.Vertical().Initial)
	res = send(t, e, fresh, "hola")
	if fresh.Stage != "ASK_NAME" || !strings.Contains(lastText(res), "¿cómo te llamas?") {
		t.Errorf("Expected restart from greeting, got %q", lastText(res))
	}
}

func TestAgencyGreetingVariant(t *testing.T) {
	e, sess := newTestEngine(t, VerticalAgency)
	res := send(t, e, sess, "quiero una web")
	if !strings.Contains(lastText(res), "dime por favor tu *nombre*") {
		t.Errorf("Expected plain welcome for non-greeting input, got %q", lastText(res))
	}
	if sess.Get("nombre") != "" {
		t.Error("First message must not be stored as a name")
	}
}

func TestExitFromAnyStageClosesSession(t *testing.T) {
	for _, name := range Names() {
		v, _ := Lookup(name, Assets{})
		for _, st := range v.Stages {
			for _, kw := range []string{"salir", "  CANCELAR ", "Exit"} {
				e, sess := newTestEngine(t, name)
				sess.Stage = st.Name
				sess.Set("nombre", "Ana")
				res := send(t, e, sess, kw)
				if !sess.Closed || res.Outcome != OutcomeExit {
					t.Errorf("%s/%s: %q did not close the session", name, st.Name, kw)
				}
				if lastText(res) != v.ExitReply {
					t.Errorf("%s: unexpected exit reply %q", name, lastText(res))
				}
			}
		}
	}
}

func TestResetRespectsVerticalFlag(t *testing.T) {
	for _, name := range Names() {
		v, _ := Lookup(name, Assets{})
		for _, st := range v.Stages {
			e, sess := newTestEngine(t, name)
			sess.Stage = st.Name
			sess.Set("nombre", "Ana")
			res := send(t, e, sess, "MENÚ")
			if res.Outcome != OutcomeReset {
				t.Fatalf("%s/%s: expected reset outcome, got %s", name, st.Name, res.Outcome)
			}
			if v.ResetClearsFields {
				if !sess.Closed {
					t.Errorf("%s: reset should delete the session", name)
				}
				continue
			}
			if sess.Closed || sess.Stage != v.Initial {
				t.Errorf("%s: reset should rewind to %s, got %s", name, v.Initial, sess.Stage)
			}
			if sess.Get("nombre") != "Ana" {
				t.Errorf("%s: reset should keep collected fields", name)
			}
		}
	}
}

func TestResetOnMenuFirstVerticalReshowsMenu(t *testing.T) {
	for _, name := range []string{VerticalClinic, VerticalRealEstate, VerticalRestaurant} {
		e, sess := newTestEngine(t, name)
		sess.Stage = "WAIT_OPTION"
		if res := send(t, e, sess, "menu"); res.Outcome != OutcomeReset || !sess.Closed {
			t.Fatalf("%s: expected reset to delete the session, got %s", name, res.Outcome)
		}

		// the store hands out a fresh session after a delete
		sess = models.NewSession(sess.Identity, name, e.vertical.Initial)
		menu := e.stages[e.vertical.Initial].Prompt
		res := send(t, e, sess, "blah")
		if lastText(res) != menu || sess.Stage != "WAIT_OPTION" {
			t.Errorf("%s: expected the menu after reset, got %q at %s", name, lastText(res), sess.Stage)
		}
		res = send(t, e, sess, "blah")
		if !strings.HasPrefix(lastText(res), "Opción no válida") {
			t.Errorf("%s: expected invalid option once the menu is shown, got %q", name, lastText(res))
		}
	}
}

func TestVerticalResetKeywords(t *testing.T) {
	e, sess := newTestEngine(t, VerticalCourier)
	for _, kw := range []string{"envío", "ENVIO", "hola", "0", "inicio"} {
		sess.Closed = false
		sess.Stage = "ASK_CODE"
		if res := send(t, e, sess, kw); res.Outcome != OutcomeReset {
			t.Errorf("Expected %q to reset courier, got %s", kw, res.Outcome)
		}
	}
	// clinic keywords do not leak into other verticals
	e, sess = newTestEngine(t, VerticalRestaurant)
	sess.Stage = "RESERVA_NAME"
	send(t, e, sess, "cita")
	if sess.Get("nombre") != "cita" {
		t.Errorf("Expected restaurant to store 'cita' verbatim, got %q", sess.Get("nombre"))
	}
}

func TestUnrecognizedSelectionKeepsStage(t *testing.T) {
	tests := []struct {
		vertical string
		stage    string
	}{
		{VerticalGeneric, "AWAIT_OPTION"},
		{VerticalClinic, "WAIT_OPTION"},
		{VerticalRealEstate, "WAIT_OPTION"},
		{VerticalRestaurant, "WAIT_OPTION"},
	}
	for _, tt := range tests {
		e, sess := newTestEngine(t, tt.vertical)
		sess.Stage = tt.stage
		for _, junk := range []string{"9", "blah", "12", "🍕"} {
			res := send(t, e, sess, junk)
			if sess.Stage != tt.stage || res.Outcome != OutcomeInvalid {
				t.Errorf("%s: %q moved the stage to %s", tt.vertical, junk, sess.Stage)
			}
			if len(res.Messages) != 1 {
				t.Errorf("%s: expected a single invalid-option reply", tt.vertical)
			}
		}
	}
}

func TestGenericMenuFallsThroughOnFirstMessage(t *testing.T) {
	e, sess := newTestEngine(t, VerticalGeneric)
	res := send(t, e, sess, "2")
	if len(res.Messages) != 2 || res.Messages[0].Kind != models.OutboundDocument {
		t.Fatalf("Expected document then text, got %+v", res.Messages)
	}
	if res.Messages[0].URL != DefaultBrochureURL || res.Messages[0].Filename != "brochure-servicios.pdf" {
		t.Errorf("Unexpected document: %+v", res.Messages[0])
	}
	if sess.Stage != "AWAIT_OPTION" {
		t.Errorf("Expected to stay on AWAIT_OPTION, got %s", sess.Stage)
	}

	res = send(t, e, sess, "3")
	if res.Messages[0].Kind != models.OutboundLocation || res.Messages[0].Lat != officeLat {
		t.Errorf("Expected location pin, got %+v", res.Messages[0])
	}
}

func TestGenericAdvisorProducesLead(t *testing.T) {
	e, sess := newTestEngine(t, VerticalGeneric)
	send(t, e, sess, "hola")
	res := send(t, e, sess, "4")
	if sess.Stage != "ASK_REQUEST" || !strings.Contains(lastText(res), "asesor humano") {
		t.Fatalf("Expected advisor prompt, got %q at %s", lastText(res), sess.Stage)
	}
	send(t, e, sess, "Necesito una cotización")
	res = send(t, e, sess, "+51 999 000 111")
	if res.Record == nil || res.Record.Kind != "asesor" || res.Record.Value("solicitud") != "Necesito una cotización" {
		t.Errorf("Unexpected advisor record: %+v", res.Record)
	}
}

func TestClinicAppointmentEffects(t *testing.T) {
	e, sess := newTestEngine(t, VerticalClinic)
	send(t, e, sess, "1")
	for _, in := range []string{"Luis Pérez", "pediatría", "25/11 en la mañana"} {
		send(t, e, sess, in)
	}
	res := send(t, e, sess, "luis@correo.pe")
	if res.Record == nil {
		t.Fatal("Expected a record")
	}
	if !res.Effects.Create || res.Effects.Resource != models.ResourceAppointments || res.Effects.IDField != "codigo_cita" || res.Effects.IDFallback != "SIN-CODIGO" {
		t.Errorf("Unexpected effects: %+v", res.Effects)
	}
	if res.Record.Value("especialidad") != "pediatría" {
		t.Errorf("Expected specialty verbatim, got %q", res.Record.Value("especialidad"))
	}
}

func TestCourierLookup(t *testing.T) {
	lookup := &fakeLookup{result: models.StatusResult{
		Found:       true,
		Fields:      map[string]string{"estado": "En tránsito", "ultima_actualizacion": "Hoy", "ubicacion": "Centro de distribución principal"},
		HasLocation: true,
		Lat:         -12.04,
		Lng:         -77.04,
	}}
	e, sess := newTestEngine(t, VerticalCourier, WithLookup(lookup))

	res := send(t, e, sess, " ABC123 ")
	if len(lookup.calls) != 1 || lookup.calls[0] != "tracking/ABC123" {
		t.Fatalf("Unexpected lookups: %v", lookup.calls)
	}
	if len(res.Messages) != 2 {
		t.Fatalf("Expected status text and location, got %d messages", len(res.Messages))
	}
	if !strings.Contains(res.Messages[0].Body, "(ABC123)") || !strings.Contains(res.Messages[0].Body, "Estado: En tránsito") {
		t.Errorf("Unexpected status text: %q", res.Messages[0].Body)
	}
	pin := res.Messages[1]
	if pin.Kind != models.OutboundLocation || pin.Name != "Última ubicación registrada" || pin.Address != "Centro de distribución principal" {
		t.Errorf("Unexpected pin: %+v", pin)
	}
	if res.Audit == nil || !res.Audit.Found || res.Audit.Reference != "ABC123" {
		t.Errorf("Unexpected audit: %+v", res.Audit)
	}
	if !sess.Closed || res.Record != nil {
		t.Error("Query must close the session without producing a lead")
	}
}

func TestCourierLookupFailureIsNotFound(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("timeout")}
	e, sess := newTestEngine(t, VerticalCourier, WithLookup(lookup))
	res := send(t, e, sess, "XYZ")
	if len(res.Messages) != 1 || !strings.HasPrefix(res.Messages[0].Body, "No pudimos encontrar un envío") {
		t.Errorf("Expected not-found reply, got %+v", res.Messages)
	}
	if res.Audit == nil || res.Audit.Found {
		t.Errorf("Expected an audit marked not found, got %+v", res.Audit)
	}
}

func TestClinicStatusWithoutLookup(t *testing.T) {
	e, sess := newTestEngine(t, VerticalClinic)
	sess.Stage = "ASK_ID_CITA"
	res := send(t, e, sess, "12345678")
	if !strings.HasPrefix(lastText(res), "No pudimos encontrar tu cita") {
		t.Errorf("Expected not-found reply without a lookup, got %q", lastText(res))
	}
}

func TestCollectStoresVerbatimAndRepromptsOnEmpty(t *testing.T) {
	e, sess := newTestEngine(t, VerticalRealEstate)
	send(t, e, sess, "1")
	if sess.Stage != "ASK_PROJECT" {
		t.Fatalf("Expected ASK_PROJECT, got %s", sess.Stage)
	}
	res := send(t, e, sess, "   ")
	if sess.Stage != "ASK_PROJECT" || res.Outcome != OutcomeInvalid {
		t.Errorf("Empty input should re-prompt, got stage %s", sess.Stage)
	}
	send(t, e, sess, "  Departamentos en MIRAFLORES ")
	if got := sess.Get("proyecto_tipo"); got != "Departamentos en MIRAFLORES" {
		t.Errorf("Expected trimmed verbatim value, got %q", got)
	}
}

func TestRealEstateVisitKeyword(t *testing.T) {
	e, sess := newTestEngine(t, VerticalRealEstate)
	send(t, e, sess, "2")
	res := send(t, e, sess, "Visita")
	if sess.Stage != "ASK_NAME" || !strings.Contains(lastText(res), "nombre completo para la visita") {
		t.Errorf("Expected visit flow, got %q at %s", lastText(res), sess.Stage)
	}
	send(t, e, sess, "Rosa")
	res = send(t, e, sess, "25/11 a las 4pm")
	if res.Record == nil || res.Record.Kind != "visita" || res.Effects.Resource != models.ResourceLeads {
		t.Errorf("Unexpected visit completion: %+v %+v", res.Record, res.Effects)
	}
}

func TestRestaurantMenuSendsImage(t *testing.T) {
	e, sess := newTestEngine(t, VerticalRestaurant)
	res := send(t, e, sess, "1")
	if len(res.Messages) != 2 || res.Messages[0].Kind != models.OutboundImage || res.Messages[0].URL != DefaultMenuImageURL {
		t.Errorf("Expected menu image first, got %+v", res.Messages)
	}
	if !strings.Contains(res.Messages[1].Body, DefaultMenuURL) {
		t.Errorf("Expected menu link, got %q", res.Messages[1].Body)
	}
}

func TestStrictValidation(t *testing.T) {
	e, sess := newTestEngine(t, VerticalClinic, WithStrictValidation(true))
	sess.Stage = "ASK_CONTACT"
	res := send(t, e, sess, "mañana")
	if sess.Stage != "ASK_CONTACT" || res.Record != nil {
		t.Error("Strict mode should reject a contact that is neither email nor phone")
	}
	res = send(t, e, sess, "+51 999 000 111")
	if res.Record == nil {
		t.Error("Strict mode should accept a phone number")
	}

	lax, sess := newTestEngine(t, VerticalClinic)
	sess.Stage = "ASK_CONTACT"
	if res := send(t, lax, sess, "mañana"); res.Record == nil {
		t.Error("Default mode must accept any non-empty contact")
	}
}

func TestUnknownStageRestarts(t *testing.T) {
	e, sess := newTestEngine(t, VerticalClinic)
	sess.Stage = "LEGACY_STAGE"
	send(t, e, sess, "hi")
	if sess.Stage != "WAIT_OPTION" {
		t.Errorf("Expected restart at the menu, got %s", sess.Stage)
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"  MENÚ ":  "menú",
		"Salir":    "salir",
		"HOLA\n":   "hola",
		"Envío":    "envío",
		"":         "",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
