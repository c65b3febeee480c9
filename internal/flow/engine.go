package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// DefaultLookupTimeout bounds a status lookup made from a query stage.
const DefaultLookupTimeout = 5 * time.Second

// Outcome classifies what a step did, for logging and metrics.
type Outcome string

const (
	OutcomeAdvance  Outcome = "advance"
	OutcomeInvalid  Outcome = "invalid"
	OutcomeComplete Outcome = "complete"
	OutcomeQuery    Outcome = "query"
	OutcomeExit     Outcome = "exit"
	OutcomeReset    Outcome = "reset"
)

// StatusLookup resolves a reference typed by the user into a status record.
type StatusLookup interface {
	Query(ctx context.Context, resource, reference string) (models.StatusResult, error)
}

// StepResult is the outcome of handling one inbound message.
type StepResult struct {
	Messages []models.Outbound
	// Record is set when the message completed a flow.
	Record  *models.LeadRecord
	Effects models.EffectSet
	// Audit is set when a query stage ran.
	Audit   *models.QueryAudit
	Ended   bool
	Outcome Outcome
}

// Engine runs one vertical's stage table.
type Engine struct {
	vertical      *Vertical
	stages        map[string]*Stage
	interceptor   *Interceptor
	tmpl          templates
	lookup        StatusLookup
	lookupTimeout time.Duration
	strict        bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLookup sets the status lookup used by query stages.
func WithLookup(l StatusLookup) EngineOption {
	return func(e *Engine) { e.lookup = l }
}

// WithLookupTimeout overrides DefaultLookupTimeout.
func WithLookupTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.lookupTimeout = d
		}
	}
}

// WithStrictValidation enables format checks on collect stages that declare one.
func WithStrictValidation(enabled bool) EngineOption {
	return func(e *Engine) { e.strict = enabled }
}

// NewEngine validates the vertical's table and prepares its templates.
func NewEngine(v *Vertical, opts ...EngineOption) (*Engine, error) {
	if v == nil {
		return nil, errors.New("vertical is nil")
	}
	e := &Engine{
		vertical:      v,
		stages:        make(map[string]*Stage, len(v.Stages)),
		interceptor:   NewInterceptor(v),
		tmpl:          templates{},
		lookupTimeout: DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	for i := range v.Stages {
		st := &v.Stages[i]
		if _, dup := e.stages[st.Name]; dup {
			return nil, fmt.Errorf("vertical %s: duplicate stage %s", v.Name, st.Name)
		}
		e.stages[st.Name] = st
	}
	if _, ok := e.stages[v.Initial]; !ok {
		return nil, fmt.Errorf("vertical %s: initial stage %s not defined", v.Name, v.Initial)
	}
	for _, st := range e.stages {
		if err := e.check(st); err != nil {
			return nil, fmt.Errorf("vertical %s: stage %s: %w", v.Name, st.Name, err)
		}
	}
	slog.Debug("Engine.New: vertical loaded", "vertical", v.Name, "stages", len(e.stages), "strict", e.strict)
	return e, nil
}

func (e *Engine) check(st *Stage) error {
	known := func(name string) error {
		if name == "" {
			return nil
		}
		if _, ok := e.stages[name]; !ok {
			return fmt.Errorf("unknown next stage %s", name)
		}
		return nil
	}
	srcs := []string{st.Prompt}
	switch st.Kind {
	case KindPrompt:
		if st.Next == "" {
			return errors.New("prompt stage needs a next stage")
		}
		for _, v := range st.Variants {
			srcs = append(srcs, v.Text)
		}
	case KindSelect:
		if len(st.Choices) == 0 {
			return errors.New("select stage has no choices")
		}
		for _, c := range st.Choices {
			if err := known(c.Next); err != nil {
				return err
			}
			for _, m := range c.Send {
				srcs = append(srcs, m.Body, m.Caption, m.Address)
			}
		}
	case KindCollect:
		if st.Field == "" {
			return errors.New("collect stage has no field")
		}
		if st.Complete == nil && st.Next == "" {
			return errors.New("collect stage needs a next stage or a completion")
		}
		if st.Complete != nil {
			srcs = append(srcs, st.Complete.Reply)
		}
	case KindQuery:
		if st.Query == nil || st.Query.Field == "" || st.Query.Resource == "" {
			return errors.New("query stage is incomplete")
		}
		srcs = append(srcs, st.Query.Found, st.Query.NotFound)
	default:
		return fmt.Errorf("unknown stage kind %d", st.Kind)
	}
	if err := known(st.Next); err != nil {
		return err
	}
	for _, s := range srcs {
		if err := e.tmpl.add(s); err != nil {
			return err
		}
	}
	return nil
}

// Vertical returns the table this engine runs.
func (e *Engine) Vertical() *Vertical { return e.vertical }

// Handle applies global commands, then advances the session by one step.
func (e *Engine) Handle(ctx context.Context, sess *models.Session, raw string) (StepResult, error) {
	if res, ok := e.interceptor.Intercept(sess, Normalize(raw)); ok {
		return res, nil
	}
	return e.Step(ctx, sess, raw)
}

// Step advances the session by one message. The session is mutated in place;
// callers persist it afterwards.
func (e *Engine) Step(ctx context.Context, sess *models.Session, raw string) (StepResult, error) {
	if sess == nil {
		return StepResult{}, errors.New("session is nil")
	}
	text := strings.TrimSpace(raw)
	norm := Normalize(raw)

	st, ok := e.stages[sess.Stage]
	if !ok {
		slog.Warn("Engine.Step: unknown stage, restarting", "vertical", e.vertical.Name, "identity", sess.Identity, "stage", sess.Stage)
		sess.Stage = e.vertical.Initial
		st = e.stages[sess.Stage]
	}

	var (
		res StepResult
		err error
	)
	switch st.Kind {
	case KindPrompt:
		res = e.prompt(sess, st, norm)
	case KindSelect:
		res = e.selectStage(sess, st, norm)
	case KindCollect:
		res = e.collect(sess, st, text, norm)
	case KindQuery:
		res, err = e.query(ctx, sess, st, text)
	}
	if err != nil {
		return StepResult{}, err
	}
	slog.Debug("Engine.Step: handled", "vertical", e.vertical.Name, "identity", sess.Identity,
		"from", st.Name, "to", sess.Stage, "outcome", res.Outcome, "messages", len(res.Messages))
	return res, nil
}

func (e *Engine) say(src string, sess *models.Session) models.Outbound {
	return models.Text(e.tmpl.render(src, sess.Fields))
}

// enter moves to a stage and returns its prompt.
func (e *Engine) enter(sess *models.Session, name string) []models.Outbound {
	sess.Stage = name
	st := e.stages[name]
	if st.Prompt == "" {
		return nil
	}
	return []models.Outbound{e.say(st.Prompt, sess)}
}

func (e *Engine) prompt(sess *models.Session, st *Stage, norm string) StepResult {
	// An input that already answers the next menu skips re-showing it.
	if next := e.stages[st.Next]; next.Kind == KindSelect {
		if c := next.match(norm); c != nil {
			sess.Stage = next.Name
			return e.choose(sess, c)
		}
	}
	reply := st.Prompt
	for _, v := range st.Variants {
		if containsKey(v.Keywords, norm) {
			reply = v.Text
			break
		}
	}
	sess.Stage = st.Next
	return StepResult{Messages: []models.Outbound{e.say(reply, sess)}, Outcome: OutcomeAdvance}
}

func (e *Engine) selectStage(sess *models.Session, st *Stage, norm string) StepResult {
	c := st.match(norm)
	if c == nil {
		return StepResult{Messages: []models.Outbound{e.say(st.Invalid, sess)}, Outcome: OutcomeInvalid}
	}
	return e.choose(sess, c)
}

func (e *Engine) choose(sess *models.Session, c *Choice) StepResult {
	msgs := make([]models.Outbound, 0, len(c.Send)+1)
	for _, m := range c.Send {
		msgs = append(msgs, e.tmpl.outbound(m, sess.Fields))
	}
	if c.Next != "" {
		prompt := e.enter(sess, c.Next)
		if len(c.Send) == 0 {
			msgs = append(msgs, prompt...)
		}
	}
	return StepResult{Messages: msgs, Outcome: OutcomeAdvance}
}

func (e *Engine) collect(sess *models.Session, st *Stage, text, norm string) StepResult {
	if text == "" || !e.valid(st.Validate, text) {
		return StepResult{Messages: []models.Outbound{e.say(st.Prompt, sess)}, Outcome: OutcomeInvalid}
	}
	value := text
	if canned, ok := st.Canned[norm]; ok {
		value = canned
	}
	sess.Set(st.Field, value)

	if c := st.Complete; c != nil {
		rec := models.NewLeadRecord(sess, c.Kind, c.Fields, c.Roles)
		rec.BusinessType = e.vertical.BusinessType
		reply := e.say(c.Reply, sess)
		sess.Close()
		return StepResult{
			Messages: []models.Outbound{reply},
			Record:   &rec,
			Effects:  c.Effects,
			Ended:    true,
			Outcome:  OutcomeComplete,
		}
	}
	return StepResult{Messages: e.enter(sess, st.Next), Outcome: OutcomeAdvance}
}

func (e *Engine) query(ctx context.Context, sess *models.Session, st *Stage, text string) (StepResult, error) {
	if text == "" {
		return StepResult{Messages: []models.Outbound{e.say(st.Prompt, sess)}, Outcome: OutcomeInvalid}, nil
	}
	q := st.Query
	sess.Set(q.Field, text)

	var result models.StatusResult
	if e.lookup == nil {
		slog.Warn("Engine.query: no status lookup configured", "vertical", e.vertical.Name, "resource", q.Resource)
	} else {
		lctx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
		r, err := e.lookup.Query(lctx, q.Resource, text)
		cancel()
		if err != nil {
			slog.Warn("Engine.query: lookup failed", "vertical", e.vertical.Name, "resource", q.Resource, "reference", text, "error", err)
		} else {
			result = r
		}
	}

	var msgs []models.Outbound
	if result.Found {
		data := make(map[string]string, len(result.Fields)+len(sess.Fields))
		for k, v := range result.Fields {
			data[k] = v
		}
		for k, v := range sess.Fields {
			data[k] = v
		}
		msgs = append(msgs, models.Text(e.tmpl.render(q.Found, data)))
		if result.HasLocation && q.PinName != "" {
			msgs = append(msgs, models.Location(result.Lat, result.Lng, q.PinName, data[q.PinAddressField]))
		}
	} else {
		msgs = append(msgs, e.say(q.NotFound, sess))
	}

	res := StepResult{Messages: msgs, Ended: true, Outcome: OutcomeQuery}
	if q.Audit {
		a := models.NewQueryAudit(e.vertical.Name, sess.Identity, q.Resource, text, result.Found)
		res.Audit = &a
	}
	sess.Close()
	return res, nil
}

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	digitPattern = regexp.MustCompile(`\d`)
)

// valid applies a stage's format check. Without strict mode any input passes.
func (e *Engine) valid(v Validation, text string) bool {
	if !e.strict {
		return true
	}
	switch v {
	case ValidateContact:
		return emailPattern.MatchString(text) || len(digitPattern.FindAllString(text, -1)) >= 6
	default:
		return true
	}
}

func containsKey(keys []string, norm string) bool {
	for _, k := range keys {
		if Normalize(k) == norm {
			return true
		}
	}
	return false
}
