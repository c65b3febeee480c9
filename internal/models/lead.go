package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Field is one collected answer in a lead record, in collection order.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Roles maps enrichment inputs to the vertical-specific field names that carry them.
// An empty role means the vertical does not collect that kind of answer.
type Roles struct {
	Service  string `json:"service,omitempty"`
	Business string `json:"business,omitempty"`
	Budget   string `json:"budget,omitempty"`
}

// Resources served by the business APIs. Query stages and effect sets name
// them; the external API client routes and mocks by them.
const (
	ResourceAppointments = "appointments"
	ResourceTracking     = "tracking"
	ResourceLeads        = "leads"
	ResourceOrders       = "pedidos"
)

// EffectSet lists the side effects triggered when a flow completes.
type EffectSet struct {
	// Create posts the record to the external API under Resource.
	Create   bool   `json:"create,omitempty"`
	Resource string `json:"resource,omitempty"`
	// IDField receives the identifier returned by Create, or IDFallback when none came back.
	IDField    string `json:"id_field,omitempty"`
	IDFallback string `json:"id_fallback,omitempty"`
	Persist    bool   `json:"persist,omitempty"`
	Notify     bool   `json:"notify,omitempty"`
}

// LeadRecord is the flattened projection of one completed conversation.
type LeadRecord struct {
	ID       string `json:"id"`
	Vertical string `json:"vertical"`
	// BusinessType is the label downstream sheets know the vertical by.
	BusinessType string    `json:"business_type,omitempty"`
	Kind         string    `json:"kind"`
	Identity     string    `json:"identity"`
	Channel      string    `json:"channel"`
	Fields       []Field   `json:"fields"`
	Roles        Roles     `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewLeadRecord assembles a record from the named session fields.
func NewLeadRecord(sess *Session, kind string, keys []string, roles Roles) LeadRecord {
	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, Field{Key: k, Value: sess.Get(k)})
	}
	return LeadRecord{
		ID:        uuid.NewString(),
		Vertical:  sess.Vertical,
		Kind:      kind,
		Identity:  sess.Identity,
		Channel:   Channel,
		Fields:    fields,
		Roles:     roles,
		CreatedAt: time.Now().UTC(),
	}
}

// Value returns the value of a field, or "" when absent.
func (r LeadRecord) Value(key string) string {
	if key == "" {
		return ""
	}
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

// Set replaces a field value, appending the field when absent.
func (r *LeadRecord) Set(key, value string) {
	for i := range r.Fields {
		if r.Fields[i].Key == key {
			r.Fields[i].Value = value
			return
		}
	}
	r.Fields = append(r.Fields, Field{Key: key, Value: value})
}

// Payload is the flat map sent to external collaborators.
func (r LeadRecord) Payload() map[string]string {
	out := map[string]string{
		"id":           r.ID,
		"negocio_tipo": r.businessType(),
		"flujo":        r.Kind,
		"wa_from":      r.Identity,
		"canal":        r.Channel,
	}
	for _, f := range r.Fields {
		out[f.Key] = f.Value
	}
	return out
}

func (r LeadRecord) businessType() string {
	if r.BusinessType != "" {
		return r.BusinessType
	}
	return r.Vertical
}

// EnrichedLead is a lead record plus the derived classification fields.
type EnrichedLead struct {
	LeadRecord
	Language        string `json:"language"`
	Country         string `json:"country"`
	ServiceCategory string `json:"service_category"`
	InterestLevel   string `json:"interest_level"`
	InterestTier    string `json:"interest_tier"`
	InterestScore   int    `json:"interest_score"`
	ClientType      string `json:"client_type"`
	Source          string `json:"source"`
}

// Flatten merges the record payload with the derived fields.
func (e EnrichedLead) Flatten() map[string]string {
	out := e.Payload()
	out["language"] = e.Language
	out["country"] = e.Country
	out["service_category"] = e.ServiceCategory
	out["interest_level"] = e.InterestLevel
	out["interest_tier"] = e.InterestTier
	out["interest_score"] = strconv.Itoa(e.InterestScore)
	out["client_type"] = e.ClientType
	out["source"] = e.Source
	return out
}

// QueryAudit notes that a read-only status lookup happened.
type QueryAudit struct {
	ID        string    `json:"id"`
	Vertical  string    `json:"vertical"`
	Identity  string    `json:"identity"`
	Resource  string    `json:"resource"`
	Reference string    `json:"reference"`
	Found     bool      `json:"found"`
	CreatedAt time.Time `json:"created_at"`
}

// NewQueryAudit builds an audit note for a lookup.
func NewQueryAudit(vertical, identity, resource, reference string, found bool) QueryAudit {
	return QueryAudit{
		ID:        uuid.NewString(),
		Vertical:  vertical,
		Identity:  identity,
		Resource:  resource,
		Reference: reference,
		Found:     found,
		CreatedAt: time.Now().UTC(),
	}
}

// StatusResult is the answer of a read-only external lookup.
type StatusResult struct {
	Found       bool
	Fields      map[string]string
	HasLocation bool
	Lat         float64
	Lng         float64
}
