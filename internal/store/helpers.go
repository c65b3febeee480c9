package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// DetectDSNType reports which SQL driver a DSN belongs to: "postgres" or "sqlite3".
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(d, "postgres://"), strings.HasPrefix(d, "postgresql://"):
		return "postgres"
	case strings.Contains(d, "host="):
		return "postgres"
	case strings.Contains(d, "=") && strings.Contains(d, " "):
		// libpq key=value form
		return "postgres"
	default:
		return "sqlite3"
	}
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// leadColumns is the column list shared by inserts and selects.
const leadColumns = `id, vertical, kind, identity, channel, source, fields_json,
	language, country, service_category, interest_level, interest_tier, interest_score, client_type, created_at`

// leadArgs returns the values for leadColumns in order.
func leadArgs(l models.EnrichedLead) ([]interface{}, error) {
	fieldsJSON, err := json.Marshal(l.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lead fields: %w", err)
	}
	return []interface{}{
		l.ID, l.Vertical, l.Kind, l.Identity, l.Channel, l.Source, string(fieldsJSON),
		l.Language, l.Country, l.ServiceCategory, l.InterestLevel, l.InterestTier, l.InterestScore, l.ClientType, l.CreatedAt,
	}, nil
}

// scanLead scans an EnrichedLead from sql.Rows.
func scanLead(rows *sql.Rows) (models.EnrichedLead, error) {
	var l models.EnrichedLead
	var source, fieldsJSON sql.NullString
	err := rows.Scan(
		&l.ID, &l.Vertical, &l.Kind, &l.Identity, &l.Channel, &source, &fieldsJSON,
		&l.Language, &l.Country, &l.ServiceCategory, &l.InterestLevel, &l.InterestTier, &l.InterestScore, &l.ClientType, &l.CreatedAt,
	)
	if err != nil {
		return l, fmt.Errorf("scan lead failed: %w", err)
	}
	l.Source = source.String
	if fieldsJSON.Valid && fieldsJSON.String != "" {
		if err := json.Unmarshal([]byte(fieldsJSON.String), &l.Fields); err != nil {
			return l, fmt.Errorf("failed to unmarshal lead fields: %w", err)
		}
	}
	return l, nil
}
