// Package enrich derives classification fields from the raw answers of a lead.
//
// Every function here is pure: the same record always yields the same EnrichedLead.
package enrich

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Unknown is the value used by every classifier when nothing matches.
const Unknown = "unknown"

// Service categories.
const (
	CategoryWeb        = "web"
	CategorySaaS       = "saas/system"
	CategoryAutomation = "automation"
	CategoryMarketing  = "marketing"
	CategoryOther      = "other"
)

// Interest levels and tiers.
const (
	InterestLow    = "low"
	InterestMedium = "medium"
	InterestHigh   = "high"
)

// Client types.
const (
	ClientB2B       = "b2b"
	ClientFreelance = "freelance"
)

var (
	spanishDiacritics = regexp.MustCompile(`[ñáéíóúü]`)
	spanishWords      = regexp.MustCompile(`\b(que|para|pero|porque)\b`)
	englishWords      = regexp.MustCompile(`\b(the|and|for|with|project)\b`)
	digitRuns         = regexp.MustCompile(`\d+`)
)

var countryPrefixes = []struct {
	prefix  string
	country string
}{
	{"51", "Peru"},
	{"34", "Spain"},
	{"49", "Germany"},
}

// category keyword sets, checked in this order
var serviceCategories = []struct {
	category string
	keywords []string
}{
	{CategoryWeb, []string{"landing", "página web", "pagina web", "web"}},
	{CategorySaaS, []string{"saas", "sistema", "system", "erp", "multitenant"}},
	{CategoryAutomation, []string{"automatización", "automatizacion", "automation", "integración", "integracion", "api"}},
	{CategoryMarketing, []string{"marketing", "ads", "redes"}},
}

var (
	lowBudgetWords    = []string{"bajo", "limitado", "ajustado", "low", "limited", "tight"}
	mediumBudgetWords = []string{"medio", "medium"}
	highBudgetWords   = []string{"alto", "completo", "robusto", "high", "complete", "robust"}

	b2bWords       = []string{"empresa", "negocio", "tienda", "clínica", "clinica", "consultorio", "company", "business"}
	freelanceWords = []string{"freelance", "independiente", "personal"}
)

// Interest is the outcome of budget scoring.
type Interest struct {
	Level string
	Tier  string
	Score int
}

// Enrich derives the classification fields for a completed lead.
// source is the vertical's source tag.
func Enrich(rec models.LeadRecord, source string) models.EnrichedLead {
	values := make([]string, 0, len(rec.Fields))
	for _, f := range rec.Fields {
		values = append(values, f.Value)
	}
	interest := ScoreInterest(rec.Value(rec.Roles.Budget))

	return models.EnrichedLead{
		LeadRecord:      rec,
		Language:        DetectLanguage(strings.Join(values, " ")),
		Country:         DetectCountry(rec.Identity),
		ServiceCategory: ClassifyService(rec.Value(rec.Roles.Service)),
		InterestLevel:   interest.Level,
		InterestTier:    interest.Tier,
		InterestScore:   interest.Score,
		ClientType:      ClassifyClient(rec.Value(rec.Roles.Business)),
		Source:          source,
	}
}

// DetectLanguage returns "es", "en" or Unknown. Spanish wins when both match.
func DetectLanguage(text string) string {
	t := lower(text)
	if spanishDiacritics.MatchString(t) || spanishWords.MatchString(t) {
		return "es"
	}
	if englishWords.MatchString(t) {
		return "en"
	}
	return Unknown
}

// DetectCountry maps the leading digits of an identity to a country name.
func DetectCountry(identity string) string {
	id := strings.TrimPrefix(strings.TrimSpace(identity), "+")
	for _, p := range countryPrefixes {
		if strings.HasPrefix(id, p.prefix) {
			return p.country
		}
	}
	return Unknown
}

// ClassifyService buckets the service-interest text into a category.
func ClassifyService(text string) string {
	t := lower(text)
	for _, c := range serviceCategories {
		if containsAny(t, c.keywords) {
			return c.category
		}
	}
	return CategoryOther
}

// ExtractBudgetDigits concatenates every digit run in order of appearance.
// "80,000 - 120,000" yields "80000120000".
func ExtractBudgetDigits(text string) string {
	return strings.Join(digitRuns.FindAllString(text, -1), "")
}

// ScoreInterest turns free budget text into an interest level, tier and score.
func ScoreInterest(text string) Interest {
	t := lower(text)

	if digits := ExtractBudgetDigits(t); digits != "" {
		// ParseFloat keeps arbitrarily long digit strings ordered; overflow reports +Inf.
		amount, _ := strconv.ParseFloat(digits, 64)
		switch {
		case amount < 500:
			return Interest{Level: InterestLow, Tier: InterestLow, Score: 40}
		case amount < 2000:
			return Interest{Level: InterestMedium, Tier: InterestMedium, Score: 70}
		default:
			return Interest{Level: InterestHigh, Tier: InterestHigh, Score: 90}
		}
	}

	switch {
	case containsAny(t, lowBudgetWords):
		return Interest{Level: InterestLow, Tier: InterestLow, Score: 40}
	case containsAny(t, mediumBudgetWords):
		return Interest{Level: InterestMedium, Tier: InterestMedium, Score: 70}
	case containsAny(t, highBudgetWords):
		return Interest{Level: InterestHigh, Tier: InterestHigh, Score: 90}
	}
	return Interest{Level: Unknown, Tier: InterestMedium, Score: 50}
}

// ClassifyClient labels the business description as b2b, freelance or Unknown.
func ClassifyClient(text string) string {
	t := lower(text)
	if containsAny(t, b2bWords) {
		return ClientB2B
	}
	if containsAny(t, freelanceWords) {
		return ClientFreelance
	}
	return Unknown
}

func lower(s string) string {
	// Casers carry state, so one per call.
	return cases.Lower(language.Und).String(s)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
