package flow

import (
	"fmt"
	"sort"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Vertical names.
const (
	VerticalGeneric    = "generic"
	VerticalAgency     = "agency"
	VerticalClinic     = "clinic"
	VerticalCourier    = "courier"
	VerticalRealEstate = "realestate"
	VerticalRestaurant = "restaurant"
)

// Default asset links used when the deployment does not override them.
const (
	DefaultCatalogURL          = "https://tu-dominio.com/catalogo"
	DefaultBrochureURL         = "https://tu-dominio.com/brochure.pdf"
	DefaultProjectsBrochureURL = "https://example.com/brochure-proyecto.pdf"
	DefaultMenuURL             = "https://turestaurante.com/menu"
	DefaultMenuImageURL        = "https://turestaurante.com/menu.jpg"
)

// Assets are the deployment-specific links the menus hand out.
type Assets struct {
	CatalogURL          string
	BrochureURL         string
	ProjectsBrochureURL string
	MenuURL             string
	MenuImageURL        string
}

// DefaultAssets returns the stock links.
func DefaultAssets() Assets {
	return Assets{
		CatalogURL:          DefaultCatalogURL,
		BrochureURL:         DefaultBrochureURL,
		ProjectsBrochureURL: DefaultProjectsBrochureURL,
		MenuURL:             DefaultMenuURL,
		MenuImageURL:        DefaultMenuImageURL,
	}
}

func (a Assets) withDefaults() Assets {
	d := DefaultAssets()
	if a.CatalogURL == "" {
		a.CatalogURL = d.CatalogURL
	}
	if a.BrochureURL == "" {
		a.BrochureURL = d.BrochureURL
	}
	if a.ProjectsBrochureURL == "" {
		a.ProjectsBrochureURL = d.ProjectsBrochureURL
	}
	if a.MenuURL == "" {
		a.MenuURL = d.MenuURL
	}
	if a.MenuImageURL == "" {
		a.MenuImageURL = d.MenuImageURL
	}
	return a
}

var builders = map[string]func(Assets) *Vertical{
	VerticalGeneric:    genericVertical,
	VerticalAgency:     agencyVertical,
	VerticalClinic:     clinicVertical,
	VerticalCourier:    courierVertical,
	VerticalRealEstate: realEstateVertical,
	VerticalRestaurant: restaurantVertical,
}

// Names lists the known verticals in sorted order.
func Names() []string {
	names := make([]string, 0, len(builders))
	for n := range builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup builds the named vertical's table. Empty asset links take their defaults.
func Lookup(name string, assets Assets) (*Vertical, error) {
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown vertical %q", name)
	}
	return build(assets.withDefaults()), nil
}

// notify persists and notifies, optionally creating the record in the business API first.
func notify(resource, idField, fallback string) models.EffectSet {
	return models.EffectSet{
		Create:     resource != "",
		Resource:   resource,
		IDField:    idField,
		IDFallback: fallback,
		Persist:    true,
		Notify:     true,
	}
}
