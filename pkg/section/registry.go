package section

// CatalogKind names the catalog a product-selection section picks from.
type CatalogKind string

const (
	CatalogProducts CatalogKind = "products"
	CatalogPacks    CatalogKind = "packs"
)

// Descriptor is the static registry entry of one section.
type Descriptor struct {
	// Key identifies the section inside a page configuration.
	Key string

	// Label is shown in the studio sidebar.
	Label string

	// Shape selects the payload type, editor widget and renderer.
	Shape Shape

	// Limit caps the number of selected items (product selections only).
	// Zero means unlimited.
	Limit int

	// Catalog is the picker source for product selections.
	Catalog CatalogKind

	// Default builds the payload used when a loaded document lacks the key.
	Default func() Data
}

// Fallback returns a fresh default payload for the descriptor.
func (d Descriptor) Fallback() Data {
	if d.Default != nil {
		return d.Default()
	}
	switch d.Shape {
	case ShapeSlideArray:
		return Slides{{}}
	case ShapeSingleBanner:
		return Banner{}
	case ShapeBadgeArray:
		return Badges{}
	case ShapeTextBlock:
		return TextBlock{}
	case ShapeProductSelection:
		return Selection{IDs: []string{}}
	default:
		return Unknown{}
	}
}

// Template is the ordered registry of one page.
type Template struct {
	Name     string
	Title    string
	Sections []Descriptor
}

// Lookup finds the descriptor for key.
func (t *Template) Lookup(key string) (Descriptor, bool) {
	for _, d := range t.Sections {
		if d.Key == key {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Keys returns the section keys in declaration order.
func (t *Template) Keys() []string {
	keys := make([]string, len(t.Sections))
	for i, d := range t.Sections {
		keys[i] = d.Key
	}
	return keys
}

// First returns the first declared key, or "" for an empty template.
func (t *Template) First() string {
	if len(t.Sections) == 0 {
		return ""
	}
	return t.Sections[0].Key
}

// Defaults builds a configuration holding every default payload.
func (t *Template) Defaults() *Config {
	cfg := NewConfig()
	for _, d := range t.Sections {
		cfg.Set(d.Key, d.Fallback())
	}
	return cfg
}

// Home is the storefront homepage template.
func Home() *Template {
	return &Template{
		Name:  "home",
		Title: "Home Studio",
		Sections: []Descriptor{
			{Key: "hero", Label: "Hero carousel", Shape: ShapeSlideArray, Default: func() Data {
				return Slides{{
					Title:      "Your health, delivered",
					Subtitle:   "Pharmacy and parapharmacy essentials at your door",
					ButtonText: "Shop now",
					Image:      "/images/hero/default.jpg",
					Link:       "/products",
				}}
			}},
			{Key: "trustBadges", Label: "Trust badges", Shape: ShapeBadgeArray, Default: func() Data {
				return Badges{
					{Icon: "truck", Text: "Free delivery from 49€"},
					{Icon: "shield", Text: "Certified pharmacists"},
					{Icon: "lock", Text: "Secure payment"},
				}
			}},
			{Key: "promoBanner1", Label: "Promo banner 1", Shape: ShapeSingleBanner},
			{Key: "featuredProducts", Label: "Featured products", Shape: ShapeProductSelection, Limit: 8, Catalog: CatalogProducts},
			{Key: "promoBanner2", Label: "Promo banner 2", Shape: ShapeSingleBanner},
			{Key: "bestSellers", Label: "Best sellers", Shape: ShapeProductSelection, Limit: 12, Catalog: CatalogProducts},
			{Key: "about", Label: "About us", Shape: ShapeTextBlock},
		},
	}
}

// Offers is the offers page template.
func Offers() *Template {
	return &Template{
		Name:  "offers",
		Title: "Offers Studio",
		Sections: []Descriptor{
			{Key: "offersHero", Label: "Offers banner", Shape: ShapeSingleBanner, Default: func() Data {
				return Banner{Title: "This week's offers", ButtonText: "See all", Link: "/offers"}
			}},
			{Key: "flashDeals", Label: "Flash deals", Shape: ShapeProductSelection, Limit: 8, Catalog: CatalogProducts},
			{Key: "featuredPacks", Label: "Packs", Shape: ShapeProductSelection, Limit: 6, Catalog: CatalogPacks},
			{Key: "offerSlides", Label: "Offer carousel", Shape: ShapeSlideArray},
			{Key: "perks", Label: "Perks", Shape: ShapeBadgeArray},
			{Key: "terms", Label: "Terms", Shape: ShapeTextBlock},
		},
	}
}

// Templates returns the built-in templates keyed by name.
func Templates() map[string]*Template {
	return map[string]*Template{
		"home":   Home(),
		"offers": Offers(),
	}
}
