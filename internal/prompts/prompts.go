// Package prompts renders the model prompts from an embedded YAML catalog.
package prompts

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/mairble/mairble-backend-go/internal/domain"
)

//go:embed prompts.yaml
var catalogYAML []byte

// DefaultLocation is used when a listing has no known location.
const DefaultLocation = "Newport, RI"

// Audiences for property context rendering.
const (
	AudienceChat     = "chat"
	AudienceAnalysis = "analysis"
)

type catalogFile struct {
	System           string            `yaml:"system"`
	SelectedProperty string            `yaml:"selected_property"`
	PropertyContext  string            `yaml:"property_context"`
	Analysis         string            `yaml:"analysis"`
	RecordAnalysis   string            `yaml:"record_analysis"`
	Directives       map[string]string `yaml:"directives"`
	GuestProfiles    map[string]string `yaml:"guest_profiles"`
	Advantages       map[string]string `yaml:"advantages"`
	Strategies       map[string]string `yaml:"strategies"`
}

// Catalog holds the parsed templates and lookup tables.
type Catalog struct {
	system, selected, context, analysis, record *template.Template

	directives    map[string]string
	guestProfiles map[string]string
	advantages    map[string]string
	strategies    map[string]string
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(catalogYAML)
}

// MustLoad is Load for package-level wiring; the catalog ships with the binary.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic("prompts: " + err.Error())
	}
	return c
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		directives:    f.Directives,
		guestProfiles: f.GuestProfiles,
		advantages:    f.Advantages,
		strategies:    f.Strategies,
	}
	for _, t := range []struct {
		name string
		src  string
		dst  **template.Template
	}{
		{"system", f.System, &c.system},
		{"selected_property", f.SelectedProperty, &c.selected},
		{"property_context", f.PropertyContext, &c.context},
		{"analysis", f.Analysis, &c.analysis},
		{"record_analysis", f.RecordAnalysis, &c.record},
	} {
		if strings.TrimSpace(t.src) == "" {
			return nil, fmt.Errorf("template %q is empty", t.name)
		}
		tmpl, err := template.New(t.name).Option("missingkey=error").Parse(t.src)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", t.name, err)
		}
		*t.dst = tmpl
	}
	return c, nil
}

// SystemData feeds the chat system prompt.
type SystemData struct {
	Today      string
	WindowDays int
	Property   *domain.SelectedProperty
	Context    *domain.PropertyContext
}

// System renders the chat system prompt: persona, date, selected property
// and property context.
func (c *Catalog) System(d SystemData) (string, error) {
	var b strings.Builder
	if err := c.system.Execute(&b, d); err != nil {
		return "", err
	}

	if d.Property != nil {
		section, err := c.selectedProperty(d.Property)
		if err != nil {
			return "", err
		}
		b.WriteString("\n")
		b.WriteString(section)
	}

	if ctx, err := c.PropertyContext(d.Context, AudienceChat); err != nil {
		return "", err
	} else if ctx != "" {
		b.WriteString("\n")
		b.WriteString(ctx)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (c *Catalog) selectedProperty(p *domain.SelectedProperty) (string, error) {
	name := p.Name
	if name == "" {
		name = "Property"
	}
	location := p.Location
	if location == "" {
		location = "Unknown Location"
	}
	bedrooms := "Unknown bedrooms"
	if p.Bedrooms != nil {
		bedrooms = strconv.Itoa(*p.Bedrooms) + " bedroom"
		if *p.Bedrooms != 1 {
			bedrooms += "s"
		}
	}

	var b strings.Builder
	err := c.selected.Execute(&b, map[string]string{
		"Name":     name,
		"Location": location,
		"Bedrooms": bedrooms,
	})
	return b.String(), err
}

// PropertyContext renders the host's answers as a prompt section, or ""
// when nothing applies. Custom feature details override the defaults.
func (c *Catalog) PropertyContext(pc *domain.PropertyContext, audience string) (string, error) {
	if pc.IsEmpty() {
		return "", nil
	}

	var sections []string
	if profile, ok := c.guestProfiles[pc.MainGuest]; ok {
		sections = append(sections, profile)
	}

	var advantages []string
	for _, feature := range pc.SpecialFeature {
		if custom := strings.TrimSpace(pc.SpecialFeatureDetails[feature]); custom != "" {
			advantages = append(advantages, feature+": "+custom)
		} else if def, ok := c.advantages[feature]; ok {
			advantages = append(advantages, feature+": "+def)
		}
	}
	if len(advantages) > 0 {
		sections = append(sections, "ADVANTAGES: "+strings.Join(advantages, "; "))
	}

	var strategies []string
	for _, goal := range pc.PricingGoal {
		if s, ok := c.strategies[goal]; ok {
			strategies = append(strategies, s)
		}
	}
	if len(strategies) > 0 {
		prefix := "STRATEGIES (balance)"
		if len(strategies) == 1 {
			prefix = "STRATEGY"
			if audience == AudienceAnalysis {
				prefix = "PRICING STRATEGY"
			}
		}
		sections = append(sections, prefix+": "+strings.Join(strategies, "; "))
	}

	if len(sections) == 0 {
		return "", nil
	}

	var b strings.Builder
	err := c.context.Execute(&b, map[string]string{
		"Sections":  strings.Join(sections, " | "),
		"Directive": c.directives[audience],
	})
	return b.String(), err
}

// AnalysisData feeds the per-night pricing prompt.
type AnalysisData struct {
	Night    domain.NightData
	Location string
	Context  *domain.PropertyContext
}

// Analysis renders the revenue-manager prompt for one night.
func (c *Catalog) Analysis(d AnalysisData) (string, error) {
	n := d.Night
	ctx, err := c.PropertyContext(d.Context, AudienceAnalysis)
	if err != nil {
		return "", err
	}

	market := "unavailable"
	if n.MarketAvgPrice != nil {
		market = fmt.Sprintf("$%.0f", *n.MarketAvgPrice)
	}
	source := "real PriceLabs data"
	if n.MarketAvgPrice == nil || n.MarketSource == domain.MarketSourceEstimate {
		source = "intelligent seasonal estimate"
	}
	occupancy := "unknown"
	if n.Occupancy != nil {
		occupancy = Number(*n.Occupancy) + "%"
	}

	var b strings.Builder
	err = c.analysis.Execute(&b, map[string]string{
		"Location":     orDefault(d.Location, DefaultLocation),
		"Date":         n.Date,
		"DayOfWeek":    deref(n.DayOfWeek, "unknown day"),
		"Price":        money(n.YourPrice),
		"Market":       market,
		"MarketSource": source,
		"Demand":       deref(n.Event, "Standard"),
		"Occupancy":    occupancy,
		"Context":      strings.TrimRight(ctx, "\n"),
	})
	return b.String(), err
}

// RecordData feeds the free-text analysis prompt used by batch extraction.
type RecordData struct {
	Date      string
	Bedrooms  string
	Location  string
	Price     *float64
	Market    *float64
	Occupancy *float64
	DayOfWeek string
	Events    []string
	LeadTime  *int
}

// RecordAnalysis renders the free-text analysis prompt for one record.
func (c *Catalog) RecordAnalysis(d RecordData) (string, error) {
	events := "no major events"
	if len(d.Events) > 0 {
		events = strings.Join(d.Events, ", ")
	}
	lead := "N/A"
	if d.LeadTime != nil {
		lead = strconv.Itoa(*d.LeadTime)
	}

	var b strings.Builder
	err := c.record.Execute(&b, map[string]string{
		"Date":      d.Date,
		"Bedrooms":  orDefault(d.Bedrooms, "2"),
		"Location":  orDefault(d.Location, DefaultLocation),
		"Price":     numberOr(d.Price, "N/A"),
		"Market":    numberOr(d.Market, "N/A"),
		"Occupancy": numberOr(d.Occupancy, "N/A"),
		"DayOfWeek": d.DayOfWeek,
		"Events":    events,
		"LeadTime":  lead,
	})
	return b.String(), err
}

// Number formats a float without trailing zeros.
func Number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func money(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return "$" + Number(*v)
}

func numberOr(v *float64, fallback string) string {
	if v == nil {
		return fallback
	}
	return Number(*v)
}

func deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
