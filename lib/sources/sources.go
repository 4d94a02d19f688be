// Package sources holds the selector presets for the catalogs the
// harvester knows about.
package sources

import (
	"fmt"
	"slices"
	"sort"

	"catalog-harvester/lib/cleaner"
	"catalog-harvester/lib/harvest"
	"catalog-harvester/lib/textutil"

	"dario.cat/mergo"
)

const (
	BackendStatic  = "static"
	BackendBrowser = "browser"
)

type Preset struct {
	// SchemaVersion changes whenever the selectors or fields change, so
	// datasets can be traced back to the preset that produced them.
	SchemaVersion string         `json:"schema_version"`
	Description   string         `json:"description"`
	Backend       string         `json:"backend"`
	Source        harvest.Source `json:"source"`
	DateField     string         `json:"date_field"`
	DateLayout    string         `json:"date_layout"`
	LinkField     string         `json:"link_field"`
}

func (p Preset) Name() string {
	return p.Source.Name
}

func (p Preset) CleanOptions() cleaner.Options {
	return cleaner.Options{
		DateField:  p.DateField,
		DateLayout: p.DateLayout,
	}
}

const whitepapersURL = "https://aws.amazon.com/whitepapers/" +
	"?whitepapers-main.sort-by=item.additionalFields.sortDate" +
	"&whitepapers-main.sort-order=desc" +
	"&awsf.whitepapers-content-type=*all" +
	"&awsf.whitepapers-global-methodology=*all" +
	"&awsf.whitepapers-tech-category=*all" +
	"&awsf.whitepapers-industries=*all" +
	"&awsf.whitepapers-business-category=*all" +
	"&awsm.page-whitepapers-main=%d"

var presets = map[string]Preset{
	"aws-services": {
		SchemaVersion: "2024-07.1",
		Description:   "service cards from the AWS documentation landing page",
		Backend:       BackendBrowser,
		Source: harvest.Source{
			Name:           "aws-services",
			EntryURL:       "https://docs.aws.amazon.com/",
			RecordSelector: ".awsui_card_p8a6i_wx573_97",
			Schema: harvest.Schema{
				{Name: "service_name", Selector: ".awsui_root_18wu0_1lqen_93 a"},
				{Name: "description", Selector: ".awsui_root_18wu0_1lqen_93.awsui_box_18wu0_1lqen_207.awsui_d-block_18wu0_1lqen_991"},
				{Name: "service_categories", Selector: ".awsui_badge_1yjyg_1jkj8_93", Multiple: true},
			},
			Pages:        17,
			NextSelector: `button[aria-label="Next page"]`,
		},
	},
	"aws-whitepapers": {
		SchemaVersion: "2024-07.1",
		Description:   "whitepapers and guides listed on aws.amazon.com/whitepapers",
		Backend:       BackendBrowser,
		Source: harvest.Source{
			Name:           "aws-whitepapers",
			RecordSelector: ".m-card",
			Schema: harvest.Schema{
				{Name: "name", Selector: ".m-headline", Sentinel: "No Headline"},
				{Name: "category", Selector: ".m-category"},
				{Name: "description", Selector: ".m-desc > p:first-child"},
				{Name: "date", Selector: ".m-info-txt"},
				{Name: "pdf_link", Selector: ".m-desc a[href*='.pdf']", Attribute: "href", Sentinel: "No PDF Link"},
			},
			Pages:    19,
			PageURL:  whitepapersURL,
			PageBase: 1,
		},
		DateField:  "date",
		DateLayout: cleaner.DefaultDateLayout,
		LinkField:  "pdf_link",
	},
}

func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func All() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, name := range Names() {
		out = append(out, presets[name])
	}
	return out
}

// Lookup returns the named preset with `override` merged over it. An
// override for a name without a preset defines a new source.
func Lookup(name string, overrides map[string]Preset) (Preset, error) {
	preset, known := presets[name]
	override, overridden := overrides[name]
	if !known && !overridden {
		candidates := Names()
		for custom := range overrides {
			candidates = append(candidates, custom)
		}
		if best, score := textutil.ClosestMatch(name, candidates); score > 0.7 {
			return Preset{}, fmt.Errorf("unknown source %q, did you mean %q?", name, best)
		}
		return Preset{}, fmt.Errorf("unknown source %q", name)
	}

	if overridden {
		err := mergo.Merge(&preset, override, mergo.WithOverride)
		if err != nil {
			return Preset{}, err
		}
	}
	preset.Source.Name = name
	if preset.Backend == "" {
		preset.Backend = BackendStatic
	}
	if err := preset.Source.Validate(); err != nil {
		return Preset{}, err
	}
	return preset, nil
}

// Placeholders returns every text a preset writes for an absent `field`,
// so datasets written before cleaning can be read back without mistaking
// a placeholder for a value.
func Placeholders(field string, overrides map[string]Preset) []string {
	var out []string
	add := func(schema harvest.Schema) {
		for _, f := range schema {
			if f.Name == field && !slices.Contains(out, f.Placeholder()) {
				out = append(out, f.Placeholder())
			}
		}
	}
	for _, preset := range All() {
		add(preset.Source.Schema)
	}
	for _, preset := range overrides {
		add(preset.Source.Schema)
	}
	return out
}
