package shipping

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"storefront/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed zones.yaml
var defaultTable []byte

// Table is the static rate configuration.
type Table struct {
	Currency     string      `yaml:"currency"`
	PriceCeiling float64     `yaml:"priceCeiling"`
	Penalties    Penalties   `yaml:"penalties"`
	Adjacent     [][2]string `yaml:"adjacent"`
	Zones        []Zone      `yaml:"zones"`
	Carriers     []Carrier   `yaml:"carriers"`
}

type Penalties struct {
	SameZone float64 `yaml:"sameZone"`
	Adjacent float64 `yaml:"adjacent"`
	Distant  float64 `yaml:"distant"`
}

// Zone covers every postal code starting with one of Prefixes. The zone with
// no prefixes is the catch-all.
type Zone struct {
	Key       string   `yaml:"key"`
	Name      string   `yaml:"name"`
	Prefixes  []string `yaml:"prefixes"`
	BasePrice float64  `yaml:"basePrice"`
	Days      int      `yaml:"days"`
}

type Carrier struct {
	Key             string  `yaml:"key"`
	Name            string  `yaml:"name"`
	PriceMultiplier float64 `yaml:"priceMultiplier"`
	PerKgRate       float64 `yaml:"perKgRate"`
	DayOffset       int     `yaml:"dayOffset"`
	Tiers           []Tier  `yaml:"tiers"`
}

// Tier is an accelerated service on top of a carrier's standard offer.
type Tier struct {
	Service         string  `yaml:"service"`
	PriceMultiplier float64 `yaml:"priceMultiplier"`
	DayFactor       float64 `yaml:"dayFactor"`
	MinDays         int     `yaml:"minDays"`
}

var prefixPattern = regexp.MustCompile(`^\d+$`)

// LoadDefault parses the embedded rate table.
func LoadDefault() (*Table, error) {
	return Parse(defaultTable)
}

// LoadFile parses a rate table from path, or the embedded one when path is empty.
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return LoadDefault()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shipping table: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, &domain.ConfigurationError{Message: "parse shipping table: " + err.Error()}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// maxPriceCeiling keeps every accepted price representable in int64 cents.
const maxPriceCeiling = 1e15

// Validate checks the invariants the engine relies on: one catch-all zone,
// no prefix claimed twice, positive multipliers.
func (t *Table) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return &domain.ConfigurationError{Message: fmt.Sprintf(format, args...)}
	}
	if t.PriceCeiling <= 0 || t.PriceCeiling > maxPriceCeiling {
		return fail("priceCeiling must be positive and at most %g", float64(maxPriceCeiling))
	}
	if t.Penalties.SameZone <= 0 || t.Penalties.Adjacent <= 0 || t.Penalties.Distant <= 0 {
		return fail("penalties must be positive")
	}

	catchAll := 0
	keys := map[string]bool{}
	owners := map[string]string{}
	for _, z := range t.Zones {
		if z.Key == "" {
			return fail("zone key required")
		}
		if keys[z.Key] {
			return fail("duplicate zone %s", z.Key)
		}
		keys[z.Key] = true
		if z.BasePrice <= 0 || z.Days < 1 {
			return fail("zone %s needs a positive base price and days", z.Key)
		}
		if len(z.Prefixes) == 0 {
			catchAll++
		}
		for _, p := range z.Prefixes {
			if !prefixPattern.MatchString(p) {
				return fail("zone %s has non-numeric prefix %q", z.Key, p)
			}
			if other, ok := owners[p]; ok {
				return fail("prefix %s claimed by %s and %s", p, other, z.Key)
			}
			owners[p] = z.Key
		}
	}
	if catchAll != 1 {
		return fail("expected exactly one catch-all zone, found %d", catchAll)
	}
	for _, pair := range t.Adjacent {
		if !keys[pair[0]] || !keys[pair[1]] {
			return fail("adjacent pair %v references unknown zone", pair)
		}
	}

	if len(t.Carriers) == 0 {
		return fail("at least one carrier required")
	}
	for _, c := range t.Carriers {
		if c.Key == "" || c.PriceMultiplier <= 0 || c.PerKgRate < 0 || c.DayOffset < 0 {
			return fail("carrier %q has invalid rates", c.Key)
		}
		for _, tier := range c.Tiers {
			if tier.Service == "" || tier.Service == StandardService {
				return fail("carrier %s has invalid tier name %q", c.Key, tier.Service)
			}
			if tier.PriceMultiplier <= 0 || tier.DayFactor <= 0 || tier.MinDays < 1 {
				return fail("carrier %s tier %s has invalid factors", c.Key, tier.Service)
			}
		}
	}
	return nil
}
