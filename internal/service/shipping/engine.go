package shipping

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"storefront/internal/domain"
	"github.com/shopspring/decimal"
)

const StandardService = "standard"

var postalCodePattern = regexp.MustCompile(`^\d{4,8}$`)

// Engine computes carrier offers from a static Table. It has no side effects;
// the clock only anchors delivery estimates.
type Engine struct {
	table *Table
	now   func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(table *Table, opts ...Option) *Engine {
	e := &Engine{table: table, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InvalidPostalCode builds the validation error for a malformed code.
func InvalidPostalCode(field, code string) error {
	return domain.Invalid(field, "invalid postal code %q", code)
}

// Quote returns every offer under the price ceiling, cheapest first. An
// oversized weight yields no offers rather than an error.
func (e *Engine) Quote(origin, destination string, weightKg float64) ([]domain.ShippingQuote, error) {
	origin = strings.TrimSpace(origin)
	destination = strings.TrimSpace(destination)
	if !postalCodePattern.MatchString(destination) {
		return nil, InvalidPostalCode("postalCode", destination)
	}
	if !postalCodePattern.MatchString(origin) {
		return nil, InvalidPostalCode("origin", origin)
	}
	if math.IsNaN(weightKg) || math.IsInf(weightKg, 0) || weightKg < 0 {
		return nil, domain.Invalid("weightKg", "must be a non-negative number")
	}

	from, ok := e.zoneFor(origin)
	if !ok {
		return nil, &domain.ConfigurationError{Message: "no shipping zone for origin " + origin}
	}
	to, ok := e.zoneFor(destination)
	if !ok {
		return nil, &domain.ConfigurationError{Message: "no shipping zone for destination " + destination}
	}

	penalty := decimal.NewFromFloat(e.penalty(from, to))
	weight := decimal.NewFromFloat(weightKg)
	ceiling := decimal.NewFromFloat(e.table.PriceCeiling)
	start := e.now()

	quotes := make([]domain.ShippingQuote, 0, len(e.table.Carriers))
	for _, c := range e.table.Carriers {
		base := decimal.NewFromFloat(to.BasePrice).Mul(decimal.NewFromFloat(c.PriceMultiplier))
		surcharge := weight.Mul(decimal.NewFromFloat(c.PerKgRate))
		price := base.Add(surcharge).Mul(penalty).Round(0)
		days := roundDays(decimal.NewFromInt(int64(to.Days + c.DayOffset)).Mul(penalty), 1)

		// Prices are compared before conversion to cents so an oversized
		// weight cannot wrap into a negative int64.
		if price.LessThan(ceiling) {
			quotes = append(quotes, e.offer(c, StandardService, to, price, days, start))
		}
		for _, tier := range c.Tiers {
			tierPrice := price.Mul(decimal.NewFromFloat(tier.PriceMultiplier)).Round(0)
			if !tierPrice.LessThan(ceiling) {
				continue
			}
			tierDays := roundDays(decimal.NewFromInt(int64(days)).Mul(decimal.NewFromFloat(tier.DayFactor)), tier.MinDays)
			quotes = append(quotes, e.offer(c, tier.Service, to, tierPrice, tierDays, start))
		}
	}

	sort.SliceStable(quotes, func(i, j int) bool {
		if quotes[i].PriceCents != quotes[j].PriceCents {
			return quotes[i].PriceCents < quotes[j].PriceCents
		}
		if quotes[i].Carrier != quotes[j].Carrier {
			return quotes[i].Carrier < quotes[j].Carrier
		}
		return quotes[i].Service < quotes[j].Service
	})
	return quotes, nil
}

// Select re-quotes and returns the offer matching carrier and service.
func (e *Engine) Select(origin, destination string, weightKg float64, carrier, service string) (*domain.ShippingQuote, error) {
	quotes, err := e.Quote(origin, destination, weightKg)
	if err != nil {
		return nil, err
	}
	if service == "" {
		service = StandardService
	}
	for _, q := range quotes {
		if q.Carrier == carrier && q.Service == service {
			q := q
			return &q, nil
		}
	}
	return nil, domain.Invalid("shipping", "carrier %s service %s is not available for %s", carrier, service, destination)
}

func (e *Engine) offer(c Carrier, service string, zone Zone, price decimal.Decimal, days int, start time.Time) domain.ShippingQuote {
	return domain.ShippingQuote{
		Carrier:           c.Key,
		CarrierName:       c.Name,
		Service:           service,
		PriceCents:        price.Mul(decimal.NewFromInt(100)).IntPart(),
		Days:              days,
		EstimatedDelivery: addBusinessDays(start, days).Format("2006-01-02"),
		Zone:              zone.Key,
	}
}

// zoneFor picks the zone with the longest matching prefix, falling back to
// the catch-all.
func (e *Engine) zoneFor(code string) (Zone, bool) {
	var (
		best     Zone
		bestLen  = -1
		catchAll *Zone
	)
	for i := range e.table.Zones {
		z := e.table.Zones[i]
		if len(z.Prefixes) == 0 {
			catchAll = &e.table.Zones[i]
			continue
		}
		for _, p := range z.Prefixes {
			if strings.HasPrefix(code, p) && len(p) > bestLen {
				best, bestLen = z, len(p)
			}
		}
	}
	if bestLen >= 0 {
		return best, true
	}
	if catchAll != nil {
		return *catchAll, true
	}
	return Zone{}, false
}

func (e *Engine) penalty(from, to Zone) float64 {
	if from.Key == to.Key {
		return e.table.Penalties.SameZone
	}
	for _, pair := range e.table.Adjacent {
		if (pair[0] == from.Key && pair[1] == to.Key) || (pair[0] == to.Key && pair[1] == from.Key) {
			return e.table.Penalties.Adjacent
		}
	}
	return e.table.Penalties.Distant
}

func roundDays(d decimal.Decimal, min int) int {
	days := int(d.Round(0).IntPart())
	if days < min {
		return min
	}
	return days
}

// addBusinessDays walks forward from start, counting only Monday to Friday.
func addBusinessDays(start time.Time, days int) time.Time {
	d := start
	for remaining := days; remaining > 0; {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			remaining--
		}
	}
	return d
}
