package features

import (
	"context"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// RiskIndicators are the binary risk flags derived from a transaction's
// categorical and contextual attributes. One instance per request.
type RiskIndicators struct {
	IsHighRiskCountry  bool `json:"isHighRiskCountry"`
	IsHighRiskMerchant bool `json:"isHighRiskMerchant"`
	IsNight            bool `json:"isNight"`
	IsOnline           bool `json:"isOnline"`

	// History-backed flags. False unless a real HistoryLookup is wired:
	// they require durable cross-request history.
	IsNewMerchant   bool `json:"isNewMerchant"`
	IsNewCountry    bool `json:"isNewCountry"`
	IsVelocitySpike bool `json:"isVelocitySpike"`
	IsAmountSpike   bool `json:"isAmountSpike"`
}

// FlagMap returns the indicators keyed by their snake_case names, the form
// override rule expressions reference them in.
func (i RiskIndicators) FlagMap() map[string]bool {
	return map[string]bool{
		"is_high_risk_country":  i.IsHighRiskCountry,
		"is_high_risk_merchant": i.IsHighRiskMerchant,
		"is_night":              i.IsNight,
		"is_online":             i.IsOnline,
		"is_new_merchant":       i.IsNewMerchant,
		"is_new_country":        i.IsNewCountry,
		"is_velocity_spike":     i.IsVelocitySpike,
		"is_amount_spike":       i.IsAmountSpike,
	}
}

// Static risk lists the calculator is seeded with.
var (
	defaultHighRiskCountries = []string{
		"NG", "PK", "VE", "RO", "ID", "VN", "BD", "GH", "KE", "UA",
	}
	defaultHighRiskMerchants = []string{
		"gambling", "crypto", "money_service", "wire_transfer", "adult", "jewelry",
	}
)

// Flag weights for the composite indicator score.
const (
	highRiskCountryWeight  = 0.30
	highRiskMerchantWeight = 0.25
	nightFlagWeight        = 0.15
	onlineFlagWeight       = 0.10
	newMerchantWeight      = 0.15
	newCountryWeight       = 0.20
	velocitySpikeWeight    = 0.30
	amountSpikeWeight      = 0.25
)

// velocitySpikeThreshold is the hourly transaction count above which the
// velocity flag trips when history is available.
const velocitySpikeThreshold = 10

// RiskCalculator derives risk flags against runtime-mutable risk lists,
// with an optional history lookup for the cross-request flags.
type RiskCalculator struct {
	mu                sync.RWMutex
	highRiskCountries map[string]struct{}
	highRiskMerchants map[string]struct{}

	history domain.HistoryLookup
}

// NewRiskCalculator creates a calculator seeded from the static risk lists.
// A nil history falls back to the no-op lookup.
func NewRiskCalculator(history domain.HistoryLookup) *RiskCalculator {
	if history == nil {
		history = domain.NoopHistory{}
	}

	countries := make(map[string]struct{}, len(defaultHighRiskCountries))
	for _, c := range defaultHighRiskCountries {
		countries[c] = struct{}{}
	}
	merchants := make(map[string]struct{}, len(defaultHighRiskMerchants))
	for _, m := range defaultHighRiskMerchants {
		merchants[m] = struct{}{}
	}

	return &RiskCalculator{
		highRiskCountries: countries,
		highRiskMerchants: merchants,
		history:           history,
	}
}

// AddHighRiskCountry adds a country code to the high-risk set.
func (c *RiskCalculator) AddHighRiskCountry(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.highRiskCountries[code] = struct{}{}
}

// RemoveHighRiskCountry removes a country code from the high-risk set.
func (c *RiskCalculator) RemoveHighRiskCountry(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.highRiskCountries, code)
}

// AddHighRiskMerchant adds a merchant category to the high-risk set.
func (c *RiskCalculator) AddHighRiskMerchant(category string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.highRiskMerchants[category] = struct{}{}
}

// RemoveHighRiskMerchant removes a merchant category from the high-risk set.
func (c *RiskCalculator) RemoveHighRiskMerchant(category string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.highRiskMerchants, category)
}

// Calculate derives the eight risk flags for a transaction. History lookup
// failures degrade to the all-false defaults rather than failing the request.
func (c *RiskCalculator) Calculate(ctx context.Context, tx *domain.RawTransaction) RiskIndicators {
	summary, err := c.history.Summary(ctx, tx.CustomerID, tx.MerchantID, tx.Country)
	if err != nil {
		summary = nil
	}
	return c.CalculateFrom(tx, summary)
}

// CalculateFrom derives the flags using an already-fetched activity summary.
// A nil summary leaves the four history-backed flags false.
func (c *RiskCalculator) CalculateFrom(tx *domain.RawTransaction, summary *domain.ActivitySummary) RiskIndicators {
	hour := tx.Timestamp.UTC().Hour()

	c.mu.RLock()
	_, highCountry := c.highRiskCountries[tx.Country]
	_, highMerchant := c.highRiskMerchants[tx.MerchantCategory]
	c.mu.RUnlock()

	ind := RiskIndicators{
		IsHighRiskCountry:  highCountry,
		IsHighRiskMerchant: highMerchant,
		IsNight:            hour >= 22 || hour <= 6,
		IsOnline:           tx.Channel == "online",
	}

	if summary != nil {
		ind.IsNewMerchant = tx.MerchantID != "" && summary.MerchantTxCount == 0
		ind.IsNewCountry = tx.Country != "" && summary.CountryTxCount == 0
		ind.IsVelocitySpike = summary.TxCountLastHour > velocitySpikeThreshold
		if summary.StdAmount > 0 {
			ind.IsAmountSpike = tx.Amount > summary.MeanAmount+3*summary.StdAmount
		}
	}

	return ind
}

// Score sums the weighted flag hits, capped at 1.0.
func (c *RiskCalculator) Score(ind RiskIndicators) float64 {
	var score float64
	if ind.IsHighRiskCountry {
		score += highRiskCountryWeight
	}
	if ind.IsHighRiskMerchant {
		score += highRiskMerchantWeight
	}
	if ind.IsNight {
		score += nightFlagWeight
	}
	if ind.IsOnline {
		score += onlineFlagWeight
	}
	if ind.IsNewMerchant {
		score += newMerchantWeight
	}
	if ind.IsNewCountry {
		score += newCountryWeight
	}
	if ind.IsVelocitySpike {
		score += velocitySpikeWeight
	}
	if ind.IsAmountSpike {
		score += amountSpikeWeight
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Classify maps the weighted flag score to the four-tier risk level.
func (c *RiskCalculator) Classify(ind RiskIndicators) domain.RiskLevel {
	return domain.RiskLevelFromScore(c.Score(ind))
}
