// Package scorer computes the weighted ICP score and priority tier of a
// canonical contractor.
package scorer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/icp-resolver/internal/config"
)

// DefaultScorerConfig returns a config.ScorerConfig with sensible defaults.
// Weights sum to 1.0.
func DefaultScorerConfig() config.ScorerConfig {
	return config.ScorerConfig{
		// Weights (sum = 1.0).
		ResimercialWeight:  0.35,
		CertBreadthWeight:  0.25,
		TradeBreadthWeight: 0.25,
		OMWeight:           0.15,

		// Saturation points.
		CertSaturation:  3,
		TradeSaturation: 3,
		OMSaturation:    2,

		// Keywords.
		CommercialKeywords: []string{
			"commercial", "industrial", "c&i", "enterprise", "business",
			"facility", "facilities", "municipal", "utility", "contracting",
		},
		ResidentialKeywords: []string{
			"residential", "home", "homes", "house", "homeowner", "family",
		},
		OMKeywords: []string{
			"service", "services", "maintenance", "repair", "o&m",
			"operations", "monitoring",
		},
		TradeKeywords: map[string][]string{
			"electrical": {"electric", "electrical", "electrician"},
			"hvac":       {"hvac", "heating", "cooling", "air conditioning", "mechanical"},
			"plumbing":   {"plumbing", "plumber"},
			"roofing":    {"roof", "roofing", "roofer"},
			"solar":      {"solar", "pv", "photovoltaic"},
			"generator":  {"generator", "generators", "backup power"},
			"storage":    {"battery", "batteries", "energy storage"},
		},
	}
}

// WeightSum returns the sum of all factor weights.
func WeightSum(c config.ScorerConfig) float64 {
	return c.ResimercialWeight + c.CertBreadthWeight + c.TradeBreadthWeight + c.OMWeight
}

// ValidateConfig checks that a ScorerConfig is internally consistent.
func ValidateConfig(c config.ScorerConfig) error {
	var errs []string

	// All weights must be non-negative.
	weights := map[string]float64{
		"resimercial_weight":   c.ResimercialWeight,
		"cert_breadth_weight":  c.CertBreadthWeight,
		"trade_breadth_weight": c.TradeBreadthWeight,
		"om_weight":            c.OMWeight,
	}
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if weights[name] < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	// Weights must sum to 1.0 (tolerance for floating-point).
	if sum := WeightSum(c); math.Abs(sum-1) > 0.001 {
		errs = append(errs, fmt.Sprintf("weights must sum to 1.0, got %.3f", sum))
	}

	if c.CertSaturation < 1 {
		errs = append(errs, "cert_saturation must be >= 1")
	}
	if c.TradeSaturation < 1 {
		errs = append(errs, "trade_saturation must be >= 1")
	}
	if c.OMSaturation < 1 {
		errs = append(errs, "om_saturation must be >= 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// withDefaults fills empty keyword tables from DefaultScorerConfig.
func withDefaults(c config.ScorerConfig) config.ScorerConfig {
	d := DefaultScorerConfig()
	if len(c.CommercialKeywords) == 0 {
		c.CommercialKeywords = d.CommercialKeywords
	}
	if len(c.ResidentialKeywords) == 0 {
		c.ResidentialKeywords = d.ResidentialKeywords
	}
	if len(c.OMKeywords) == 0 {
		c.OMKeywords = d.OMKeywords
	}
	if len(c.TradeKeywords) == 0 {
		c.TradeKeywords = d.TradeKeywords
	}
	return c
}
