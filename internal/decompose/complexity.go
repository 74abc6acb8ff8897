package decompose

import (
	"strings"

	"github.com/tactix-ai/tactix/pkg/models"
)

// ComplexityKeywords is the single source of truth for complexity
// classification keywords used by the estimator.
type ComplexityKeywords struct {
	// Simple keywords indicate single-step requests.
	Simple []string
	// Complex keywords indicate requests needing parallel branches.
	Complex []string
	// Expert keywords indicate requests needing design, review, and
	// integration passes.
	Expert []string

	// Medium has no keywords: it is the default when nothing else matches.
}

// DefaultComplexityKeywords returns the authoritative keyword mappings.
var DefaultComplexityKeywords = ComplexityKeywords{
	Simple: []string{
		"typo",
		"rename",
		"formatting",
		"comment",
		"tweak",
		"small fix",
	},
	Complex: []string{
		"pipeline",
		"service",
		"dashboard",
		"integration",
		"workflow",
		"api",
		"end-to-end",
		"multi",
	},
	Expert: []string{
		"architecture",
		"redesign",
		"migration",
		"distributed",
		"security",
		"authentication",
		"infrastructure",
		"platform",
		"overhaul",
	},
}

// domainKeywords map detected request domains to a criticality boost.
// Security-adjacent domains push tasks toward more conservative handling.
var domainKeywords = map[string]float64{
	"login":    0.2,
	"payment":  0.3,
	"auth":     0.3,
	"password": 0.2,
	"billing":  0.3,
	"admin":    0.2,
}

// Estimator classifies request complexity from input heuristics: length,
// keyword density, and detected domain.
type Estimator struct {
	keywords ComplexityKeywords
}

// NewEstimator creates an Estimator with the default keyword tables.
func NewEstimator() *Estimator {
	return &Estimator{keywords: DefaultComplexityKeywords}
}

// Estimate returns the complexity class for a request.
// Priority: expert keywords > complex keywords > length signals > simple
// keywords > medium default.
func (e *Estimator) Estimate(request string) models.Complexity {
	lower := strings.ToLower(request)
	words := len(strings.Fields(request))

	for _, kw := range e.keywords.Expert {
		if strings.Contains(lower, kw) {
			return models.ComplexityExpert
		}
	}
	for _, kw := range e.keywords.Complex {
		if strings.Contains(lower, kw) {
			return models.ComplexityComplex
		}
	}

	// Long requests carry more scope than their vocabulary admits.
	if words > 120 {
		return models.ComplexityComplex
	}

	for _, kw := range e.keywords.Simple {
		if strings.Contains(lower, kw) {
			if words <= 30 {
				return models.ComplexitySimple
			}
		}
	}

	return models.ComplexityMedium
}

// Criticality derives a base criticality score in [0,1] from detected
// domain keywords. The adaptive strategy consumes it per task.
func (e *Estimator) Criticality(request string) float64 {
	lower := strings.ToLower(request)
	score := 0.5
	for kw, boost := range domainKeywords {
		if strings.Contains(lower, kw) {
			score += boost
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
