package recommend

import (
	"sort"
	"strings"
)

// QualityTier reweights the scoring toward speed or fidelity.
type QualityTier string

const (
	TierFast     QualityTier = "fast"
	TierBalanced QualityTier = "balanced"
	TierPremium  QualityTier = "premium"
)

// tier weights: quality, latency, fit.
var tierWeights = map[QualityTier][3]float64{
	TierFast:     {0.20, 0.55, 0.25},
	TierBalanced: {0.40, 0.35, 0.25},
	TierPremium:  {0.55, 0.20, 0.25},
}

// BudgetBandUnlimited disables cost disqualification.
const BudgetBandUnlimited = "unlimited"

// budgetBandCaps maps a caller-declared spending tier to a per-render cap.
var budgetBandCaps = map[string]float64{
	"micro":  1.00,
	"small":  5.00,
	"medium": 15.00,
	"large":  50.00,
}

// ProviderProfile is the static description of one provider the engine scores.
// Quality and Latency are 0-100 benchmarks; RatePerSecondUsd drives the cost
// estimate.
type ProviderProfile struct {
	ID               string
	Active           bool
	Quality          float64
	Latency          float64
	Strengths        []string
	Channels         []string
	RatePerSecondUsd float64
}

// Context is everything the engine needs. Scoring is deterministic in its
// inputs: no ledger, no credentials, no clock.
type Context struct {
	Goal            string
	Channels        []string
	DurationSeconds int
	QualityTier     QualityTier
	BudgetBand      string
	Providers       []ProviderProfile
}

// ScoredProvider is one row of the ranking.
type ScoredProvider struct {
	ProviderID          string  `json:"provider_id"`
	TotalScore          float64 `json:"total_score"`
	QualityContribution float64 `json:"quality_contribution"`
	LatencyContribution float64 `json:"latency_contribution"`
	FitContribution     float64 `json:"fit_contribution"`
	EstimatedCost       float64 `json:"estimated_cost"`
	WithinBudget        bool    `json:"within_budget"`
	Disqualified        bool    `json:"disqualified"`
	Reason              string  `json:"reason,omitempty"`
}

// Ranking is the engine's output. When every provider is disqualified the
// top-scored one is still first and FallbackUsed is set so the caller can warn
// the user.
type Ranking struct {
	Providers    []ScoredProvider `json:"providers"`
	FallbackUsed bool             `json:"fallback_used"`
}

// Score ranks the context's providers. Inactive profiles are skipped.
// Qualified providers sort before disqualified ones, each group by descending
// score with the provider id as a deterministic tie-break.
func Score(ctx Context) Ranking {
	providers := ctx.Providers
	if len(providers) == 0 {
		providers = DefaultCatalog()
	}
	weights, ok := tierWeights[ctx.QualityTier]
	if !ok {
		weights = tierWeights[TierBalanced]
	}
	cap, capped := budgetBandCaps[strings.ToLower(strings.TrimSpace(ctx.BudgetBand))]
	if strings.EqualFold(ctx.BudgetBand, BudgetBandUnlimited) {
		capped = false
	}

	scored := make([]ScoredProvider, 0, len(providers))
	for _, p := range providers {
		if !p.Active {
			continue
		}
		fit := fitScore(ctx, p)
		row := ScoredProvider{
			ProviderID:          p.ID,
			QualityContribution: p.Quality * weights[0],
			LatencyContribution: p.Latency * weights[1],
			FitContribution:     fit * weights[2],
			EstimatedCost:       p.RatePerSecondUsd * float64(ctx.DurationSeconds),
			WithinBudget:        true,
		}
		row.TotalScore = row.QualityContribution + row.LatencyContribution + row.FitContribution
		if capped && row.EstimatedCost > cap {
			row.WithinBudget = false
			row.Disqualified = true
			row.Reason = "estimated cost exceeds budget band"
		}
		scored = append(scored, row)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Disqualified != scored[j].Disqualified {
			return !scored[i].Disqualified
		}
		if scored[i].TotalScore != scored[j].TotalScore {
			return scored[i].TotalScore > scored[j].TotalScore
		}
		return scored[i].ProviderID < scored[j].ProviderID
	})

	ranking := Ranking{Providers: scored}
	if len(scored) > 0 {
		allOut := true
		for _, row := range scored {
			if !row.Disqualified {
				allOut = false
				break
			}
		}
		ranking.FallbackUsed = allOut
	}
	return ranking
}

// fitScore blends how many of the requested channels the provider serves with
// whether the campaign goal is among its strengths.
func fitScore(ctx Context, p ProviderProfile) float64 {
	overlap := channelOverlap(ctx.Channels, p.Channels)
	goalScore := 30.0
	if containsFold(p.Strengths, ctx.Goal) {
		goalScore = 100.0
	}
	return 0.6*overlap*100 + 0.4*goalScore
}

// channelOverlap returns the fraction of requested channels the provider
// covers. With no channels requested every provider gets full credit, keeping
// the term neutral.
func channelOverlap(requested, offered []string) float64 {
	if len(requested) == 0 {
		return 1.0
	}
	matched := 0
	for _, ch := range requested {
		if containsFold(offered, ch) {
			matched++
		}
	}
	return float64(matched) / float64(len(requested))
}

func containsFold(haystack []string, needle string) bool {
	for _, v := range haystack {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(needle)) {
			return true
		}
	}
	return false
}
