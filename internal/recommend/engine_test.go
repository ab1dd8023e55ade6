package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProviders() []ProviderProfile {
	return []ProviderProfile{
		{
			ID: "alpha", Active: true, Quality: 80, Latency: 60,
			Strengths: []string{"awareness"}, Channels: []string{"instagram", "tiktok"},
			RatePerSecondUsd: 0.50,
		},
		{
			ID: "beta", Active: true, Quality: 60, Latency: 90,
			Strengths: []string{"conversion"}, Channels: []string{"instagram"},
			RatePerSecondUsd: 0.10,
		},
		{
			ID: "ghost", Active: false, Quality: 99, Latency: 99,
			Strengths: []string{"awareness"}, Channels: []string{"instagram"},
			RatePerSecondUsd: 0.01,
		},
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	ctx := Context{
		Goal:            "awareness",
		Channels:        []string{"instagram", "tiktok"},
		DurationSeconds: 10,
		QualityTier:     TierBalanced,
		BudgetBand:      "medium",
		Providers:       testProviders(),
	}
	first := Score(ctx)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Score(ctx))
	}
}

func TestScoreSkipsInactiveProviders(t *testing.T) {
	ranking := Score(Context{Goal: "awareness", QualityTier: TierBalanced, Providers: testProviders()})
	for _, row := range ranking.Providers {
		assert.NotEqual(t, "ghost", row.ProviderID)
	}
	assert.Len(t, ranking.Providers, 2)
}

func TestFitScoreFormula(t *testing.T) {
	ctx := Context{
		Goal:     "awareness",
		Channels: []string{"instagram", "tiktok"},
	}
	// Full overlap and matching goal: 0.6*100 + 0.4*100 = 100.
	assert.InDelta(t, 100.0, fitScore(ctx, testProviders()[0]), 1e-9)
	// Half overlap, goal not in strengths: 0.6*50 + 0.4*30 = 42.
	assert.InDelta(t, 42.0, fitScore(ctx, testProviders()[1]), 1e-9)
}

func TestTierWeightsShiftRanking(t *testing.T) {
	ctx := Context{
		Goal:            "conversion",
		Channels:        []string{"instagram"},
		DurationSeconds: 5,
		BudgetBand:      BudgetBandUnlimited,
		Providers:       testProviders(),
	}

	ctx.QualityTier = TierFast
	fast := Score(ctx)
	require.NotEmpty(t, fast.Providers)
	assert.Equal(t, "beta", fast.Providers[0].ProviderID, "fast tier favors the low-latency provider")

	ctx.QualityTier = TierPremium
	premium := Score(ctx)
	// Premium weighting lifts quality: alpha's quality edge narrows the gap,
	// but beta's perfect goal fit still decides. Verify the contributions
	// rather than hardcoding the winner.
	for _, row := range premium.Providers {
		if row.ProviderID == "alpha" {
			assert.InDelta(t, 80*0.55, row.QualityContribution, 1e-9)
			assert.InDelta(t, 60*0.20, row.LatencyContribution, 1e-9)
		}
	}
}

func TestBudgetBandDisqualifiesButKeepsScore(t *testing.T) {
	ctx := Context{
		Goal:            "awareness",
		Channels:        []string{"instagram"},
		DurationSeconds: 10,
		QualityTier:     TierBalanced,
		BudgetBand:      "micro", // $1 cap; alpha costs $5, beta $1
		Providers:       testProviders(),
	}
	ranking := Score(ctx)
	require.Len(t, ranking.Providers, 2)
	assert.False(t, ranking.FallbackUsed)

	alpha := findRow(t, ranking, "alpha")
	assert.True(t, alpha.Disqualified)
	assert.False(t, alpha.WithinBudget)
	assert.InDelta(t, 5.0, alpha.EstimatedCost, 1e-9)

	beta := findRow(t, ranking, "beta")
	assert.False(t, beta.Disqualified)

	// Disqualified providers never outrank qualified ones regardless of score.
	assert.Equal(t, "beta", ranking.Providers[0].ProviderID)
}

func TestAllDisqualifiedStillReturnsRankedFallback(t *testing.T) {
	ctx := Context{
		Goal:            "awareness",
		DurationSeconds: 100, // every provider blows the micro cap
		QualityTier:     TierBalanced,
		BudgetBand:      "micro",
		Providers:       testProviders(),
	}
	ranking := Score(ctx)
	require.Len(t, ranking.Providers, 2)
	assert.True(t, ranking.FallbackUsed)
	// Top of the list is still the best-scored option.
	assert.GreaterOrEqual(t, ranking.Providers[0].TotalScore, ranking.Providers[1].TotalScore)
}

func TestUnlimitedBandNeverDisqualifies(t *testing.T) {
	ctx := Context{
		Goal:            "awareness",
		DurationSeconds: 10000,
		QualityTier:     TierBalanced,
		BudgetBand:      BudgetBandUnlimited,
		Providers:       testProviders(),
	}
	for _, row := range Score(ctx).Providers {
		assert.False(t, row.Disqualified)
		assert.True(t, row.WithinBudget)
	}
}

func TestUnknownTierFallsBackToBalanced(t *testing.T) {
	ctx := Context{Goal: "awareness", QualityTier: "turbo", Providers: testProviders()}
	balanced := ctx
	balanced.QualityTier = TierBalanced
	assert.Equal(t, Score(balanced), Score(ctx))
}

func findRow(t *testing.T, ranking Ranking, id string) ScoredProvider {
	t.Helper()
	for _, row := range ranking.Providers {
		if row.ProviderID == id {
			return row
		}
	}
	t.Fatalf("provider %s not in ranking", id)
	return ScoredProvider{}
}
