package recommend

// DefaultCatalog describes the providers the platform integrates today.
// Quality and latency figures come from internal benchmark runs and are
// revisited when vendors ship new models.
func DefaultCatalog() []ProviderProfile {
	return []ProviderProfile{
		{
			ID:               "runway",
			Active:           true,
			Quality:          82,
			Latency:          68,
			Strengths:        []string{"awareness", "engagement"},
			Channels:         []string{"instagram", "tiktok", "youtube"},
			RatePerSecondUsd: 0.50,
		},
		{
			ID:               "stability",
			Active:           true,
			Quality:          74,
			Latency:          80,
			Strengths:        []string{"conversion", "education"},
			Channels:         []string{"instagram", "facebook", "linkedin"},
			RatePerSecondUsd: 0.20,
		},
		{
			// Kept in the catalog for scoring experiments; the adapter is not
			// wired yet so the profile stays inactive.
			ID:               "veo",
			Active:           false,
			Quality:          90,
			Latency:          40,
			Strengths:        []string{"awareness"},
			Channels:         []string{"youtube"},
			RatePerSecondUsd: 0.95,
		},
	}
}
