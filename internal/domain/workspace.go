package domain

// Default budget caps applied when a workspace carries no override.
const (
	DefaultMonthlyBudgetUsd = 25.0
	DefaultDailyAttemptsMax = 20
)

// WorkspaceBudgetSettings is the per-workspace override of the default render
// spending caps. A nil settings row means the defaults apply.
type WorkspaceBudgetSettings struct {
	WorkspaceID      string
	MonthlyBudgetUsd float64
	DailyAttemptsMax int
}

// Normalized returns settings with defaults substituted for unset fields.
func (s *WorkspaceBudgetSettings) Normalized() WorkspaceBudgetSettings {
	out := WorkspaceBudgetSettings{
		MonthlyBudgetUsd: DefaultMonthlyBudgetUsd,
		DailyAttemptsMax: DefaultDailyAttemptsMax,
	}
	if s == nil {
		return out
	}
	out.WorkspaceID = s.WorkspaceID
	if s.MonthlyBudgetUsd > 0 {
		out.MonthlyBudgetUsd = s.MonthlyBudgetUsd
	}
	if s.DailyAttemptsMax > 0 {
		out.DailyAttemptsMax = s.DailyAttemptsMax
	}
	return out
}
