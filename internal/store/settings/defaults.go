package settings

// Default is one seeded (key, type, value) row.
type Default struct {
	Key   Key
	Type  Type
	Value string
}

// Defaults mirrors the original server's seed table: registration/agent
// toggles, statistics counters zeroed, security features off by default,
// and the deprecated keys marked for pruning at startup.
var Defaults = []Default{
	{KeyRegistration, TypeToggle, "enabled"},
	{KeyInitialized, TypeBoolean, "false"},
	{KeyAgent, TypeToggle, "disabled"},

	{KeyStatsProjectsTotal, TypeStatistics, "0"},
	{KeyStatsProjectsActive, TypeStatistics, "0"},
	{KeyStatsProjectsInactive, TypeStatistics, "0"},
	{KeyStatsProjectsArchived, TypeStatistics, "0"},
	{KeyStatsProjectsGroups, TypeStatistics, "0"},
	{KeyStatsProjectsServers, TypeStatistics, "0"},
	{KeyStatsProjectsContainers, TypeStatistics, "0"},

	{KeyStatsDependenciesTotal, TypeStatistics, "0"},
	{KeyStatsDependenciesLanguages, TypeStatistics, "0"},
	{KeyStatsDependenciesSecure, TypeStatistics, "0"},
	{KeyStatsDependenciesInsecure, TypeStatistics, "0"},
	{KeyStatsDependenciesUnused, TypeStatistics, "0"},

	{KeyStatsUsersTotal, TypeStatistics, "0"},
	{KeyStatsUsersActive, TypeStatistics, "0"},
	{KeyStatsUsersInactive, TypeStatistics, "0"},

	{KeyStatsAdvisoriesTotal, TypeStatistics, "0"},

	{KeySecurityAlertsTotal, TypeStatistics, "0"},
	{KeySecurityAlertsCritical, TypeStatistics, "0"},
	{KeySecurityAlertsHigh, TypeStatistics, "0"},
	{KeySecurityAlertsMedium, TypeStatistics, "0"},
	{KeySecurityAlertsLow, TypeStatistics, "0"},
	{KeySecurityAlertsInformational, TypeStatistics, "0"},
	{KeySecurityAlertsUnmaintained, TypeStatistics, "0"},
	{KeySecurityAlertsMalware, TypeStatistics, "0"},
	{KeySecurityAlertsUnknown, TypeStatistics, "0"},

	{KeySecurity, TypeToggle, "disabled"},
	{KeySecurityToolsAlerts, TypeToggle, "enabled"},
	{KeySecurityRescan, TypeToggle, "disabled"},

	{KeySecurityAdvisories, TypeToggle, "disabled"},
	{KeySecurityAdvisoriesPull, TypeToggle, "disabled"},
	{KeySecurityAdvisoriesVersion, TypeString, "Unknown"},
	{KeySecurityAdvisoriesUpdated, TypeDatetime, "Unknown"},
	{KeySecurityAdvisoriesPolling, TypeToggle, "disabled"},

	// Deprecated: pruned at startup by Store.PruneDeleted.
	{KeySecurityPolling, TypeDelete, ""},
	{KeySecurityAlertsOther, TypeDelete, ""},
	{KeySecurityGrype, TypeDelete, ""},
}
