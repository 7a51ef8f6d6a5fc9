// Package settings is the typed, namespaced key/value server-configuration
// table, per spec §3 (ServerSetting) and §4.9's task orchestration toggles.
package settings

// Key is one enumerated setting name. String values match the dotted
// namespace the original used, since dashboards and migration tooling key
// off those exact strings.
type Key string

const (
	KeyInitialized  Key = "initialized"
	KeyRegistration Key = "registration"
	KeyAgent        Key = "agent"
	KeyAgentKey     Key = "agent.key"

	KeyStatsProjectsTotal      Key = "stats.projects.total"
	KeyStatsProjectsActive     Key = "stats.projects.active"
	KeyStatsProjectsInactive   Key = "stats.projects.inactive"
	KeyStatsProjectsArchived   Key = "stats.projects.archived"
	KeyStatsProjectsServers    Key = "stats.projects.servers"
	KeyStatsProjectsGroups     Key = "stats.projects.groups"
	KeyStatsProjectsContainers Key = "stats.projects.containers"

	KeySecurityAlertsTotal         Key = "security.alerts.total"
	KeySecurityAlertsCritical      Key = "security.alerts.critical"
	KeySecurityAlertsHigh          Key = "security.alerts.high"
	KeySecurityAlertsMedium        Key = "security.alerts.medium"
	KeySecurityAlertsLow           Key = "security.alerts.low"
	KeySecurityAlertsInformational Key = "security.alerts.informational"
	KeySecurityAlertsUnmaintained  Key = "security.alerts.unmaintained"
	KeySecurityAlertsMalware       Key = "security.alerts.malware"
	KeySecurityAlertsUnknown       Key = "security.alerts.unknown"

	KeyStatsUsersTotal    Key = "stats.users.total"
	KeyStatsUsersActive   Key = "stats.users.active"
	KeyStatsUsersInactive Key = "stats.users.inactive"

	KeyStatsDependenciesTotal     Key = "stats.dependencies.total"
	KeyStatsDependenciesLanguages Key = "stats.dependencies.languages"
	KeyStatsDependenciesSecure    Key = "stats.dependencies.secure"
	KeyStatsDependenciesInsecure  Key = "stats.dependencies.insecure"
	KeyStatsDependenciesUnused    Key = "stats.dependencies.unused"

	// KeyStatsAdvisoriesTotal has no equivalent in the original key
	// vocabulary; it is added because the Statistics Rollup task description
	// explicitly names "total advisories" as a tracked counter.
	KeyStatsAdvisoriesTotal Key = "stats.advisories.total"

	KeySecurity            Key = "security"
	KeySecurityToolsAlerts  Key = "security.tools.alerts"
	KeySecurityRescan       Key = "security.rescan"

	KeySecurityAdvisories        Key = "security.advisories"
	KeySecurityAdvisoriesPull    Key = "security.advisories.pull"
	KeySecurityAdvisoriesPolling Key = "security.advisories.polling"
	KeySecurityAdvisoriesVersion Key = "security.advisories.version"
	KeySecurityAdvisoriesUpdated Key = "security.advisories.updated"

	// Deprecated keys, pruned at startup — see Type Delete below.
	KeySecurityPolling     Key = "security.polling"
	KeySecurityAlertsOther Key = "security.alerts.other"
	KeySecurityGrype       Key = "security.grype"

	KeyUnknown Key = "unknown"
)

// Type is how a setting's string value should be interpreted and who may
// write it.
type Type string

const (
	TypeToggle     Type = "Toggle"
	TypeRegenerate Type = "Regenerate"
	TypeSetString  Type = "SetString"
	TypeBoolean    Type = "Boolean"
	TypeString     Type = "String"
	TypeInteger    Type = "Integer"
	TypeFloat      Type = "Float"
	TypeDatetime   Type = "Datetime"
	// TypeStatistics keys are writable only by the statistics rollup task,
	// per spec §3's ServerSetting invariant.
	TypeStatistics Type = "Statistics"
	// TypeDelete keys are pruned at startup.
	TypeDelete Type = "Delete"
)
