package settings

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the dashboard site name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback dashboard site name.
	DefaultSiteName = "Zapdesk"
	// SyncIntervalSecondsKey controls the background reconciliation interval in seconds.
	SyncIntervalSecondsKey = "SYNC_INTERVAL_SECONDS"
	// ActivityLogRetentionDaysKey controls how long activity log rows are kept; 0 disables cleanup.
	ActivityLogRetentionDaysKey = "ACTIVITY_LOG_RETENTION_DAYS"
	// LoginRateLimitPerMinuteKey controls the per-IP login attempt limit; 0 disables limiting.
	LoginRateLimitPerMinuteKey = "LOGIN_RATE_LIMIT_PER_MINUTE"
	// DefaultSyncIntervalSeconds is the fallback reconciliation interval (seconds).
	DefaultSyncIntervalSeconds = 300
	// DefaultActivityLogRetentionDays is the fallback activity log retention window.
	DefaultActivityLogRetentionDays = 90
	// DefaultLoginRateLimitPerMinute is the fallback per-IP login attempt limit.
	DefaultLoginRateLimitPerMinute = 10
)
