package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			GroupOnly: false,
		},
		Telegram: TelegramConfig{},
		Database: DatabaseConfig{
			Path: "~/.lookupbot/lookupbot.db",
		},
		Branding: BrandingConfig{
			Developer: "@lookupbot",
			PoweredBy: "lookupbot",
		},
		Redaction: RedactionConfig{
			Blacklist: nil,
		},
		Limits: LimitsConfig{
			LookupTimeoutSeconds: 20,
			InlineMaxLen:         4096,
			RedactedMaxLen:       3000,
			CacheTTLSeconds:      300,
			AuditTruncateLen:     4000,
		},
		Health: HealthConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
		},
		Registry: "~/.lookupbot/commands.yaml",
	}
}
