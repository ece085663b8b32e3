package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:           "info",
			MaxIterations:      10,
			RateLimitPerMinute: 30,
			UserID:             "default",
			Language:           "en",
			Timezone:           "UTC",
			Units: map[string]string{
				"temperature": "celsius",
				"distance":    "km",
				"weight":      "kg",
			},
		},
		Oracle: OracleConfig{
			Provider:       "ollama",
			Temperature:    0.7,
			MaxTokens:      1000,
			TimeoutSeconds: 120,
		},
		Providers: map[string]ProviderConfig{
			"ollama": {
				APIBase:      "http://localhost:11434",
				DefaultModel: "llama3.1:8b",
			},
			"openai": {
				APIBase:      "https://api.openai.com/v1",
				DefaultModel: "gpt-4o-mini",
			},
		},
		Tools: ToolsConfig{
			Dir:             "~/.modbot/tools",
			Watch:           false,
			WatchDebounceMs: 500,
			Command: CommandToolConfig{
				TimeoutSeconds: 30,
				MaxOutputBytes: 65536,
			},
		},
		Audit: AuditConfig{
			Enabled:       true,
			DBPath:        "~/.modbot/audit.db",
			RetentionDays: 90,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Listen:   "127.0.0.1:9464",
			Endpoint: "/metrics",
		},
	}
}
