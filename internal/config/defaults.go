package config

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "127.0.0.1",
			Port:             8080,
			WebsocketEnabled: false,
		},
		Mailbox: MailboxConfig{
			MaxPerConversation: 100,
			PollIntervalMs:     2000,
		},
		Relay: RelayConfig{
			// Disabled until a webhook URL is configured; the webhook then
			// stores messages without forwarding downstream.
			Enabled:        false,
			TimeoutSeconds: 15,
		},
		Display: DisplayConfig{
			PageTitle: "Chat",
			AgentName: "Agente",
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
