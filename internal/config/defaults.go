package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			DataDir:               "~/.hookchat",
			LogLevel:              "info",
			RequestTimeoutSeconds: 120,
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Uploads: UploadsConfig{
			MaxFileBytes:      50 * 1024 * 1024,
			ClearDelaySeconds: 2,
		},
		Telegram: TelegramConfig{
			Enabled: false,
		},
	}
}
