package config

import (
	"log"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

func init() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, falling back to system environment variables")
	}
}

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required"`
	StoragePath  string `env:"STORAGE_PATH" envDefault:"datastore.json"`

	// Control API. An empty APIToken disables the shared-secret check.
	APIHost  string `env:"CONTROL_API_HOST" envDefault:"0.0.0.0"`
	APIPort  int    `env:"CONTROL_API_PORT" envDefault:"8000"`
	APIToken string `env:"CONTROL_API_TOKEN"`

	// Optional outbound proxy for track extraction (http, socks4 or socks5 URL).
	ExtractProxy string `env:"EXTRACT_PROXY"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatal("Failed to parse environment: ", err)
	}
	return cfg
}
