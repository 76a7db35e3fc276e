package database

import "github.com/noah-isme/mail-webhook-renewal/pkg/config"

func configFixture() config.DatabaseConfig {
	return config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
}
