package config

import "os"

type Config struct {
	DatabaseURL    string
	RedisURL       string
	NatsURL        string
	KafkaBrokers   string
	AuditTopic     string
	BankBaseURL    string
	JaegerEndpoint string
	Port           string
}

func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	bankBaseURL := os.Getenv("BANK_BASE_URL")
	if bankBaseURL == "" {
		bankBaseURL = "http://localhost:8090"
	}

	auditTopic := os.Getenv("AUDIT_TOPIC")
	if auditTopic == "" {
		auditTopic = "payment.audit"
	}

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	return &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		NatsURL:        natsURL,
		KafkaBrokers:   os.Getenv("KAFKA_BROKERS"),
		AuditTopic:     auditTopic,
		BankBaseURL:    bankBaseURL,
		JaegerEndpoint: os.Getenv("JAEGER_ENDPOINT"),
		Port:           port,
	}
}
