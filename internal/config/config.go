package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is read from the environment. Empty connection URLs switch the
// matching backend off.
type Config struct {
	Port           string `env:"PORT" envDefault:"8082"`
	DatabaseURL    string `env:"DATABASE_URL"`
	RedisURL       string `env:"REDIS_URL"`
	JaegerEndpoint string `env:"JAEGER_ENDPOINT"`

	KafkaBrokers      []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaStateTopic   string   `env:"KAFKA_STATE_TOPIC" envDefault:"payment.state.changed"`
	KafkaCommandTopic string   `env:"KAFKA_COMMAND_TOPIC" envDefault:"payment.commands"`
	KafkaGroupID      string   `env:"KAFKA_GROUP_ID" envDefault:"payment-statemachine"`

	NatsURL     string `env:"NATS_URL"`
	NatsSubject string `env:"NATS_SUBJECT" envDefault:"payment.state.changed"`

	InitialBalance  decimal.Decimal `env:"ACCOUNT_INITIAL_BALANCE" envDefault:"1000"`
	LimitPerPayment decimal.Decimal `env:"ACCOUNT_LIMIT_PER_PAYMENT" envDefault:"500"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.InitialBalance.IsNegative() {
		return errors.New("ACCOUNT_INITIAL_BALANCE must not be negative")
	}
	if !c.LimitPerPayment.IsPositive() {
		return errors.New("ACCOUNT_LIMIT_PER_PAYMENT must be positive")
	}
	return nil
}

func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
