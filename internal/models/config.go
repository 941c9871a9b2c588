package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	StrategyStrict   = "strict"
	StrategyAdaptive = "adaptive"

	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"

	DefaultRetryWait    = 1 * time.Second
	DefaultMaxRetryWait = 30 * time.Second
)

// DefaultRetryableCodes are the transport statuses treated as transient store overload.
var DefaultRetryableCodes = []int{500, 503}

// WriterConfig is the configuration surface of the batch writer.
type WriterConfig struct {
	// RetryCount is the number of additional attempts after the first one.
	RetryCount   int           `default:"0" split_words:"true" validate:"gte=0"`
	RetryWait    time.Duration `default:"1s" split_words:"true" validate:"gte=0"`
	MaxRetryWait time.Duration `default:"30s" split_words:"true" validate:"gte=0"`
	Jitter       time.Duration `default:"0s" validate:"gte=0"`
	Backoff      string        `default:"fixed" validate:"oneof=fixed exponential"`

	Strategy         string `default:"strict" validate:"oneof=strict adaptive"`
	SchemaUpdateHint bool   `default:"true" split_words:"true"`

	RetryableCodes []int `default:"500,503" split_words:"true" validate:"dive,gte=100,lte=599"`
}

func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		RetryCount:       0,
		RetryWait:        DefaultRetryWait,
		MaxRetryWait:     DefaultMaxRetryWait,
		Backoff:          BackoffFixed,
		Strategy:         StrategyStrict,
		SchemaUpdateHint: true,
		RetryableCodes:   DefaultRetryableCodes,
	}
}

func (c WriterConfig) Validate() error {
	err := validator.New().Struct(c)
	if err != nil {
		return fmt.Errorf("invalid writer config: %w", err)
	}
	return nil
}
