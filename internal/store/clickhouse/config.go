package clickhouse

import "time"

type Config struct {
	Host                 string        `default:"127.0.0.1" validate:"required"`
	Port                 string        `default:"9000" validate:"required"`
	Username             string        `default:"default"`
	Password             string        // base64 encoded
	Database             string        `default:"default" validate:"required"`
	Secure               bool          `default:"false"`
	SkipCertificateCheck bool          `default:"false" split_words:"true"`
	MaxOpenConns         int           `default:"4" split_words:"true" validate:"gte=1"`
	DialTimeout          time.Duration `default:"5s" split_words:"true"`
	ColumnCacheSize      int           `default:"128" split_words:"true" validate:"gte=1"`
	ColumnCacheTTL       time.Duration `default:"5m" split_words:"true" validate:"gte=0"`
}
