package observability

import (
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	storeKey    = attribute.Key("tablewriter.store")
	strategyKey = attribute.Key("tablewriter.strategy")
)

func buildResourceAttributes(cfg *Config) []attribute.KeyValue {
	attributes := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
	}

	if cfg.ServiceNamespace != "" {
		attributes = append(attributes, semconv.ServiceNamespaceKey.String(cfg.ServiceNamespace))
	}

	if cfg.InstanceID != "" {
		attributes = append(attributes, semconv.ServiceInstanceIDKey.String(cfg.InstanceID))
	}

	if cfg.Store != "" {
		attributes = append(attributes, storeKey.String(cfg.Store))
	}

	if cfg.Strategy != "" {
		attributes = append(attributes, strategyKey.String(cfg.Strategy))
	}

	return attributes
}
