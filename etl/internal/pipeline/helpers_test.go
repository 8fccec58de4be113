package pipeline

import "github.com/vizor/fleethealth/etl/internal/config"

func configAggregate(schema, unknown, malformed string) config.AggregateConfig {
	return config.AggregateConfig{
		CSVSchemaVersion:      schema,
		UnknownDevicePolicy:   unknown,
		MalformedMetricPolicy: malformed,
	}
}
