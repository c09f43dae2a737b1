package metrics

import "go.opentelemetry.io/otel/attribute"

func scopeAttr(scope string) attribute.KeyValue {
	return attribute.String("scope", scope)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String("outcome", outcome)
}
