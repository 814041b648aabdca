package metrics

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("action", "prophecy"),
		attribute.String("player_id", "p-123"),
		attribute.String("endpoint", "/gpt/oracle-action"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "action" && attrs[1].Key != "action" {
		t.Fatalf("expected action to be retained")
	}
	if attrs[0].Key != "endpoint" && attrs[1].Key != "endpoint" {
		t.Fatalf("expected endpoint to be retained")
	}
}
