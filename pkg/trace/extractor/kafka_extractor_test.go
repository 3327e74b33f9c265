package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tracescope/tracescope/pkg/trace/model"
)

func TestExtractKafkaInfo(t *testing.T) {
	t.Run("Classifies consumer and producer spans", func(t *testing.T) {
		consumer := &model.Span{Name: "order-events receive", Kind: model.KindConsumer}
		operation, name, details := ExtractKafkaInfo(consumer)
		assert.Equal(t, KafkaOpConsumer, operation)
		assert.Equal(t, "order-events receive", name)
		assert.Equal(t, model.NoDetails, details)

		producer := &model.Span{Name: "order-events send", Kind: model.KindProducer}
		operation, _, _ = ExtractKafkaInfo(producer)
		assert.Equal(t, KafkaOpProducer, operation)
	})

	t.Run("Joins recognized detail attributes in order", func(t *testing.T) {
		span := &model.Span{
			Name: "order-events send",
			Kind: model.KindProducer,
			Attributes: map[string]model.AttributeValue{
				"Message Uuid":   model.StringAttribute("abc-123"),
				"amf-service-id": model.StringAttribute("orders"),
			},
		}
		_, _, details := ExtractKafkaInfo(span)
		assert.Equal(t, "amf-service-id=orders, Message Uuid=abc-123", details)
	})

	t.Run("Other kinds classify as internal", func(t *testing.T) {
		span := &model.Span{Name: "flush", Kind: model.KindInternal}
		operation, _, _ := ExtractKafkaInfo(span)
		assert.Equal(t, KafkaOpInternal, operation)
	})
}
