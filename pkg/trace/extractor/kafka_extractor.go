package extractor

import (
	"strings"

	"github.com/tracescope/tracescope/pkg/trace/model"
)

const (
	KafkaOpConsumer = "consumer"
	KafkaOpProducer = "producer"
	KafkaOpInternal = "internal"
)

// kafkaDetailKeys are the attributes surfaced in the messaging details
// column, in display order.
var kafkaDetailKeys = []string{"amf-service-id", "amf-message-id", "Kafka client", "Message Uuid"}

// ExtractKafkaInfo classifies a messaging span and summarizes its identifying
// attributes. The operation is derived from the span kind; details collapse
// to the no-details sentinel when none of the recognized keys are present.
func ExtractKafkaInfo(span *model.Span) (operation, name, details string) {
	operation = KafkaOpInternal
	switch span.Kind {
	case model.KindConsumer:
		operation = KafkaOpConsumer
	case model.KindProducer:
		operation = KafkaOpProducer
	}

	var parts []string
	for _, key := range kafkaDetailKeys {
		if v, ok := span.Attribute(key); ok {
			if s := v.AsString(); s != "" {
				parts = append(parts, key+"="+s)
			}
		}
	}
	details = model.NoDetails
	if len(parts) > 0 {
		details = strings.Join(parts, ", ")
	}

	return operation, span.Name, details
}
