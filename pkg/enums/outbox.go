package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregatePhysicalOrder     OutboxAggregateType = "physical_order"
	AggregateDigitalOrder      OutboxAggregateType = "digital_order"
	AggregateSubscriptionOrder OutboxAggregateType = "subscription_order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePhysicalOrder,
	AggregateDigitalOrder,
	AggregateSubscriptionOrder,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// AggregateForProductType returns the order aggregate for a product type.
func AggregateForProductType(p ProductType) OutboxAggregateType {
	switch p {
	case ProductTypeDigital:
		return AggregateDigitalOrder
	case ProductTypeSubscription:
		return AggregateSubscriptionOrder
	default:
		return AggregatePhysicalOrder
	}
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderRecorded      OutboxEventType = "order_recorded"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderRecorded,
	EventOrderStatusChanged,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
