package enums

import "fmt"

// ProductType selects which order table a purchase lands in.
type ProductType string

const (
	ProductTypePhysical     ProductType = "physical"
	ProductTypeDigital      ProductType = "digital"
	ProductTypeSubscription ProductType = "subscription"
)

var validProductTypes = []ProductType{
	ProductTypePhysical,
	ProductTypeDigital,
	ProductTypeSubscription,
}

// String implements fmt.Stringer.
func (p ProductType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProductType.
func (p ProductType) IsValid() bool {
	for _, candidate := range validProductTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// InitialOrderStatus is the status an order of this type is written with.
func (p ProductType) InitialOrderStatus() OrderStatus {
	switch p {
	case ProductTypeDigital:
		return OrderStatusCompleted
	case ProductTypeSubscription:
		return OrderStatusPending
	default:
		return OrderStatusPaid
	}
}

// ParseProductType converts raw input into a ProductType.
func ParseProductType(value string) (ProductType, error) {
	for _, candidate := range validProductTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product type %q", value)
}
