package enums

import (
	"fmt"
	"strings"
)

// ServiceType describes how the device reaches the shop.
type ServiceType string

const (
	ServiceTypeDropoff ServiceType = "dropoff"
	ServiceTypePickup  ServiceType = "pickup"
	ServiceTypeOnsite  ServiceType = "onsite"
)

var validServiceTypes = []ServiceType{
	ServiceTypeDropoff,
	ServiceTypePickup,
	ServiceTypeOnsite,
}

// String implements fmt.Stringer.
func (s ServiceType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ServiceType.
func (s ServiceType) IsValid() bool {
	for _, candidate := range validServiceTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseServiceType converts raw input into a ServiceType. Matching ignores case.
func ParseServiceType(value string) (ServiceType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validServiceTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid service type %q", value)
}
