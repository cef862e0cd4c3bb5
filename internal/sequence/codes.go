package sequence

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

const (
	unknownDeviceCode  = "XX"
	unknownServiceCode = "X"
	datePrefixLayout   = "060102"
)

var deviceCodes = map[string]string{
	"laptop":     "LT",
	"notebook":   "LT",
	"desktop":    "DT",
	"pc":         "DT",
	"phone":      "PH",
	"smartphone": "PH",
	"mobile":     "PH",
	"tablet":     "TB",
	"ipad":       "TB",
	"printer":    "PR",
	"monitor":    "MN",
	"console":    "GC",
	"camera":     "CM",
	"watch":      "SW",
	"smartwatch": "SW",
	"tv":         "TV",
	"television": "TV",
}

var serviceCodes = map[enums.ServiceType]string{
	enums.ServiceTypeDropoff: "D",
	enums.ServiceTypePickup:  "P",
	enums.ServiceTypeOnsite:  "O",
}

// DeviceCode maps a free-form device type to its two-letter code.
func DeviceCode(deviceType string) string {
	if code, ok := deviceCodes[strings.ToLower(strings.TrimSpace(deviceType))]; ok {
		return code
	}
	return unknownDeviceCode
}

// ServiceCode maps a service type to its one-letter code.
func ServiceCode(serviceType enums.ServiceType) string {
	if code, ok := serviceCodes[serviceType]; ok {
		return code
	}
	return unknownServiceCode
}

// SequenceKey is the counter bucket: YYMMDD followed by the device and service codes.
func SequenceKey(deviceType string, serviceType enums.ServiceType, now time.Time) string {
	return now.Format(datePrefixLayout) + DeviceCode(deviceType) + ServiceCode(serviceType)
}

func formatTicketCode(key string, value int64) string {
	return fmt.Sprintf("%s%03d", key, value)
}
