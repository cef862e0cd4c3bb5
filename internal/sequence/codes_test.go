package sequence

import (
	"testing"
	"time"

	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

func TestDeviceCode(t *testing.T) {
	cases := map[string]string{
		"Laptop":     "LT",
		" notebook ": "LT",
		"PHONE":      "PH",
		"tablet":     "TB",
		"toaster":    "XX",
		"":           "XX",
	}
	for input, want := range cases {
		if got := DeviceCode(input); got != want {
			t.Fatalf("DeviceCode(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestServiceCode(t *testing.T) {
	if got := ServiceCode(enums.ServiceTypeDropoff); got != "D" {
		t.Fatalf("expected D, got %s", got)
	}
	if got := ServiceCode(enums.ServiceTypePickup); got != "P" {
		t.Fatalf("expected P, got %s", got)
	}
	if got := ServiceCode(enums.ServiceTypeOnsite); got != "O" {
		t.Fatalf("expected O, got %s", got)
	}
	if got := ServiceCode("courier"); got != "X" {
		t.Fatalf("expected X, got %s", got)
	}
}

func TestSequenceKeyAndFormat(t *testing.T) {
	now := time.Date(2024, 10, 29, 15, 4, 0, 0, time.UTC)
	key := SequenceKey("laptop", enums.ServiceTypePickup, now)
	if key != "241029LTP" {
		t.Fatalf("unexpected key %s", key)
	}
	if code := formatTicketCode(key, 1); code != "241029LTP001" {
		t.Fatalf("unexpected code %s", code)
	}
	if code := formatTicketCode(key, 1234); code != "241029LTP1234" {
		t.Fatalf("overflow should widen, got %s", code)
	}
}

func TestRandomSuffixShape(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := randomSuffix()
		if len(s) != fallbackSuffixLen {
			t.Fatalf("unexpected suffix length %d", len(s))
		}
		for _, r := range s {
			if !(r >= '0' && r <= '9') && !(r >= 'A' && r <= 'Z') {
				t.Fatalf("suffix %q has non base-36 rune", s)
			}
		}
	}
}
