package fieldkey

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestFromDisplayStable(t *testing.T) {
	uuid := "3fa85f64-5717-4562-b3fc-2c963f66afa6"

	a, err := FromDisplay(uuid)
	if err != nil {
		t.Fatalf("FromDisplay() error = %v", err)
	}
	b, err := FromDisplay(uuid)
	if err != nil {
		t.Fatalf("FromDisplay() error = %v", err)
	}

	if !a.Equal(b) {
		t.Errorf("FromDisplay(%q) not stable: %s != %s", uuid, a, b)
	}
}

func TestFromDisplayDistinctInputs(t *testing.T) {
	a, err := FromDisplay("3fa85f64-5717-4562-b3fc-2c963f66afa6")
	if err != nil {
		t.Fatal(err)
	}
	b, err := FromDisplay("00000000-0000-0000-0000-000000000001")
	if err != nil {
		t.Fatal(err)
	}
	if a.Equal(b) {
		t.Errorf("distinct display keys hashed to the same scalar")
	}
}

func TestFromDisplayHexPassthrough(t *testing.T) {
	hexScalar := "0x" + strings.Repeat("deadbeef", 8)

	s, err := FromDisplay(hexScalar)
	if err != nil {
		t.Fatalf("FromDisplay() error = %v", err)
	}

	direct, err := FromHex(hexScalar)
	if err != nil {
		t.Fatalf("FromHex() error = %v", err)
	}

	if !s.Equal(direct) {
		t.Errorf("hex-scalar input was not returned unchanged")
	}
}

func TestFromDisplayEmpty(t *testing.T) {
	if _, err := FromDisplay(""); err == nil {
		t.Error("expected error for empty display key")
	}
}

func TestScalarStringRoundTrip(t *testing.T) {
	s, err := FromDisplay("3fa85f64-5717-4562-b3fc-2c963f66afa6")
	if err != nil {
		t.Fatal(err)
	}

	reparsed, err := FromHex(s.String())
	if err != nil {
		t.Fatalf("FromHex(%s) error = %v", s, err)
	}
	if !s.Equal(reparsed) {
		t.Errorf("Scalar.String() did not round-trip through FromHex")
	}
}

// TestFromDisplayGeneratedUUIDsStable exercises R1 against freshly minted
// trade keys in the same form the depositor-facing surface hands out trade
// identifiers (uuid.New(), as the teacher does for order and trade ids).
func TestFromDisplayGeneratedUUIDsStable(t *testing.T) {
	for i := 0; i < 16; i++ {
		display := uuid.New().String()

		a, err := FromDisplay(display)
		if err != nil {
			t.Fatalf("FromDisplay(%q) error = %v", display, err)
		}
		b, err := FromDisplay(display)
		if err != nil {
			t.Fatalf("FromDisplay(%q) error = %v", display, err)
		}
		if !a.Equal(b) {
			t.Errorf("FromDisplay(%q) not stable across calls", display)
		}
	}
}
