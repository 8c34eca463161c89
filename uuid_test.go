package btbricks

import (
	"reflect"
	"testing"
)

func TestParseUUID(t *testing.T) {
	u, err := ParseUUID("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	if err != nil {
		t.Fatalf("parse error %v", err)
	}
	if u.Len() != 16 {
		t.Fatalf("wrong length %d", u.Len())
	}
	if u.String() != "6e400001b5a3f393e0a9e50e24dcca9e" {
		t.Fatalf("wrong string form %s", u.String())
	}

	// dashes are optional
	v, err := ParseUUID("6e400001b5a3f393e0a9e50e24dcca9e")
	if err != nil {
		t.Fatalf("parse error %v", err)
	}
	if !u.Equal(v) {
		t.Fatalf("dashed and dashless forms differ")
	}
}

func TestParseUUIDShort(t *testing.T) {
	u, err := ParseUUID("1623")
	if err != nil {
		t.Fatalf("parse error %v", err)
	}
	if !u.Equal(UUID16(0x1623)) {
		t.Fatalf("short form mismatch: % x", u)
	}
}

func TestParseUUIDBad(t *testing.T) {
	for _, s := range []string{"", "01", "xyz", "0123456"} {
		if _, err := ParseUUID(s); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
}

func TestContains(t *testing.T) {
	uu := []UUID{UUID16(0x180d), UUID16(0x1623)}
	if !Contains(uu, UUID16(0x1623)) {
		t.Fatalf("expected member")
	}
	if Contains(uu, UUID16(0xffff)) {
		t.Fatalf("unexpected member")
	}
}

func TestAddrRoundtrip(t *testing.T) {
	a := AddrFromBytes([]byte{0x12, 0x34, 0x56, 0x78, 0x90, 0xab})
	if a.String() != "12:34:56:78:90:ab" {
		t.Fatalf("wrong string form %s", a.String())
	}
	if !reflect.DeepEqual(a.Bytes(), []byte{0x12, 0x34, 0x56, 0x78, 0x90, 0xab}) {
		t.Fatalf("wrong bytes % x", a.Bytes())
	}

	// NewAddr normalizes case.
	b := NewAddr("12:34:56:78:90:AB")
	if b.String() != a.String() {
		t.Fatalf("case not normalized: %s", b.String())
	}
}
