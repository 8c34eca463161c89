package cache

import (
	"os"
	"reflect"
	"testing"

	ble "github.com/antonvh/btbricks"
)

func testProfile() ble.HandleProfile {
	return ble.HandleProfile{
		Service: "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
		Start:   0x0010,
		End:     0x001f,
		Roles: map[ble.Role]uint16{
			"rx": 0x0012,
			"tx": 0x0014,
		},
	}
}

func TestHandleCache_Store(t *testing.T) {
	defer os.Remove("./test.cache")
	p := testProfile()

	c := New("./test.cache")
	err := c.Store(ble.NewAddr("12:34:56:78:90:ab"), p, false)
	if err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}

	loaded, err := c.Load(ble.NewAddr("12:34:56:78:90:ab"))
	if err != nil {
		t.Fatalf("expected to find mac in cache but did not: %s", err)
	}

	if !reflect.DeepEqual(p, loaded) {
		t.Fatalf("stored and loaded profiles are not equal")
	}
}

func TestHandleCache_StoreNoReplace(t *testing.T) {
	defer os.Remove("./test.cache")
	p := testProfile()

	c := New("./test.cache")
	if err := c.Store(ble.NewAddr("12:34:56:78:90:ab"), p, false); err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}

	if err := c.Store(ble.NewAddr("12:34:56:78:90:ab"), p, false); err == nil {
		t.Fatalf("expected error storing duplicate without replace")
	}

	if err := c.Store(ble.NewAddr("12:34:56:78:90:ab"), p, true); err != nil {
		t.Fatalf("expected replace to succeed but got %s", err)
	}
}

func TestHandleCache_Invalidate(t *testing.T) {
	defer os.Remove("./test.cache")
	p := testProfile()

	c := New("./test.cache")
	if err := c.Store(ble.NewAddr("12:34:56:78:90:ab"), p, false); err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}

	if err := c.Invalidate(ble.NewAddr("12:34:56:78:90:ab")); err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}

	if _, err := c.Load(ble.NewAddr("12:34:56:78:90:ab")); err == nil {
		t.Fatalf("expected load after invalidate to fail")
	}

	// Invalidating an absent entry is not an error.
	if err := c.Invalidate(ble.NewAddr("ff:ff:ff:ff:ff:ff")); err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}
}

func TestHandleCache_ClearMissingFile(t *testing.T) {
	c := New("./does-not-exist.cache")
	if err := c.Clear(); err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}
}
