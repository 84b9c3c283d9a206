package discovery

import "testing"

func TestDecodeVIN(t *testing.T) {
	cases := []struct {
		vin     string
		wantWMI string
		wantYr  string
		wantOk  bool
	}{
		{"1HGCM82633A123456", "1HG", "Unknown", true}, // position 10 is '3', not mapped, expect Unknown
		{"1HGCM82M9MA123456", "1HG", "2021", true},
		{"short", "", "", false},
	}
	for _, c := range cases {
		info, ok := DecodeVIN(c.vin)
		if c.vin == "short" {
			if ok {
				t.Errorf("expected ok=false for short VIN")
			}
			continue
		}
		if !ok {
			t.Fatalf("DecodeVIN(%q) returned ok=false", c.vin)
		}
		if info.WMI != c.wantWMI {
			t.Errorf("WMI: got %q, want %q", info.WMI, c.wantWMI)
		}
	}
}

func TestDecodeVINUnknownYearCode(t *testing.T) {
	info, ok := DecodeVIN("1HGCM82633A123456")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if info.Year != "Unknown" {
		t.Errorf("got year %q, want Unknown", info.Year)
	}
}

func TestDecodeVINKnownYearCode(t *testing.T) {
	info, ok := DecodeVIN("1HGCM82M9MA123456")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if info.Year != "2021" {
		t.Errorf("got year %q, want 2021", info.Year)
	}
}
