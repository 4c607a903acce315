package mains

import "testing"

func TestForTimezone(t *testing.T) {
	tests := []struct {
		timezone   string
		want       float64
		wantSource string
	}{
		{"Europe/London", 50, "timezone"},
		{"Europe/Berlin", 50, "timezone"},
		{"Australia/Sydney", 50, "timezone"},
		{"Asia/Tokyo", 50, "timezone"},

		{"America/New_York", 60, "timezone"},
		{"America/Toronto", 60, "timezone"},
		{"America/Bogota", 60, "timezone"},
		{"America/Sao_Paulo", 60, "timezone"},
		{"Asia/Seoul", 60, "timezone"},
		{"Asia/Manila", 60, "timezone"},

		{"UTC", 50, "fallback"},
		{"Etc/UTC", 50, "fallback"},
		{"Nowhere/Special", 50, "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.timezone, func(t *testing.T) {
			got := ForTimezone(tt.timezone)
			if got.Hz != tt.want {
				t.Errorf("ForTimezone(%q).Hz = %v, want %v", tt.timezone, got.Hz, tt.want)
			}
			if got.Source != tt.wantSource {
				t.Errorf("ForTimezone(%q).Source = %q, want %q", tt.timezone, got.Source, tt.wantSource)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	if got := Resolve(60); got.Hz != 60 || got.Source != "config" {
		t.Errorf("Resolve(60) = %+v, want configured 60 Hz", got)
	}

	got := Resolve(0)
	if got.Hz != 50 && got.Hz != 60 {
		t.Errorf("Resolve(0).Hz = %v, want 50 or 60", got.Hz)
	}
}
