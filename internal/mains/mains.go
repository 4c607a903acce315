// Package mains picks the electrical mains frequency used by the hum notch.
package mains

import (
	"strings"

	tz "github.com/medama-io/go-timezone-country"
	"github.com/thlib/go-timezone-local/tzlocal"
)

// Fallback is used when the region cannot be determined.
const Fallback = 50.0

// Detection is a resolved mains frequency and where it came from.
type Detection struct {
	Hz       float64
	Timezone string // empty unless detected
	Country  string // empty unless the timezone mapped to a country
	Source   string // "config", "timezone" or "fallback"
}

// Resolve returns configured when it is non-zero, otherwise the frequency
// detected from the local timezone.
func Resolve(configured float64) Detection {
	if configured != 0 {
		return Detection{Hz: configured, Source: "config"}
	}
	timezone, err := tzlocal.RuntimeTZ()
	if err != nil {
		return Detection{Hz: Fallback, Source: "fallback"}
	}
	return ForTimezone(timezone)
}

// ForTimezone maps an IANA timezone to its mains frequency.
func ForTimezone(timezone string) Detection {
	d := Detection{Hz: Fallback, Timezone: timezone, Source: "fallback"}

	// No country for UTC/GMT
	if timezone == "UTC" || timezone == "GMT" || strings.HasPrefix(timezone, "Etc/") {
		return d
	}

	tzMap, err := tz.NewTimezoneCountryMap()
	if err != nil {
		return d
	}
	country, err := tzMap.GetCountry(timezone)
	if err != nil {
		return d
	}

	d.Country = country
	d.Source = "timezone"
	if hz60Countries[country] {
		d.Hz = 60
	}
	return d
}

// hz60Countries lists countries on 60 Hz mains. Japan is split by region
// and left at 50 Hz (Tokyo).
// Source: https://en.wikipedia.org/wiki/Mains_electricity_by_country
var hz60Countries = map[string]bool{
	"United States":       true,
	"Canada":              true,
	"Mexico":              true,
	"Belize":              true,
	"Costa Rica":          true,
	"El Salvador":         true,
	"Guatemala":           true,
	"Honduras":            true,
	"Nicaragua":           true,
	"Panama":              true,
	"Bahamas":             true,
	"Barbados":            true,
	"Cayman Islands":      true,
	"Cuba":                true,
	"Dominican Republic":  true,
	"Haiti":               true,
	"Jamaica":             true,
	"Puerto Rico":         true,
	"Trinidad and Tobago": true,
	"U.S. Virgin Islands": true,
	"Brazil":              true, // mostly 60 Hz
	"Colombia":            true,
	"Ecuador":             true,
	"Guyana":              true,
	"Peru":                true,
	"Suriname":            true,
	"Venezuela":           true,
	"South Korea":         true,
	"Taiwan":              true,
	"Philippines":         true,
	"Saudi Arabia":        true,
	"Guam":                true,
	"American Samoa":      true,
	"Marshall Islands":    true,
	"Micronesia":          true,
	"Palau":               true,
}
