// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package processor

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"
)

// CountryResolver maps a client IP address to an ISO 3166 country code.
// Resolution failures are not errors; the event simply carries no
// country.
type CountryResolver interface {
	Country(ip string) (string, bool)
}

type countryEntry struct {
	prefix  netip.Prefix
	country string
}

// CSVCountryResolver resolves countries against an in-memory CIDR
// table. The table format is one "network,country" record per line,
// e.g. "192.0.2.0/24,CH". The most specific matching network wins.
type CSVCountryResolver struct {
	entries []countryEntry
}

// LoadCSVCountryTable reads a CIDR table from disk.
func LoadCSVCountryTable(path string) (*CSVCountryResolver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open country table: %w", err)
	}
	defer f.Close()

	resolver, err := NewCSVCountryResolver(f)
	if err != nil {
		return nil, fmt.Errorf("country table %s: %w", path, err)
	}
	return resolver, nil
}

// NewCSVCountryResolver parses a CIDR table from a reader.
func NewCSVCountryResolver(r io.Reader) (*CSVCountryResolver, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true

	var entries []countryEntry
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		prefix, err := netip.ParsePrefix(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid network %q: %w", record[0], err)
		}
		country := strings.ToUpper(strings.TrimSpace(record[1]))
		if country == "" {
			return nil, fmt.Errorf("network %q has no country", record[0])
		}
		entries = append(entries, countryEntry{prefix: prefix.Masked(), country: country})
	}
	return &CSVCountryResolver{entries: entries}, nil
}

// Country implements CountryResolver.
func (c *CSVCountryResolver) Country(ip string) (string, bool) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", false
	}

	best := -1
	var country string
	for _, e := range c.entries {
		if e.prefix.Contains(addr) && e.prefix.Bits() > best {
			best = e.prefix.Bits()
			country = e.country
		}
	}
	return country, best >= 0
}

// Len returns the number of loaded table entries.
func (c *CSVCountryResolver) Len() int {
	return len(c.entries)
}
