// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package geoip provides IP-to-country lookup using MaxMind GeoLite2-Country
// database, used to enrich audit events with a country code.
package geoip

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/oschwald/maxminddb-golang"

	"github.com/olegiv/warden-go/internal/util"
)

// Lookup handles IP to country lookup. A zero-value Lookup with no
// database configured degrades gracefully: Country returns "".
type Lookup struct {
	mu      sync.RWMutex
	db      *maxminddb.Reader
	enabled bool
}

// geoRecord matches the GeoLite2-Country database structure.
type geoRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// NewLookup creates a new GeoIP lookup instance.
func NewLookup() *Lookup {
	return &Lookup{}
}

// Init loads the GeoIP database from the given path. An empty path
// disables lookups without error.
func (g *Lookup) Init(dbPath string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if dbPath == "" {
		g.enabled = false
		return nil
	}

	db, err := maxminddb.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening GeoIP database: %w", err)
	}

	g.db = db
	g.enabled = true
	slog.Info("GeoIP database loaded", "path", dbPath)
	return nil
}

// Country returns the 2-letter ISO country code for an IP address.
// Returns "" when lookups are disabled, the IP is private/unparseable,
// or the database has no record for it.
func (g *Lookup) Country(ipStr string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.enabled || g.db == nil {
		return ""
	}

	ip := net.ParseIP(ipStr)
	if ip == nil || util.IsPrivateIP(ip) {
		return ""
	}

	var record geoRecord
	if err := g.db.Lookup(ip, &record); err != nil {
		return ""
	}
	return record.Country.ISOCode
}

// Close releases the database handle.
func (g *Lookup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.enabled = false
	if g.db != nil {
		err := g.db.Close()
		g.db = nil
		return err
	}
	return nil
}
