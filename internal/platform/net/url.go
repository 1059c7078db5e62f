// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package net validates URLs that cross the service boundary.
package net

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// SanitizeURL removes user info and query parameters for safe logging.
func SanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

// ParseDirectHTTPURL accepts absolute http or https URLs with a host and
// without credentials or fragments.
func ParseDirectHTTPURL(s string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return nil, false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, false
	}
	if u.Host == "" || u.User != nil || u.Fragment != "" {
		return nil, false
	}
	return u, true
}

// NormalizeHost lowercases a bare host and converts IDNs to ASCII so that
// allowlist comparisons are exact.
func NormalizeHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if strings.ContainsAny(host, "/@%") {
		return "", fmt.Errorf("invalid host %q", raw)
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	if strings.Contains(host, ":") {
		return "", fmt.Errorf("host must not include port: %s", raw)
	}
	host = strings.TrimSuffix(host, ".")
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", raw, err)
	}
	return strings.ToLower(ascii), nil
}

// Origin reduces u to scheme://host[:port] with the host normalized and the
// default port dropped.
func Origin(u *url.URL) (string, error) {
	scheme := strings.ToLower(u.Scheme)
	host, err := NormalizeHost(u.Hostname())
	if err != nil {
		return "", err
	}
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host, nil
}

// OriginAllowed reports whether raw is a direct http(s) URL whose origin is
// listed in allowed. An empty list allows any direct URL.
func OriginAllowed(raw string, allowed []string) bool {
	u, ok := ParseDirectHTTPURL(raw)
	if !ok {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	origin, err := Origin(u)
	if err != nil {
		return false
	}
	for _, a := range allowed {
		au, ok := ParseDirectHTTPURL(a)
		if !ok {
			continue
		}
		if want, err := Origin(au); err == nil && want == origin {
			return true
		}
	}
	return false
}
