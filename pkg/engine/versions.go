package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// DatabaseType is the database engine family of a Database service.
type DatabaseType string

const (
	DatabasePostgreSQL DatabaseType = "postgresql"
	DatabaseMySQL      DatabaseType = "mysql"
	DatabaseMongoDB    DatabaseType = "mongodb"
	DatabaseRedis      DatabaseType = "redis"
)

// VersionNumber is a parsed engine version. Minor and Patch are optional in
// the textual form ("14", "14.2", "14.2.1" all parse).
type VersionNumber struct {
	Major  int
	Minor  *int
	Patch  *int
	Suffix string
}

// ParseVersionNumber parses a dotted version string. A leading "v" is
// accepted and ignored.
func ParseVersionNumber(s string) (VersionNumber, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if raw == "" {
		return VersionNumber{}, NewValidationError("empty version string", nil)
	}

	var suffix string
	if i := strings.IndexAny(raw, "-+"); i >= 0 {
		suffix = raw[i+1:]
		raw = raw[:i]
	}

	parts := strings.Split(raw, ".")
	if len(parts) > 3 {
		return VersionNumber{}, NewValidationError(fmt.Sprintf("malformed version %q", s), nil)
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return VersionNumber{}, NewValidationError(fmt.Sprintf("malformed version %q", s), err)
		}
		nums[i] = n
	}

	v := VersionNumber{Major: nums[0], Suffix: suffix}
	if len(nums) > 1 {
		v.Minor = &nums[1]
	}
	if len(nums) > 2 {
		v.Patch = &nums[2]
	}
	return v, nil
}

// String renders the version back to its textual form.
func (v VersionNumber) String() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(v.Major))
	if v.Minor != nil {
		b.WriteByte('.')
		b.WriteString(strconv.Itoa(*v.Minor))
		if v.Patch != nil {
			b.WriteByte('.')
			b.WriteString(strconv.Itoa(*v.Patch))
		}
	}
	if v.Suffix != "" {
		b.WriteByte('-')
		b.WriteString(v.Suffix)
	}
	return b.String()
}

// versionRange is one supported major line with the exact patch version the
// target deploys when that line is requested.
type versionRange struct {
	major     int
	minor     *int
	deployed  string
	managedOK bool
	selfOK    bool
}

func intp(n int) *int { return &n }

// supportedVersions maps each engine family to its supported lines. The
// table is data, not architecture: replace it per provider by supplying a
// different VersionResolver.
var supportedVersions = map[DatabaseType][]versionRange{
	DatabasePostgreSQL: {
		{major: 11, deployed: "11.22", managedOK: true, selfOK: true},
		{major: 12, deployed: "12.17", managedOK: true, selfOK: true},
		{major: 13, deployed: "13.13", managedOK: true, selfOK: true},
		{major: 14, deployed: "14.10", managedOK: true, selfOK: true},
		{major: 15, deployed: "15.5", managedOK: true, selfOK: true},
		{major: 16, deployed: "16.1", managedOK: true, selfOK: true},
	},
	DatabaseMySQL: {
		{major: 5, minor: intp(7), deployed: "5.7.44", managedOK: true, selfOK: true},
		{major: 8, deployed: "8.0.36", managedOK: true, selfOK: true},
	},
	DatabaseMongoDB: {
		{major: 4, deployed: "4.4.28", managedOK: true, selfOK: true},
		{major: 5, deployed: "5.0.24", managedOK: true, selfOK: true},
		{major: 6, deployed: "6.0.13", managedOK: true, selfOK: true},
	},
	DatabaseRedis: {
		{major: 6, deployed: "6.2.14", managedOK: true, selfOK: true},
		{major: 7, deployed: "7.2.4", managedOK: true, selfOK: true},
	},
}

// DefaultVersionResolver resolves requested versions against the built-in
// support table. Providers with narrower support substitute their own
// VersionResolver.
type DefaultVersionResolver struct{}

// Resolve implements VersionResolver.
func (DefaultVersionResolver) Resolve(engineType DatabaseType, requested string, managed bool) (string, error) {
	v, err := ParseVersionNumber(requested)
	if err != nil {
		return "", err
	}

	ranges, ok := supportedVersions[engineType]
	if !ok {
		return "", NewValidationError(fmt.Sprintf("unknown database engine %q", engineType), nil)
	}

	for _, r := range ranges {
		if r.major != v.Major {
			continue
		}
		if r.minor != nil && (v.Minor == nil || *v.Minor != *r.minor) {
			continue
		}
		if managed && !r.managedOK || !managed && !r.selfOK {
			continue
		}
		// A fully pinned request is honored as-is.
		if v.Minor != nil && v.Patch != nil {
			return v.String(), nil
		}
		return r.deployed, nil
	}

	return "", NewValidationError(
		fmt.Sprintf("%s version %s is not supported", engineType, requested), nil)
}

// SanitizeName lowercases a service name and strips every character that is
// not a letter or digit, yielding a cluster-safe resource name.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ManagedDBName derives the identifier a managed database provider accepts:
// sanitized and prefixed so it never starts with a digit.
func ManagedDBName(id string) string {
	s := SanitizeName(id)
	if s == "" || s[0] >= '0' && s[0] <= '9' {
		return "db" + s
	}
	return s
}
