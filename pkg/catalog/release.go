package catalog

import (
	"fmt"
	"regexp"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const releaseLogPrefix = "catalog:release"

// releaseRanges maps each embedded release to the Ceph versions it covers.
// Before infernalis Ceph used 0.x numbering.
var releaseRanges = []struct {
	release    string
	constraint string
}{
	{"firefly", "~0.80"},
	{"hammer", "~0.94"},
	{"infernalis", ">=9.0.0, <10.0.0"},
	{"jewel", ">=10.0.0, <11.0.0"},
}

var bannerRegex = regexp.MustCompile(`ceph version (\d+\.\d+(?:\.\d+)?)`)

// ForVersion returns the release name whose catalog matches version.
// Build suffixes such as "-1-gabcdef" are ignored.
func ForVersion(version string) (string, error) {
	v := strings.TrimSpace(version)
	if i := strings.IndexAny(v, "-+ "); i > 0 {
		v = v[:i]
	}
	sv, err := masterminds.NewVersion(v)
	if err != nil {
		return "", fmt.Errorf("%s - invalid version %q: %w", releaseLogPrefix, version, err)
	}
	for _, r := range releaseRanges {
		c, err := masterminds.NewConstraint(r.constraint)
		if err != nil {
			return "", fmt.Errorf("%s - constraint %q: %w", releaseLogPrefix, r.constraint, err)
		}
		if c.Check(sv) {
			return r.release, nil
		}
	}
	return "", fmt.Errorf("%s - no catalog for ceph %s", releaseLogPrefix, sv.String())
}

// ParseVersionBanner extracts the version from "ceph version 10.2.11 (hash) jewel (stable)".
func ParseVersionBanner(banner string) (string, error) {
	m := bannerRegex.FindStringSubmatch(banner)
	if m == nil {
		return "", fmt.Errorf("%s - no version in %q", releaseLogPrefix, banner)
	}
	return m[1], nil
}
