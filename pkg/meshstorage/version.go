package meshstorage

import (
	"strconv"
	"strings"
)

const (
	// CurrentVersion is sent with every request and response
	CurrentVersion = "1.0.0"

	// MinSupportedVersion is the oldest peer version this node answers
	MinSupportedVersion = "1.0.0"
)

// VersionInfo describes the block protocol spoken by this node
type VersionInfo struct {
	Version  string   `json:"version"`
	Protocol string   `json:"protocol"`
	Features []string `json:"features,omitempty"`
}

// GetVersionInfo returns version information for this node
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:  CurrentVersion,
		Protocol: string(ProtocolID),
		Features: []string{"erasure_coding", "cid_verification"},
	}
}

// IsVersionSupported reports whether a peer speaking version can be
// served. An empty version is treated as CurrentVersion; a newer minor or
// patch release is accepted, a different major release is not.
func IsVersionSupported(version string) bool {
	if version == "" {
		return true
	}
	if majorOf(version) != majorOf(CurrentVersion) {
		return false
	}
	return CompareVersions(version, MinSupportedVersion) >= 0
}

// CompareVersions compares two major.minor.patch versions.
// Returns -1 if v1 < v2, 0 if equal, 1 if v1 > v2.
func CompareVersions(v1, v2 string) int {
	p1 := versionParts(v1)
	p2 := versionParts(v2)
	for i := range p1 {
		switch {
		case p1[i] < p2[i]:
			return -1
		case p1[i] > p2[i]:
			return 1
		}
	}
	return 0
}

func majorOf(v string) int {
	return versionParts(v)[0]
}

func versionParts(v string) [3]int {
	var parts [3]int
	for i, s := range strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3) {
		n, err := strconv.Atoi(s)
		if err != nil {
			break
		}
		parts[i] = n
	}
	return parts
}
