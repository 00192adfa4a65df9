package meshstorage

import "testing"

func TestIsVersionSupported(t *testing.T) {
	tests := []struct {
		version  string
		expected bool
	}{
		{"", true},
		{"1.0.0", true},
		{"1.2.3", true},
		{"v1.0.1", true},
		{"0.9.0", false},
		{"2.0.0", false},
	}

	for _, tt := range tests {
		if got := IsVersionSupported(tt.version); got != tt.expected {
			t.Errorf("IsVersionSupported(%q) = %v, want %v", tt.version, got, tt.expected)
		}
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		v1, v2   string
		expected int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.10.0", "1.9.0", 1},
		{"2.0", "1.9.9", 1},
	}

	for _, tt := range tests {
		if got := CompareVersions(tt.v1, tt.v2); got != tt.expected {
			t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.v1, tt.v2, got, tt.expected)
		}
	}
}

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	if info.Version != CurrentVersion {
		t.Errorf("Version = %s, want %s", info.Version, CurrentVersion)
	}
	if info.Protocol != string(ProtocolID) {
		t.Errorf("Protocol = %s, want %s", info.Protocol, ProtocolID)
	}
}
