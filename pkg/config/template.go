package config

import (
	"fmt"
	"os"
)

// WriteTemplate writes a commented example configuration to path
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(Template), 0o600)
}

const Template = `# chuck control-plane configuration
service_addr = "0.0.0.0:10001"
target_host = "127.0.0.1:10001"

queue_capacity = 32
max_frame_size = 65536
framing = "length-prefixed"   # or "single-read"
failure_policy = "continue"   # or "stop"

read_timeout = "30s"
write_timeout = "10s"
dial_timeout = "10s"

transfer_addr = "0.0.0.0:9990"
transfer_timeout = "30s"      # idle limit while a blob is moving

# content_port = 4444         # unset: 4444 for providers, 4454 for fetchers
# content_retention = "24h"   # unset keeps fetched content forever

output_dir = "."
static_dir = "/var/lib/netsim"

# status_addr = "127.0.0.1:8080"
# journal_path = "/var/lib/chuck/journal.db"
journal_retention = "168h"
`
