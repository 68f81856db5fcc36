package config

import (
	"fmt"
	"os"
)

func Template() string {
	return clientTemplate
}

// WriteTemplate writes the sample client config to path.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(clientTemplate), 0o600)
}

const clientTemplate = `hosts = ["192.168.1.20"]
port = 730
connect_timeout = "5s"
read_timeout = "15s"
write_timeout = "15s"
ping_timeout = "1s"
connect_attempts = 3
max_read_bytes = 268435456
size_prefix_order = "little"
memory_order = "big"
string_encoding = "utf-8"

[backoff]
initial_delay = "250ms"
multiplier = 2.0
max_delay = "5s"
jitter = true
`
