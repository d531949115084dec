package config

import (
	"fmt"
	"os"
)

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(bridgeTemplate), 0o600)
}

const bridgeTemplate = `name = "bridge-ctl"
pool_size = 4
overflow = 2
checkout_timeout_ms = 5000
operation_timeout_ms = 30000
worker_cmd = ["mockinterp"]
admin_addr = ":9200"
cors_origins = ["http://localhost:3000"]

[mock]
response_delay_ms = 0
error_probability = 0.0
max_programs = 100
`
