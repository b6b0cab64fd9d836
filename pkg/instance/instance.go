package instance

import "os"

// ID names the running process in logs. It prefers the platform dyno name,
// then the container host name.
func ID() string {
	for _, key := range []string{"DYNO", "HOSTNAME"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
