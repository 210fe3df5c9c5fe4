package secrets

import (
	"os"
	"strings"
)

// EnvLoader returns a Loader reading the named environment variables.
// Values are trimmed; unset or blank variables are left out of the result,
// so a vault lookup for them yields "".
func EnvLoader(names ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(names))
		for _, name := range names {
			if v := strings.TrimSpace(os.Getenv(name)); v != "" {
				vals[name] = v
			}
		}
		return vals, nil
	}
}
