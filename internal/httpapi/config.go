package httpapi

const defaultMaxBodyBytes int64 = 8 << 20

// maxBodyBytes bounds the body of POST /events/raw.
var maxBodyBytes = defaultMaxBodyBytes

// SetMaxBodyBytes sets the push body limit; n <= 0 restores the default.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		n = defaultMaxBodyBytes
	}
	maxBodyBytes = n
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// Methods and headers the event API needs when none are configured.
var (
	defaultCORSMethods = []string{"GET", "POST", "OPTIONS"}
	defaultCORSHeaders = []string{"Content-Type", "X-Log-Level", EmptyHeader}
)

// SetCORSOptions configures CORS. Empty methods or headers fall back to what
// the event API uses.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
