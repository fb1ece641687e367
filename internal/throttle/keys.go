package throttle

import (
	"net/http"
	"strings"

	"github.com/keithlinneman/authgate/internal/httpmw"
)

// KeyFunc derives the throttle key for a request. The key is opaque to the
// store and matched exactly.
type KeyFunc func(r *http.Request) string

// unknownKey is used when a KeyFunc yields nothing, so requests we cannot
// identify share one bucket instead of bypassing the throttle.
const unknownKey = "unknown"

// ByIPAddress keys on the client IP resolved by httpmw.ClientIP.
func ByIPAddress(r *http.Request) string {
	return httpmw.ClientIPFromContext(r.Context())
}

// ByIPAddressAndUsername keys on client IP plus the lowercased value of the
// given form field, e.g. "203.0.113.7;alice".
func ByIPAddressAndUsername(param string) KeyFunc {
	if param == "" {
		param = "username"
	}
	return func(r *http.Request) string {
		user := strings.ToLower(strings.TrimSpace(r.FormValue(param)))
		return httpmw.ClientIPFromContext(r.Context()) + ";" + user
	}
}
