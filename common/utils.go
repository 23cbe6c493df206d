package common

import (
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/rs/xid"
)

const defaultHttpTimeout = 5

// MakeHttpClient builds the client used by event backends. A non-positive
// timeout falls back to five seconds.
func MakeHttpClient(timeout int) *http.Client {

	if timeout <= 0 {
		timeout = defaultHttpTimeout
	}
	d := time.Duration(timeout) * time.Second

	return &http.Client{
		Timeout: d,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: d}).DialContext,
			TLSHandshakeTimeout: d,
		},
	}
}

// getLastPath keeps the trailing limit elements of a slash separated path.
func getLastPath(s string, limit int) string {

	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) > limit {
		parts = parts[len(parts)-limit:]
	}
	return strings.Join(parts, "/")
}

// GetCallerInfo returns function, file and line of the frame offset levels up.
func GetCallerInfo(offset int) (string, string, int) {

	pc := make([]uintptr, 15)
	n := runtime.Callers(offset, pc)
	if n == 0 {
		return "", "", 0
	}
	frame, _ := runtime.CallersFrames(pc[:n]).Next()
	return getLastPath(frame.Function, 1), getLastPath(frame.File, 3), frame.Line
}

func HasElem[T comparable](s []T, elem T) bool {

	for _, v := range s {
		if v == elem {
			return true
		}
	}
	return false
}

// NewRuntimeID identifies one tracer instance, it is sent as runtime-id.
func NewRuntimeID() string {
	return xid.New().String()
}
