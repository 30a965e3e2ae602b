package auth

import "strings"

// cookieJar accumulates Set-Cookie values across a multi-request login
// sequence, keeping only the latest value per cookie name. Insertion order
// is preserved so serialization is deterministic: existing names keep their
// position when overwritten, new names are appended in encounter order.
//
// The jar lives only for the duration of one login choreography. The
// standard library jar is not used because the choreography needs to replay
// cookies verbatim across hosts and inspect them by name for the CSRF
// fallback, with a deterministic wire order.
type cookieJar struct {
	names  []string
	values map[string]string
}

func newCookieJar() *cookieJar {
	return &cookieJar{values: make(map[string]string)}
}

// merge folds a sequence of raw Set-Cookie header values into the jar.
// For each header, the portion before the first ';' is the name=value pair,
// split on the first '='. Attributes (Path, HttpOnly, ...) are discarded.
// Malformed headers without a name are skipped.
func (j *cookieJar) merge(setCookies []string) {
	for _, raw := range setCookies {
		pair := raw
		if i := strings.Index(pair, ";"); i >= 0 {
			pair = pair[:i]
		}
		pair = strings.TrimSpace(pair)

		i := strings.Index(pair, "=")
		if i <= 0 {
			continue
		}
		name, value := pair[:i], pair[i+1:]

		if _, ok := j.values[name]; !ok {
			j.names = append(j.names, name)
		}
		j.values[name] = value
	}
}

// serialize renders the jar as a Cookie request header value:
// name=value pairs joined by "; ".
func (j *cookieJar) serialize() string {
	pairs := make([]string, 0, len(j.names))
	for _, name := range j.names {
		pairs = append(pairs, name+"="+j.values[name])
	}
	return strings.Join(pairs, "; ")
}

// get looks up a cookie value by exact name.
func (j *cookieJar) get(name string) (string, bool) {
	v, ok := j.values[name]
	return v, ok
}

// find returns the value of the first cookie whose name matches the
// predicate, in insertion order.
func (j *cookieJar) find(match func(name string) bool) (string, bool) {
	for _, name := range j.names {
		if match(name) {
			return j.values[name], true
		}
	}
	return "", false
}
