package tbank

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strconv"
)

// tokenField is the request field carrying the signature itself. It is
// always excluded from the signed set.
const tokenField = "Token"

// passwordField is the pseudo-field the shared secret is injected as before
// sorting, per the gateway's token algorithm.
const passwordField = "Password"

// SignToken computes the request token over the top-level scalar fields of a
// request or notification payload.
//
// Algorithm: take every top-level field whose value is a scalar (nested
// objects and arrays are skipped, as is the Token field), add the shared
// secret under the Password key, sort the pairs lexicographically by key,
// concatenate the stringified values in that order, and return the
// lowercase hex SHA-256 of the result.
//
// The exact same construction signs outgoing requests and verifies inbound
// webhook notifications. A field included on one side but omitted on the
// other breaks authentication silently, so both sides go through this one
// function.
func SignToken(password string, fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields)+1)
	values := make(map[string]string, len(fields)+1)

	for k, v := range fields {
		if k == tokenField {
			continue
		}
		s, ok := stringifyScalar(v)
		if !ok {
			continue
		}
		keys = append(keys, k)
		values[k] = s
	}

	keys = append(keys, passwordField)
	values[passwordField] = password

	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(values[k]))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// VerifyToken checks the Token field of an inbound payload against the
// signature computed over the remaining fields. It returns false on a
// missing or mismatched token and never returns an error. The comparison
// is constant-time.
func VerifyToken(password string, payload map[string]interface{}) bool {
	raw, ok := payload[tokenField]
	if !ok {
		return false
	}
	got, ok := raw.(string)
	if !ok || got == "" {
		return false
	}

	expected := SignToken(password, payload)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// stringifyScalar renders a scalar payload value the way the gateway does
// when computing tokens. JSON decoding yields float64 for all numbers, so
// integral floats must not grow a trailing fraction.
func stringifyScalar(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		// nested objects, arrays, nil
		return "", false
	}
}
