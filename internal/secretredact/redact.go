// Package secretredact scans log and error strings for likely secrets
// before they reach any sink, per the hub's redaction contract.
package secretredact

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const Redacted = "[REDACTED]"

// globalKeyPatterns are JSON object key substrings that always trigger
// redaction of their value, regardless of scope.
var globalKeyPatterns = []string{
	"token",
	"apikey",
	"api_key",
	"key",
	"secret",
	"password",
	"authorization",
	"cookie",
	"credential",
}

var (
	bearerRe = regexp.MustCompile(`(?i)\b(Bearer|Basic)\s+[A-Za-z0-9._\-+/=]+`)
	queryRe  = regexp.MustCompile(`(?i)\b(token|api_key|apikey|secret|password)=([^&\s]+)`)
)

// Line redacts a free-form log/error string: Bearer/Basic auth headers and
// token=/api_key=/... query parameters.
func Line(s string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprintf("[REDACTED-ERROR id=%s]", uuid.NewString())
		}
	}()

	s = bearerRe.ReplaceAllStringFunc(s, func(m string) string {
		parts := strings.SplitN(m, " ", 2)
		if len(parts) != 2 {
			return Redacted
		}
		return parts[0] + " " + Redacted
	})
	s = queryRe.ReplaceAllStringFunc(s, func(m string) string {
		eq := strings.IndexByte(m, '=')
		if eq < 0 {
			return Redacted
		}
		return m[:eq+1] + Redacted
	})
	return s
}

// JSON redacts sensitive fields within a JSON object, recursing into
// nested objects and arrays. Non-object/array values and malformed input
// are returned unchanged (never passed through unsanitised once it is
// known to contain secrets: the caller is expected to call Line on any
// string leaf it surfaces directly).
func JSON(raw json.RawMessage) (out json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			errID := uuid.NewString()
			out, _ = json.Marshal(fmt.Sprintf("[REDACTED-ERROR id=%s]", errID))
		}
	}()

	if len(raw) == 0 {
		return raw
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		changed := false
		for key, val := range obj {
			if shouldRedactKey(key) {
				obj[key], _ = json.Marshal(Redacted)
				changed = true
				continue
			}
			red := JSON(val)
			if string(red) != string(val) {
				obj[key] = red
				changed = true
			}
		}
		if !changed {
			return raw
		}
		marshalled, err := json.Marshal(obj)
		if err != nil {
			return raw
		}
		return marshalled
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		changed := false
		for i, v := range arr {
			red := JSON(v)
			if string(red) != string(v) {
				arr[i] = red
				changed = true
			}
		}
		if !changed {
			return raw
		}
		marshalled, err := json.Marshal(arr)
		if err != nil {
			return raw
		}
		return marshalled
	}

	return raw
}

func shouldRedactKey(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range globalKeyPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
