package cache

import (
	"fmt"
	"strings"
)

const keySep = ":"

// GenerateKey joins a namespace and an id, e.g. "history:u1".
func GenerateKey(prefix string, id string) string {
	return prefix + keySep + id
}

// GenerateKeyWithParams appends each param to prefix, colon separated.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, prefix)
	for _, p := range params {
		parts = append(parts, fmt.Sprint(p))
	}
	return strings.Join(parts, keySep)
}

// BuildPattern returns the glob that matches every key starting with prefix.
func BuildPattern(prefix string) string {
	return prefix + "*"
}
