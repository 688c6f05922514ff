package registry

import (
	"fmt"
	"strings"
)

// nodePrefix is the key prefix under which one node's instances live,
// always ending in a slash so that node "a" never matches node "ab".
func nodePrefix(prefix, node string) string {
	prefix = strings.TrimRight(prefix, "/")
	return fmt.Sprintf("%s/%s/", prefix, node)
}

func keyFor(prefix, node, name string) string {
	return nodePrefix(prefix, node) + name
}

// nameFromKey returns the instance name of a key under the node prefix.
func nameFromKey(prefix, node, key string) (string, bool) {
	base := nodePrefix(prefix, node)
	if !strings.HasPrefix(key, base) {
		return "", false
	}
	name := strings.TrimPrefix(key, base)
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
