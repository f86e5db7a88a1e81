package authz

import "strings"

// Wildcard allows every tenant.
const Wildcard = "*"

// IsAllowed reports whether tenant is an exact element of the comma separated
// allowList, or whether allowList is the wildcard. Elements are trimmed,
// nothing else is normalized.
func IsAllowed(tenant, allowList string) bool {
	if strings.TrimSpace(allowList) == Wildcard {
		return true
	}
	for _, allowed := range strings.Split(allowList, ",") {
		if strings.TrimSpace(allowed) == tenant {
			return true
		}
	}
	return false
}
