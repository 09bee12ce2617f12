package permission

import (
	"fmt"
	"strings"
)

// MatchesScope reports whether requested (a path or generic resource,
// already relative/normalized by the caller) falls within grantedScope.
// Mirrors permission_manager.rs's matches_scope: exact match, trailing
// "/*" prefix match, or bare "*".
func MatchesScope(requested, grantedScope string) bool {
	if grantedScope == "*" {
		return true
	}
	if requested == grantedScope {
		return true
	}
	if strings.HasSuffix(grantedScope, "/*") {
		prefix := strings.TrimSuffix(grantedScope, "*")
		return strings.HasPrefix(requested, prefix)
	}
	if strings.HasSuffix(grantedScope, "*") {
		prefix := strings.TrimSuffix(grantedScope, "*")
		return strings.HasPrefix(requested, prefix)
	}
	return false
}

// MatchesDomain reports whether host satisfies grantedScope, following
// permission_manager.rs's matches_domain: exact match, or "*.example.com"
// wildcard matching any subdomain strictly inside the dot boundary (so
// "notexample.com" never matches "*.example.com" even though it ends with
// "example.com" as a raw suffix).
func MatchesDomain(host, grantedScope string) bool {
	host = strings.ToLower(host)
	grantedScope = strings.ToLower(grantedScope)

	if grantedScope == host {
		return true
	}
	if strings.HasPrefix(grantedScope, "*.") {
		base := grantedScope[2:]
		if host == base {
			return true
		}
		return strings.HasSuffix(host, "."+base)
	}
	return false
}

// validateScope rejects scopes that are structurally nonsensical for their
// permission type before a grant is ever persisted, mirroring
// permission_manager.rs's validate_scope/is_valid_domain_pattern exactly.
func validateScope(permType Type, scope string) error {
	if scope == "" {
		return fmt.Errorf("resource scope must not be empty")
	}
	switch permType {
	case TypeFilesystemRead, TypeFilesystemWrite:
		if scope != "*" && !strings.HasPrefix(scope, "AppData/") {
			return fmt.Errorf("file system access must be within AppData/: %s", scope)
		}
	case TypeNetworkRequest:
		if scope != "*" && !isValidDomainPattern(scope) {
			return fmt.Errorf("invalid domain pattern: %s", scope)
		}
	}
	return nil
}

// isValidDomainPattern accepts "*.example.com"-style wildcards (base must
// contain a dot and no further wildcard) or a plain domain (must contain a
// dot, no spaces, no wildcard).
func isValidDomainPattern(pattern string) bool {
	if strings.HasPrefix(pattern, "*.") {
		domain := pattern[2:]
		return strings.Contains(domain, ".") && !strings.Contains(domain, "*")
	}
	return strings.Contains(pattern, ".") && !strings.Contains(pattern, " ") && !strings.Contains(pattern, "*")
}
