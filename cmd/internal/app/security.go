package app

import "errors"

// ValidateSecurityConfig enforces the startup security policy.
// Fail-fast is preferred over silently weakening authentication at runtime.
func ValidateSecurityConfig(cfg Config) error {
	if cfg.DevQueryAuth && cfg.Env != "development" {
		return errors.New("security policy: CHAMADOS_DEV_QUERY_AUTH=true is only allowed with CHAMADOS_ENV=development")
	}
	return nil
}
