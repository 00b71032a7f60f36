package reserve

import "fmt"

// Config defines reservation coordinator settings.
type Config struct {
	// RetryLimit bounds how many times a request replans after losing an
	// optimistic race (or a collaborator timeout).
	RetryLimit int `json:"retry_limit"`
	// CollaboratorTimeoutMs bounds each snapshot/commit call against the
	// inventory store.
	CollaboratorTimeoutMs int `json:"collaborator_timeout_ms"`
}

// SetDefaults fills unset fields with the documented defaults.
func (c *Config) SetDefaults() {
	if c.RetryLimit == 0 {
		c.RetryLimit = 3
	}
	if c.CollaboratorTimeoutMs == 0 {
		c.CollaboratorTimeoutMs = 2000
	}
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	if c.RetryLimit < 1 {
		return fmt.Errorf("retry_limit must be at least 1")
	}
	if c.CollaboratorTimeoutMs < 1 {
		return fmt.Errorf("collaborator_timeout_ms must be positive")
	}
	return nil
}
