package config

// SanitizedDatabase is the secret-redacted projection of a Database descriptor
// served by the management/export surface, ported from the source
// material's ConfigSanitizer (which redacts password/secret/token fields
// before a config snapshot leaves the process).
type SanitizedDatabase struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Driver      string `json:"driver"`
	URL         string `json:"url"`
	Username    string `json:"username,omitempty"`
}

// Sanitize redacts the password field from a Database descriptor.
func (d Database) Sanitize() SanitizedDatabase {
	return SanitizedDatabase{
		Name:        d.Name,
		Description: d.Description,
		Driver:      d.Driver,
		URL:         d.URL,
		Username:    d.Username,
	}
}

// SanitizeDatabases redacts every database descriptor in a generation for
// serialization at GET /api/generic/config.
func (g *Generation) SanitizeDatabases() []SanitizedDatabase {
	out := make([]SanitizedDatabase, 0, len(g.Databases))
	for _, d := range g.Databases {
		out = append(out, d.Sanitize())
	}
	return out
}
