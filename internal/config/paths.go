package config

import "path/filepath"

// ConfigPath returns the path to config.toml under HomeDir.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.HomeDir, "config.toml")
}

// SessionRoot returns the configured session archive root.
func (c *Config) SessionRoot() string {
	return c.Session.Root
}

// ArchiveRoot returns the configured early-archive root.
func (c *Config) ArchiveRoot() string {
	return c.Session.ArchiveRoot
}

// ResolvedSessionRoot returns SessionRoot anchored under HomeDir when
// configured as a relative path, so it does not depend on the process's
// working directory.
func (c *Config) ResolvedSessionRoot() string {
	if filepath.IsAbs(c.Session.Root) {
		return c.Session.Root
	}
	return filepath.Join(c.HomeDir, c.Session.Root)
}

// ResolvedArchiveRoot returns ArchiveRoot anchored under HomeDir when
// configured as a relative path.
func (c *Config) ResolvedArchiveRoot() string {
	if filepath.IsAbs(c.Session.ArchiveRoot) {
		return c.Session.ArchiveRoot
	}
	return filepath.Join(c.HomeDir, c.Session.ArchiveRoot)
}
