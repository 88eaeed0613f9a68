// Package buildinfo holds build-time metadata kept apart from user configuration.
package buildinfo

import "fmt"

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// Context is the build metadata injected by main through the linker
// (-ldflags "-X main.version=... -X main.buildDate=...").
type Context struct {
	version   string
	buildDate string
}

// NewContext returns build metadata. Empty values report UnknownValue.
func NewContext(version, buildDate string) *Context {
	return &Context{version: version, buildDate: buildDate}
}

// Version returns the release version.
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the build date.
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// String is the one-line form printed by --version.
func (c *Context) String() string {
	return fmt.Sprintf("cardmatch %s (built %s)", c.Version(), c.BuildDate())
}

// UserAgent returns the User-Agent sent to upstream services.
func (c *Context) UserAgent() string {
	return "cardmatch/" + c.Version()
}
