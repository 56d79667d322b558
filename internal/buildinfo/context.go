// Package buildinfo contains build-time metadata kept apart from user configuration.
package buildinfo

import (
	"runtime"
	"runtime/debug"
)

// UnknownValue is reported for metadata the build did not record.
const UnknownValue = "unknown"

// Set with -ldflags "-X github.com/kappaborg/HIJACK-Audio/internal/buildinfo.version=...".
var (
	version   string
	buildDate string
)

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	version   string
	buildDate string
	goVersion string
}

// NewContext creates a Context from explicit values.
func NewContext(version, buildDate string) *Context {
	return &Context{version: version, buildDate: buildDate, goVersion: runtime.Version()}
}

// Current describes the running binary. The module version from the Go
// build info is used when no linker flag set one.
func Current() *Context {
	v := version
	if v == "" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
	}
	return NewContext(v, buildDate)
}

// Version returns the build version string
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the build date string
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// GoVersion returns the toolchain the binary was built with.
func (c *Context) GoVersion() string {
	if c == nil || c.goVersion == "" {
		return UnknownValue
	}
	return c.goVersion
}

// Release names the build for error reports, as name@version.
func (c *Context) Release(name string) string {
	return name + "@" + c.Version()
}
