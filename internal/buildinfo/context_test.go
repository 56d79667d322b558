package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextFallbacks(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		ctx       *Context
		version   string
		buildDate string
	}{
		{"nil context", nil, UnknownValue, UnknownValue},
		{"empty values", NewContext("", ""), UnknownValue, UnknownValue},
		{"pre-release", NewContext("v1.0.0-beta.1", "2026-01-01T12:00:00Z"), "v1.0.0-beta.1", "2026-01-01T12:00:00Z"},
		{"build metadata", NewContext("v1.0.0+build.123", ""), "v1.0.0+build.123", UnknownValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.ctx.Version())
			assert.Equal(t, tt.buildDate, tt.ctx.BuildDate())
		})
	}
}

func TestRelease(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "hijack-audio@v0.3.1", NewContext("v0.3.1", "").Release("hijack-audio"))
	assert.Equal(t, "hijack-audio@unknown", (*Context)(nil).Release("hijack-audio"))
}

func TestCurrentPrefersLinkerVersion(t *testing.T) {
	saved := version
	t.Cleanup(func() { version = saved })

	version = "v9.9.9"
	c := Current()
	assert.Equal(t, "v9.9.9", c.Version())
	assert.NotEqual(t, UnknownValue, c.GoVersion())
}
