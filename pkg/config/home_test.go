package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHome_EnvVar(t *testing.T) {
	ResetHome()
	t.Cleanup(ResetHome)
	t.Setenv("FLOWRUNNER_HOME", "/custom/path")

	assert.Equal(t, "/custom/path", GetHome())
}

func TestGetHome_FallbackNotEmpty(t *testing.T) {
	ResetHome()
	t.Cleanup(ResetHome)
	t.Setenv("FLOWRUNNER_HOME", "")

	assert.NotEmpty(t, GetHome())
}

func TestGetHome_Cached(t *testing.T) {
	ResetHome()
	t.Cleanup(ResetHome)
	t.Setenv("FLOWRUNNER_HOME", "/first")

	first := GetHome()
	t.Setenv("FLOWRUNNER_HOME", "/second")

	assert.Equal(t, first, GetHome(), "home is resolved once")
}

func TestHomePaths(t *testing.T) {
	ResetHome()
	t.Cleanup(ResetHome)
	t.Setenv("FLOWRUNNER_HOME", "/test/home")

	assert.Equal(t, filepath.Join("/test/home", "keys.json"), GetKeysPath())
	assert.Equal(t, filepath.Join("/test/home", "prefixes.yaml"), GetPrefixesPath())
	assert.Equal(t, filepath.Join("/test/home", "drivers"), GetDriversDir())
}
