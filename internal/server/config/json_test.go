package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJson_OverridesSubset(t *testing.T) {
	content := `{
		"endpoint_addr": ":7070",
		"secret_key": "json-secret",
		"token_validity_duration": "2h",
		"store_timeout": "3s"
	}`

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"cmd", "-c", path}

	var c Config
	c.LoadDefaults()
	parseJson(&c)

	assert.Equal(t, c.EndpointAddr, ":7070")
	assert.Equal(t, c.SecretKey, "json-secret")
	assert.Equal(t, c.TokenValidityDuration, 2*time.Hour)
	assert.Equal(t, c.StoreTimeout, 3*time.Second)

	// untouched fields keep their defaults
	assert.Equal(t, c.Environment, EnvDevelopment)
	assert.Equal(t, c.EncryptionKey, "")
}

func TestParseJson_NoFileFlag(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"cmd"}

	var c Config
	c.LoadDefaults()
	parseJson(&c)

	assert.Equal(t, c.EndpointAddr, ":8080")
}

func TestParseJson_InvalidFilePanics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"cmd", "-c", path}

	var c Config
	c.LoadDefaults()
	assert.Panics(t, func() { parseJson(&c) })
}
