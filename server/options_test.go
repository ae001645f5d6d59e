package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
	"Host": "127.0.0.1",
	"Port": 9000,
	"MaxWorkers": 8,
	"MaxPayloadSize": 1048576,
	"DrainTimeout": "2s",
	"ServiceNames": ["Echo"]
}`

func TestParseConfigInline(t *testing.T) {
	conf, err := ParseConfig(sampleConfig)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", conf.Host)
	assert.Equal(t, 9000, conf.Port)

	opts, err := conf.Options()
	require.NoError(t, err)
	assert.Equal(t, 8, opts.MaxWorkers)
	assert.Equal(t, uint64(1<<20), opts.MaxPayloadSize)
	assert.Equal(t, 2*time.Second, opts.DrainTimeout)
	assert.Equal(t, []string{"Echo"}, opts.ServiceNames)
}

func TestParseConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	conf, err := ParseConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, conf.Port)
}

func TestParseConfigErrors(t *testing.T) {
	_, err := ParseConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = ParseConfig(`{"Port": "nine"}`)
	assert.Error(t, err)

	conf, err := ParseConfig(`{"DrainTimeout": "soon"}`)
	require.NoError(t, err)
	_, err = conf.Options()
	assert.Error(t, err)
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{MaxWorkers: -3}.withDefaults()
	assert.Equal(t, DefaultReadBufferSize, opts.ReadBufferSize)
	assert.Equal(t, DefaultDrainTimeout, opts.DrainTimeout)
	assert.Zero(t, opts.MaxWorkers)
	assert.NotNil(t, opts.Logger)
}
