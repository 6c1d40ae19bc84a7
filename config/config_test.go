package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `APP:
  NAME: seasure-chat
  PORT: "8080"
DATABASE:
  MONGO:
    URL: mongodb://localhost:27017
    NAME: seasure
  REDIS:
    ADDR: localhost:6379
    PASSWORD: ""
STORAGE:
  BUCKET: ""
  CDN_DOMAIN: ""
NOTIFY:
  WEBHOOK_URL: ""
WORKER:
  NUM: 0
`

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "application.yaml"), []byte(sampleConfig), 0o644))
	t.Chdir(dir)

	require.NoError(t, LoadConfig())
	require.NotNil(t, Conf)

	assert.Equal(t, "seasure-chat", Conf.App.Name)
	assert.Equal(t, "8080", Conf.App.Port)
	assert.Equal(t, "mongodb://localhost:27017", Conf.DATABASE.Mongo.Url)
	assert.Equal(t, "localhost:6379", Conf.DATABASE.Redis.Addr)
	assert.Equal(t, 5, Conf.WORKER.Num, "worker count falls back to the default")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	assert.Error(t, LoadConfig())
}
