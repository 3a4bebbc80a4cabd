package config

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"BOT_TOKEN", "PORT", "URL", "STORAGE_CHAT_ID", "LOG_CHANNEL", "BACKEND_DRIVER", "LOCAL_ROOT", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	m := NewManagerWithFs(afero.NewMemMapFs(), "/etc/tgstream/settings.json")

	got, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), got)
}

func TestLoadJSONOverlaysDefaults(t *testing.T) {
	clearEnv(t)
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/cfg/settings.json", []byte(`{
		"server": {"port": 8080, "publicUrl": "https://videos.example"},
		"telegram": {"botToken": "123:abc", "storageChatId": "-1001"}
	}`), 0o600))

	got, err := NewManagerWithFs(fsys, "/cfg/settings.json").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, got.Server.Port)
	assert.Equal(t, "0.0.0.0", got.Server.Host, "unset fields keep defaults")
	assert.Equal(t, "123:abc", got.Telegram.BotToken)
	assert.Equal(t, 100, got.Catalog.ScanLimit)
	require.NoError(t, got.Validate())
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/cfg/settings.yaml", []byte(`
backend:
  driver: local
  local_root: /srv/videos
catalog:
  scan_limit: 500
`), 0o600))

	got, err := NewManagerWithFs(fsys, "/cfg/settings.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, DriverLocal, got.Backend.Driver)
	assert.Equal(t, "/srv/videos", got.Backend.LocalRoot)
	assert.Equal(t, 500, got.Catalog.ScanLimit)
	require.NoError(t, got.Validate())
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "env-token")
	t.Setenv("PORT", "9000")
	t.Setenv("URL", "https://public.example/")
	t.Setenv("LOG_CHANNEL", "-100999")
	t.Setenv("LOG_LEVEL", "debug")

	got, err := NewManagerWithFs(afero.NewMemMapFs(), "settings.json").Load()
	require.NoError(t, err)
	assert.Equal(t, "env-token", got.Telegram.BotToken)
	assert.Equal(t, 9000, got.Server.Port)
	assert.Equal(t, "-100999", got.Telegram.StorageChatID)
	assert.Equal(t, "debug", got.Log.Level)

	t.Setenv("STORAGE_CHAT_ID", "-100111")
	got, err = NewManagerWithFs(afero.NewMemMapFs(), "settings.json").Load()
	require.NoError(t, err)
	assert.Equal(t, "-100111", got.Telegram.StorageChatID, "STORAGE_CHAT_ID wins over LOG_CHANNEL")

	a := NewConfigAdapter(got)
	assert.Equal(t, "https://public.example", a.PublicURL())
	assert.Equal(t, "0.0.0.0:9000", a.ListenAddr())
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	fsys := afero.NewMemMapFs()
	for _, path := range []string{"/cfg/a.json", "/cfg/b.yml"} {
		m := NewManagerWithFs(fsys, path)
		s := DefaultSettings()
		s.Telegram.BotToken = "t"
		s.Server.MaxUploadMB = 20
		require.NoError(t, m.Save(s))

		got, err := m.Load()
		require.NoError(t, err)
		assert.Equal(t, s, got, path)
	}
}

func TestValidate(t *testing.T) {
	s := DefaultSettings()
	err := s.Validate()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "botToken"))
	assert.True(t, strings.Contains(err.Error(), "storageChatId"))

	s.Backend.Driver = "ftp"
	require.ErrorContains(t, s.Validate(), "unknown backend.driver")

	s.Backend.Driver = DriverLocal
	require.NoError(t, s.Validate())
}

func TestAdapterDefaults(t *testing.T) {
	a := NewConfigAdapter(DefaultSettings())
	assert.Equal(t, "http://localhost:5000", a.PublicURL())
	assert.Equal(t, int64(50<<20), a.MaxUploadBytes())
	assert.Equal(t, 512<<10, a.TelegramOptions().ChunkSize)
	assert.Equal(t, "data/journal.db", a.DatabaseConfig().DatabasePath)
	assert.Equal(t, "info", a.LoggingOptions().Level)
}
