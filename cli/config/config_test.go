package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "1", cfg.Version)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "academic.db", cfg.Database.URL)
	assert.Equal(t, 10, cfg.Store.SnapshotCadence)
	assert.Equal(t, "json", cfg.Store.Serializer)
	assert.Equal(t, ReadModelsMemory, cfg.ReadModels.Backend)
	assert.Empty(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name       string
		modify     func(*Config)
		wantErrors int
	}{
		{
			name:       "valid postgres",
			modify:     func(c *Config) { c.Database.Driver = DriverPostgres; c.Database.URL = "postgres://localhost/db" },
			wantErrors: 0,
		},
		{
			name:       "valid memory driver",
			modify:     func(c *Config) { c.Database.Driver = DriverMemory },
			wantErrors: 0,
		},
		{
			name:       "missing driver",
			modify:     func(c *Config) { c.Database.Driver = "" },
			wantErrors: 1,
		},
		{
			name:       "invalid driver",
			modify:     func(c *Config) { c.Database.Driver = "mysql" },
			wantErrors: 1,
		},
		{
			name:       "postgres without URL",
			modify:     func(c *Config) { c.Database.Driver = DriverPostgres; c.Database.URL = "" },
			wantErrors: 1,
		},
		{
			name:       "sqlite without path",
			modify:     func(c *Config) { c.Database.URL = "" },
			wantErrors: 1,
		},
		{
			name:       "negative cadence",
			modify:     func(c *Config) { c.Store.SnapshotCadence = -1 },
			wantErrors: 1,
		},
		{
			name:       "unknown serializer",
			modify:     func(c *Config) { c.Store.Serializer = "xml" },
			wantErrors: 1,
		},
		{
			name:       "redis without address",
			modify:     func(c *Config) { c.ReadModels.Backend = ReadModelsRedis },
			wantErrors: 1,
		},
		{
			name:       "postgres read models on sqlite",
			modify:     func(c *Config) { c.ReadModels.Backend = ReadModelsPostgres },
			wantErrors: 1,
		},
		{
			name:       "unknown read model backend",
			modify:     func(c *Config) { c.ReadModels.Backend = "mongo" },
			wantErrors: 1,
		},
		{
			name: "kafka without topic",
			modify: func(c *Config) {
				c.Publishing.KafkaBrokers = []string{"localhost:9092"}
				c.Publishing.KafkaTopic = ""
			},
			wantErrors: 1,
		},
		{
			name:       "sns without region",
			modify:     func(c *Config) { c.Publishing.SNSTopicARN = "arn:aws:sns:eu-west-1:1:records" },
			wantErrors: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.Len(t, cfg.Validate(), tt.wantErrors)
		})
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Database.Driver = DriverPostgres
	cfg.Database.URL = "postgres://localhost/records"
	cfg.Store.SnapshotCadence = 25
	cfg.Publishing.KafkaBrokers = []string{"a:9092", "b:9092"}

	require.NoError(t, cfg.Save(dir))
	assert.True(t, Exists(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFile(t *testing.T) {
	t.Run("missing fields keep defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ConfigFileName)
		require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: memory\n"), 0644))

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, DriverMemory, cfg.Database.Driver)
		assert.Equal(t, 10, cfg.Store.SnapshotCadence)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ConfigFileName)
		require.NoError(t, os.WriteFile(path, []byte("database: [\n"), 0644))

		_, err := LoadFile(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), ConfigFileName))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	require.NoError(t, DefaultConfig().Save(root))

	found, cfg, err := FindConfig(nested)
	require.NoError(t, err)
	assert.Equal(t, root, found)
	assert.NotNil(t, cfg)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ACADEMIC_DATABASE_DRIVER", "postgres")
	t.Setenv("ACADEMIC_SNAPSHOT_CADENCE", "3")
	t.Setenv("ACADEMIC_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ACADEMIC_TRACING", "true")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Store.SnapshotCadence)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Publishing.KafkaBrokers)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "academic.db", cfg.Database.URL, "unset variables keep their value")
}

func TestApplyEnv_InvalidValue(t *testing.T) {
	t.Setenv("ACADEMIC_SNAPSHOT_CADENCE", "often")

	err := DefaultConfig().ApplyEnv()
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	t.Run("defaults when no file", func(t *testing.T) {
		dir := t.TempDir()
		cfg, root, err := Resolve(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, root)
		assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	})

	t.Run("dotenv overrides file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, DefaultConfig().Save(dir))
		require.NoError(t, os.WriteFile(filepath.Join(dir, EnvFileName),
			[]byte("ACADEMIC_LOG_LEVEL=debug\n"), 0644))
		t.Cleanup(func() { os.Unsetenv("ACADEMIC_LOG_LEVEL") })

		cfg, _, err := Resolve(dir)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}

func TestDatabaseURL_ExpandsEnv(t *testing.T) {
	t.Setenv("RECORDS_DB_HOST", "db.internal")

	cfg := DefaultConfig()
	cfg.Database.URL = "postgres://${RECORDS_DB_HOST}/records"
	assert.Equal(t, "postgres://db.internal/records", cfg.DatabaseURL())
}

func TestGenerateYAML(t *testing.T) {
	cfg := DefaultConfig()
	out := GenerateYAML(cfg)

	assert.Contains(t, out, `driver: "sqlite"`)
	assert.Contains(t, out, "snapshot_cadence: 10")

	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(out), 0644))
	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Database, loaded.Database)
}
