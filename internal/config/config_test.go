package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/UniQw/leaseq/store/redisstore"
	mrd "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	c, err := FromEnv(env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, StoreRedis, c.Store)
	assert.Equal(t, 60*time.Second, c.RetryWait)
}

func TestFromEnv_Overrides(t *testing.T) {
	c, err := FromEnv(env(map[string]string{
		"LEASEQ_STORE":      "postgres",
		"DATABASE_URL":      "postgres://u:p@db:5432/leaseq",
		"LEASEQ_NAMESPACE":  "mail",
		"WORKER_COUNT":      "12",
		"LEASE_DURATION":    "30m",
		"POLL_INTERVAL":     "250ms",
		"RETRY_WAIT":        "2m",
		"ARCHIVE_RETENTION": "0s",
	}))
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, c.Store)
	assert.Equal(t, "mail", c.Namespace)
	assert.Equal(t, 12, c.WorkerCount)
	assert.Equal(t, 30*time.Minute, c.LeaseDuration)
	assert.Equal(t, 250*time.Millisecond, c.PollInterval)
	assert.Equal(t, 2*time.Minute, c.RetryWait)
	assert.Zero(t, c.ArchiveRetention)

	sc := c.ServerConfig(nil)
	assert.Equal(t, 12, sc.Concurrency)
	assert.Equal(t, 2*time.Minute, sc.DefaultRetryWait)
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"bad store":        {"LEASEQ_STORE": "sqlite"},
		"postgres no url":  {"LEASEQ_STORE": "postgres"},
		"bad worker count": {"WORKER_COUNT": "zero"},
		"zero workers":     {"WORKER_COUNT": "0"},
		"bad duration":     {"LEASE_DURATION": "soon"},
		"negative":         {"RETRY_WAIT": "-1s"},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(env(m))
			require.Error(t, err)
		})
	}
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(f, []byte("LEASEQ_NAMESPACE=fromfile\nWORKER_COUNT=3\n"), 0o600))
	t.Setenv("WORKER_COUNT", "7")
	t.Setenv("LEASEQ_NAMESPACE", "")
	require.NoError(t, os.Unsetenv("LEASEQ_NAMESPACE"))

	c, err := Load(f, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "fromfile", c.Namespace)
	assert.Equal(t, 7, c.WorkerCount)
}

func TestOpenStore_Redis(t *testing.T) {
	mr := mrd.RunT(t)
	c := Default()
	c.RedisAddr = mr.Addr()
	c.Namespace = "cfg"

	s, closeFn, err := c.OpenStore(context.Background())
	require.NoError(t, err)
	defer closeFn()
	require.IsType(t, &redisstore.Store{}, s)

	_, err = s.InsertData(context.Background(), []byte("x"))
	require.NoError(t, err)
	require.True(t, mr.Exists("leaseq:{cfg}:data"))
}
