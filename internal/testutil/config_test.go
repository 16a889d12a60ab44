package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTestDBConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want TestDBConfig
	}{
		{
			name: "local compose profile",
			want: TestDBConfig{Host: "localhost", Port: "55432", User: "waypoint", Password: "waypoint", DBName: "waypoint"},
		},
		{
			name: "ci overrides",
			env:  map[string]string{"TEST_DB_HOST": "postgres", "TEST_DB_PORT": "5432", "TEST_DB_NAME": "waypoint_ci"},
			want: TestDBConfig{Host: "postgres", Port: "5432", User: "waypoint", Password: "waypoint", DBName: "waypoint_ci"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME"} {
				t.Setenv(key, tt.env[key])
			}
			assert.Equal(t, tt.want, DefaultTestDBConfig())
		})
	}
}

func TestTestDBConfigDSN(t *testing.T) {
	t.Setenv("DB_SSL_MODE", "")
	cfg := TestDBConfig{Host: "db", Port: "5432", User: "app", Password: "p@ss", DBName: "waypoint"}

	assert.Equal(t, "postgres://app:p%40ss@db:5432/waypoint?sslmode=disable", cfg.DSN(""))
	assert.Contains(t, cfg.DSN("t_abc,public"), "search_path=t_abc%2Cpublic")
}

func TestEnvBool(t *testing.T) {
	for value, want := range map[string]bool{"": false, "0": false, "true": true, "YES": true, "y": true, "nope": false} {
		t.Setenv("WAYPOINT_TESTUTIL_FLAG", value)
		assert.Equal(t, want, envBool("WAYPOINT_TESTUTIL_FLAG"), value)
	}
}
