package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pg-sharding/dsproxy/pkg/config"
	"github.com/stretchr/testify/assert"
)

func writeTempConfig(t *testing.T, name, contents string) string {
	t.Helper()

	dir := t.TempDir()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return p
}

func TestLoadProxyCfgYAML(t *testing.T) {
	assert := assert.New(t)

	path := writeTempConfig(t, "proxy.yaml", `
log_level: debug
log_min_duration_statement: 250ms
database_name: sharding_db
dialect: postgresql
data_sources:
  - name: ds_0
    dsn: postgres://localhost:5432/db0
  - name: ds_1
    driver: postgres
    dsn: postgres://localhost:5433/db1
default_data_source: ds_1
static_tables:
  - name: t_order
    data_nodes: [ds_0.t_order_0, ds_1.t_order_1]
    accumulate: true
props:
  max_connections_size_per_query: 2
`)

	_, err := config.LoadProxyCfg(path)
	assert.NoError(err)

	cfg := config.ProxyConfig()
	assert.Equal("sharding_db", cfg.DatabaseName)
	assert.Equal(250*time.Millisecond, cfg.LogMinDurationStatement)
	assert.Len(cfg.DataSources, 2)
	assert.Equal(config.DriverPgx, cfg.DataSources[0].Driver)
	assert.Equal(config.DriverPostgres, cfg.DataSources[1].Driver)
	assert.Equal(2, cfg.Props.MaxConnectionsSizePerQuery)
	assert.Equal(config.QdbMem, cfg.Qdb.Type)
	assert.True(cfg.StaticTables[0].Accumulate)
}

func TestLoadProxyCfgTOML(t *testing.T) {
	assert := assert.New(t)

	path := writeTempConfig(t, "proxy.toml", `
database_name = "sharding_db"

[[data_sources]]
name = "ds_0"
dsn = "postgres://localhost:5432/db0"

[qdb]
type = "etcd"
addr = "localhost:2379"
`)

	_, err := config.LoadProxyCfg(path)
	assert.NoError(err)
	assert.Equal(config.QdbEtcd, config.ProxyConfig().Qdb.Type)
	assert.Equal(config.DefaultMaxConnectionsSizePerQuery, config.ProxyConfig().Props.MaxConnectionsSizePerQuery)
}

func TestLoadProxyCfgUnknownSuffix(t *testing.T) {
	assert := assert.New(t)

	path := writeTempConfig(t, "proxy.ini", "database_name=x")
	_, err := config.LoadProxyCfg(path)
	assert.Error(err)
}

func TestValidate(t *testing.T) {
	assert := assert.New(t)

	type tcase struct {
		name    string
		cfg     config.Proxy
		wantErr bool
	}

	ds := []config.DataSourceCfg{
		{Name: "ds_0", Driver: config.DriverPgx},
		{Name: "ds_1", Driver: config.DriverPgx},
	}

	for _, tt := range []tcase{
		{
			name: "ok",
			cfg:  config.Proxy{DataSources: ds, Qdb: config.QdbCfg{Type: config.QdbMem}},
		},
		{
			name: "duplicate data source",
			cfg: config.Proxy{
				DataSources: []config.DataSourceCfg{{Name: "ds_0", Driver: config.DriverPgx}, {Name: "DS_0", Driver: config.DriverPgx}},
				Qdb:         config.QdbCfg{Type: config.QdbMem},
			},
			wantErr: true,
		},
		{
			name:    "unknown default",
			cfg:     config.Proxy{DataSources: ds, DefaultDataSource: "ds_9", Qdb: config.QdbCfg{Type: config.QdbMem}},
			wantErr: true,
		},
		{
			name: "static table on unknown data source",
			cfg: config.Proxy{
				DataSources:  ds,
				StaticTables: []config.StaticTableCfg{{Name: "t", DataNodes: []string{"ds_7.t"}}},
				Qdb:          config.QdbCfg{Type: config.QdbMem},
			},
			wantErr: true,
		},
		{
			name: "static table nodes sharing a data source",
			cfg: config.Proxy{
				DataSources:  ds,
				StaticTables: []config.StaticTableCfg{{Name: "t", DataNodes: []string{"ds_0.t_0", "ds_0.t_1"}}},
				Qdb:          config.QdbCfg{Type: config.QdbMem},
			},
		},
		{
			name: "static table node listed twice",
			cfg: config.Proxy{
				DataSources:  ds,
				StaticTables: []config.StaticTableCfg{{Name: "t", DataNodes: []string{"ds_0.t_0", "DS_0.T_0"}}},
				Qdb:          config.QdbCfg{Type: config.QdbMem},
			},
			wantErr: true,
		},
		{
			name:    "etcd without addr",
			cfg:     config.Proxy{DataSources: ds, Qdb: config.QdbCfg{Type: config.QdbEtcd}},
			wantErr: true,
		},
		{
			name:    "unknown driver",
			cfg:     config.Proxy{DataSources: []config.DataSourceCfg{{Name: "ds_0", Driver: "mysql"}}, Qdb: config.QdbCfg{Type: config.QdbMem}},
			wantErr: true,
		},
	} {
		err := tt.cfg.Validate()
		if tt.wantErr {
			assert.Error(err, tt.name)
		} else {
			assert.NoError(err, tt.name)
		}
	}
}
