package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
)

const (
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"

	QdbMem  = "mem"
	QdbEtcd = "etcd"

	DefaultMaxConnectionsSizePerQuery = 1
)

type DataSourceCfg struct {
	Name         string `json:"name" toml:"name" yaml:"name"`
	Driver       string `json:"driver" toml:"driver" yaml:"driver"`
	DSN          string `json:"dsn" toml:"dsn" yaml:"dsn"`
	MaxOpenConns int    `json:"max_open_conns" toml:"max_open_conns" yaml:"max_open_conns"`
}

// StaticTableCfg declares a logical table backed by a fixed list of data
// nodes ("ds.table" or "ds.schema.table").
type StaticTableCfg struct {
	Schema     string   `json:"schema" toml:"schema" yaml:"schema"`
	Name       string   `json:"name" toml:"name" yaml:"name"`
	DataNodes  []string `json:"data_nodes" toml:"data_nodes" yaml:"data_nodes"`
	Accumulate bool     `json:"accumulate" toml:"accumulate" yaml:"accumulate"`
}

type PropsCfg struct {
	MaxConnectionsSizePerQuery int  `json:"max_connections_size_per_query" toml:"max_connections_size_per_query" yaml:"max_connections_size_per_query"`
	SQLFederationEnabled       bool `json:"sql_federation_enabled" toml:"sql_federation_enabled" yaml:"sql_federation_enabled"`
	ImplicitDistributedTx      bool `json:"implicit_distributed_tx" toml:"implicit_distributed_tx" yaml:"implicit_distributed_tx"`
	// ExecutorSize bounds concurrently running units of one statement. Zero means unbounded.
	ExecutorSize int `json:"executor_size" toml:"executor_size" yaml:"executor_size"`
	// RawExecution runs autocommit statements on dedicated connections
	// bypassing the session connection cache.
	RawExecution bool `json:"raw_execution" toml:"raw_execution" yaml:"raw_execution"`
	// StatementRateEnabled turns on the sliding window statement rate.
	StatementRateEnabled bool `json:"statement_rate_enabled" toml:"statement_rate_enabled" yaml:"statement_rate_enabled"`
}

type TransactionCfg struct {
	DefaultType string `json:"default_type" toml:"default_type" yaml:"default_type"`
}

type QdbCfg struct {
	Type       string `json:"type" toml:"type" yaml:"type"`
	Addr       string `json:"addr" toml:"addr" yaml:"addr"`
	BackupPath string `json:"backup_path" toml:"backup_path" yaml:"backup_path"`
}

type JaegerCfg struct {
	Enabled   bool   `json:"enabled" toml:"enabled" yaml:"enabled"`
	JaegerUrl string `json:"jaeger_url" toml:"jaeger_url" yaml:"jaeger_url"`
}

type Proxy struct {
	LogLevel                string        `json:"log_level" toml:"log_level" yaml:"log_level"`
	LogFileName             string        `json:"log_filename" toml:"log_filename" yaml:"log_filename"`
	PrettyLogging           bool          `json:"pretty_logging" toml:"pretty_logging" yaml:"pretty_logging"`
	LogMinDurationStatement time.Duration `json:"log_min_duration_statement" toml:"log_min_duration_statement" yaml:"log_min_duration_statement"`
	PidFileName             string        `json:"pid_filename" toml:"pid_filename" yaml:"pid_filename"`
	SystemdNotifierDebug    bool          `json:"systemd_notifier_debug" toml:"systemd_notifier_debug" yaml:"systemd_notifier_debug"`

	DatabaseName      string           `json:"database_name" toml:"database_name" yaml:"database_name"`
	Dialect           string           `json:"dialect" toml:"dialect" yaml:"dialect"`
	DataSources       []DataSourceCfg  `json:"data_sources" toml:"data_sources" yaml:"data_sources"`
	DefaultDataSource string           `json:"default_data_source" toml:"default_data_source" yaml:"default_data_source"`
	StaticTables      []StaticTableCfg `json:"static_tables" toml:"static_tables" yaml:"static_tables"`

	Props       PropsCfg       `json:"props" toml:"props" yaml:"props"`
	Transaction TransactionCfg `json:"transaction" toml:"transaction" yaml:"transaction"`
	Qdb         QdbCfg         `json:"qdb" toml:"qdb" yaml:"qdb"`
	Jaeger      JaegerCfg      `json:"jaeger" toml:"jaeger" yaml:"jaeger"`
}

var cfgProxy Proxy

// LoadProxyCfg loads the proxy configuration from cfgPath, validates it and
// makes it available through ProxyConfig.
//
// Returns the JSON rendering of the loaded config for logging.
func LoadProxyCfg(cfgPath string) (string, error) {
	var pcfg Proxy
	file, err := os.Open(cfgPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	if err := initConfig(file, &pcfg); err != nil {
		return "", err
	}
	pcfg.applyDefaults()
	if err := pcfg.Validate(); err != nil {
		return "", err
	}

	configBytes, err := json.MarshalIndent(&pcfg, "", "  ")
	if err != nil {
		return "", err
	}
	cfgProxy = pcfg
	return string(configBytes), nil
}

// ProxyConfig returns a pointer to the loaded configuration.
func ProxyConfig() *Proxy {
	return &cfgProxy
}

func (p *Proxy) applyDefaults() {
	if p.Props.MaxConnectionsSizePerQuery <= 0 {
		p.Props.MaxConnectionsSizePerQuery = DefaultMaxConnectionsSizePerQuery
	}
	if p.Qdb.Type == "" {
		p.Qdb.Type = QdbMem
	}
	if p.LogLevel == "" {
		p.LogLevel = "info"
	}
	for i := range p.DataSources {
		if p.DataSources[i].Driver == "" {
			p.DataSources[i].Driver = DriverPgx
		}
	}
}

// Validate checks cross references between sections.
func (p *Proxy) Validate() error {
	known := map[string]struct{}{}
	for _, ds := range p.DataSources {
		if ds.Name == "" {
			return fmt.Errorf("data source with empty name")
		}
		key := strings.ToLower(ds.Name)
		if _, ok := known[key]; ok {
			return fmt.Errorf("duplicate data source \"%s\"", ds.Name)
		}
		known[key] = struct{}{}
		switch ds.Driver {
		case DriverPgx, DriverPostgres:
		default:
			return fmt.Errorf("data source \"%s\": unknown driver \"%s\"", ds.Name, ds.Driver)
		}
	}
	if p.DefaultDataSource != "" {
		if _, ok := known[strings.ToLower(p.DefaultDataSource)]; !ok {
			return fmt.Errorf("default data source \"%s\" is not declared", p.DefaultDataSource)
		}
	}

	tables := map[string]struct{}{}
	for _, st := range p.StaticTables {
		qt := datanode.NewQualifiedTable(st.Schema, st.Name)
		if _, ok := tables[qt.Key()]; ok {
			return fmt.Errorf("duplicate static table \"%s\"", qt)
		}
		tables[qt.Key()] = struct{}{}
		if len(st.DataNodes) == 0 {
			return fmt.Errorf("static table \"%s\" has no data nodes", qt)
		}
		nodes := map[string]struct{}{}
		for _, raw := range st.DataNodes {
			dn, err := datanode.ParseDataNode(raw)
			if err != nil {
				return err
			}
			if _, ok := nodes[dn.Key()]; ok {
				return fmt.Errorf("static table \"%s\" lists data node \"%s\" twice", qt, dn)
			}
			nodes[dn.Key()] = struct{}{}
			if _, ok := known[strings.ToLower(dn.DataSourceName)]; !ok {
				return fmt.Errorf("static table \"%s\" refers to unknown data source \"%s\"", qt, dn.DataSourceName)
			}
		}
	}

	switch p.Qdb.Type {
	case QdbMem:
	case QdbEtcd:
		if p.Qdb.Addr == "" {
			return fmt.Errorf("etcd qdb requires addr")
		}
	default:
		return fmt.Errorf("unknown qdb type \"%s\"", p.Qdb.Type)
	}
	return nil
}
