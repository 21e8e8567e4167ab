package instance

import (
	"context"
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/pg-sharding/dsproxy/pkg/config"
	"github.com/pg-sharding/dsproxy/pkg/conn"
	"github.com/pg-sharding/dsproxy/pkg/dialect"
	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/pkg/errcounter"
	"github.com/pg-sharding/dsproxy/pkg/rps"
	"github.com/pg-sharding/dsproxy/pkg/txstatus"
	"github.com/pg-sharding/dsproxy/qdb"
	"github.com/pg-sharding/dsproxy/router/executor"
	"github.com/pg-sharding/dsproxy/router/poolmgr"
	"github.com/pg-sharding/dsproxy/router/qrouter"
	"github.com/pg-sharding/dsproxy/router/registry"
	"github.com/pg-sharding/dsproxy/router/rule"
	"github.com/pg-sharding/dsproxy/router/session"
	"github.com/pg-sharding/dsproxy/router/statistics"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	jaegerlog "github.com/uber/jaeger-client-go/log"
	"github.com/uber/jaeger-lib/metrics"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

var DefaultQuantiles = []float64{0.5, 0.9, 0.99}

// Instance owns the runtime context of one logical database: its rules,
// table registry, data sources and routers. Sessions are created from it.
type Instance struct {
	cfg      *config.Proxy
	dialect  dialect.Dialect
	rules    *rule.Rules
	db       qdb.QDB
	registry *registry.Registry
	chain    *qrouter.Chain
	sources  poolmgr.DataSources
	stats    *statistics.StatHolder
	stmtLog  *dslog.StmtLogger
	rate     *rps.RPSStats
	errs     errcounter.ErrCounter
	txType   txstatus.TransactionType

	initialized *atomic.Bool
	tracer      io.Closer
}

// NewInstance opens every configured data source and the metadata store.
// The table registry stays empty until a MetadataBootstrapper runs.
func NewInstance(ctx context.Context, cfg *config.Proxy) (*Instance, error) {
	db, err := qdb.NewQDB(cfg.Qdb)
	if err != nil {
		return nil, err
	}

	sources := poolmgr.DataSources{}
	for _, dsCfg := range cfg.DataSources {
		ds, err := conn.OpenDataSource(dsCfg)
		if err != nil {
			err = multierr.Append(err, closeSources(sources))
			return nil, multierr.Append(err, closeQDB(db))
		}
		sources[dsCfg.Name] = ds
	}

	inst, err := NewFromComponents(cfg, db, sources)
	if err != nil {
		err = multierr.Append(err, closeSources(sources))
		return nil, multierr.Append(err, closeQDB(db))
	}

	if cfg.Jaeger.Enabled {
		closer, err := initJaegerTracer(cfg)
		if err != nil {
			dslog.Zero.Error().Err(err).Msg("could not initialize jaeger tracer")
		} else {
			inst.tracer = closer
		}
	}

	dslog.Zero.Info().
		Str("database", cfg.DatabaseName).
		Str("dialect", inst.dialect.Name()).
		Int("data sources", len(sources)).
		Str("transaction type", string(inst.txType)).
		Msg("instance: created")
	return inst, nil
}

// NewFromComponents builds an instance over already opened resources.
func NewFromComponents(cfg *config.Proxy, db qdb.QDB, sources poolmgr.DataSources) (*Instance, error) {
	d, err := dialect.Lookup(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	txType, err := txstatus.ParseTransactionType(cfg.Transaction.DefaultType)
	if err != nil {
		return nil, err
	}
	rules, err := rule.NewRules(cfg, d.DefaultSchema())
	if err != nil {
		return nil, err
	}
	if cfg.Props.RawExecution {
		rules.SetRawExecutor(executor.NewDirectExecutor(sources))
	}

	reg := registry.New(db, rules.DataSourceNames(), d.DefaultSchema())

	return &Instance{
		cfg:         cfg,
		dialect:     d,
		rules:       rules,
		db:          db,
		registry:    reg,
		chain:       qrouter.NewChain(qrouter.NewStaticRouter(rules), qrouter.NewTableRouter(reg, rules)),
		sources:     sources,
		stats:       statistics.NewStatHolder(DefaultQuantiles),
		stmtLog:     dslog.NewStmtLogger(cfg.LogMinDurationStatement),
		rate:        rps.NewRPSStats(cfg.Props.StatementRateEnabled),
		errs:        errcounter.New(),
		txType:      txType,
		initialized: atomic.NewBool(false),
	}, nil
}

func initJaegerTracer(cfg *config.Proxy) (io.Closer, error) {
	jcfg := jaegercfg.Configuration{
		ServiceName: "dsproxy",
		Sampler: &jaegercfg.SamplerConfig{
			Type:              "const",
			Param:             1,
			SamplingServerURL: cfg.Jaeger.JaegerUrl,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans: false,
		},
		Gen128Bit: true,
		Tags: []opentracing.Tag{
			{Key: "span.kind", Value: "server"},
			{Key: "database", Value: cfg.DatabaseName},
		},
	}

	return jcfg.InitGlobalTracer(
		"dsproxy",
		jaegercfg.Logger(jaegerlog.StdLogger),
		jaegercfg.Metrics(metrics.NullFactory),
	)
}

func (i *Instance) Config() *config.Proxy {
	return i.cfg
}

func (i *Instance) Dialect() dialect.Dialect {
	return i.dialect
}

func (i *Instance) Rules() *rule.Rules {
	return i.rules
}

func (i *Instance) QDB() qdb.QDB {
	return i.db
}

func (i *Instance) Registry() *registry.Registry {
	return i.registry
}

func (i *Instance) Router() *qrouter.Chain {
	return i.chain
}

func (i *Instance) Stats() *statistics.StatHolder {
	return i.stats
}

func (i *Instance) StmtLogger() *dslog.StmtLogger {
	return i.stmtLog
}

// StatementRate counts executed statements.
func (i *Instance) StatementRate() *rps.RPSStats {
	return i.rate
}

// Errors counts failed statements by error code.
func (i *Instance) Errors() errcounter.ErrCounter {
	return i.errs
}

func (i *Instance) TransactionType() txstatus.TransactionType {
	return i.txType
}

// DataSource implements poolmgr.DataSourceProvider.
func (i *Instance) DataSource(name string) (conn.DataSource, bool) {
	return i.sources.DataSource(name)
}

// AvailableDataSources lists the data sources that were opened, in
// configuration order.
func (i *Instance) AvailableDataSources() []string {
	var ret []string
	for _, name := range i.rules.DataSourceNames() {
		if _, ok := i.sources[name]; ok {
			ret = append(ret, name)
		}
	}
	return ret
}

func (i *Instance) Initialized() bool {
	return i.initialized.Load()
}

// Initialize marks metadata as loaded. Returns the previous state.
func (i *Instance) Initialize() bool {
	return i.initialized.Swap(true)
}

// NewSession opens a client session bound to this instance.
func (i *Instance) NewSession() *session.ConnectionSession {
	s := session.NewConnectionSession(i.cfg.DatabaseName, i.dialect, i.txType, i)
	dslog.Zero.Debug().Str("session", s.ID()).Msg("instance: new session")
	return s
}

// Close releases data source pools, the metadata store and the tracer.
func (i *Instance) Close() error {
	err := closeSources(i.sources)
	err = multierr.Append(err, closeQDB(i.db))
	if i.tracer != nil {
		err = multierr.Append(err, i.tracer.Close())
	}
	return err
}

func closeSources(sources poolmgr.DataSources) error {
	var err error
	for _, ds := range sources {
		err = multierr.Append(err, ds.Close())
	}
	return err
}

func closeQDB(db qdb.QDB) error {
	if c, ok := db.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
