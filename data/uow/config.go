package uow

import (
	"fmt"

	"gochen-data/config"
	"gochen-data/data/db/basic"
	"gochen-data/data/dbcontext"
	"gochen-data/data/dbcontext/memory"
	"gochen-data/data/dbcontext/sqlctx"
	"gochen-data/logging"
)

// FactoriesFromConfig 为配置中的每个数据源生成上下文工厂。
// sql 引擎的上下文拥有自己打开的数据库连接；memory 引擎按 Store 名称使用进程内共享存储。
// logger 为 nil 时上下文使用各自的默认日志
func FactoriesFromConfig(cfg *config.Config, logger logging.Logger) []Option {
	if cfg == nil {
		return nil
	}
	var memOpts []memory.Option
	var sqlOpts []sqlctx.Option
	if logger != nil {
		memOpts = append(memOpts, memory.WithLogger(logger))
		sqlOpts = append(sqlOpts, sqlctx.WithLogger(logger))
	}
	opts := make([]Option, 0, len(cfg.Contexts))
	for _, name := range cfg.Names() {
		ds := cfg.Contexts[name]
		var f Factory
		switch ds.Engine {
		case config.EngineMemory:
			var store *memory.Store
			if ds.Store != "" {
				store = memory.Shared(ds.Store)
			}
			f = func() (dbcontext.IContext, error) {
				return memory.New(name, store, memOpts...), nil
			}
		default:
			f = func() (dbcontext.IContext, error) {
				database, err := basic.New(ds.DBConfig)
				if err != nil {
					return nil, fmt.Errorf("open %s database for context %s: %w", ds.Driver, name, err)
				}
				return sqlctx.New(name, database, append([]sqlctx.Option{sqlctx.OwnDatabase()}, sqlOpts...)...), nil
			}
		}
		opts = append(opts, WithFactory(name, f))
	}
	return opts
}
