// Package config 通过 viper 读取数据层配置：具名持久化上下文与日志。
//
// 配置文件为 YAML，环境变量以 GOCHEN_ 为前缀覆盖文件中已有的键，
// 如 GOCHEN_CONTEXTS_ORDERS_DSN 覆盖 contexts.orders.dsn。
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"

	core "gochen-data/data/db"
	"gochen-data/logging"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "GOCHEN"

const (
	EngineSQL    = "sql"
	EngineMemory = "memory"
)

// DataSource 单个持久化上下文的数据源
type DataSource struct {
	// Engine sql（默认）或 memory
	Engine string `mapstructure:"engine"`
	// Store memory 引擎下共享存储的名称，同名上下文共享数据；为空时使用私有存储
	Store string `mapstructure:"store"`

	core.DBConfig `mapstructure:",squash"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Logger 按配置构建 zap 日志
func (c LogConfig) Logger() logging.Logger {
	return logging.NewZapLogger(logging.BuildZap(logging.ZapConfig{Level: c.Level, Format: c.Format}))
}

// Config 数据层配置
type Config struct {
	Contexts map[string]DataSource `mapstructure:"contexts"`
	Log      LogConfig             `mapstructure:"log"`
}

// Names 按字典序返回上下文名称
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load 读取配置文件；path 为空时只使用默认值与环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	for name, ds := range cfg.Contexts {
		if ds.Engine == "" {
			ds.Engine = EngineSQL
		}
		cfg.Contexts[name] = ds
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func validate(cfg *Config) error {
	for _, name := range cfg.Names() {
		ds := cfg.Contexts[name]
		switch ds.Engine {
		case EngineMemory:
		case EngineSQL:
			if ds.Driver == "" {
				return fmt.Errorf("context %s: driver is required for sql engine", name)
			}
		default:
			return fmt.Errorf("context %s: unknown engine %q", name, ds.Engine)
		}
	}
	return nil
}
