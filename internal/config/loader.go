package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/merchflow/harvester/internal/build"
	"github.com/spf13/viper"
)

// Definition is the raw configuration shape unmarshalled by viper before it
// is resolved into a Config.
type Definition struct {
	Debug     bool   `mapstructure:"debug"`
	Quiet     bool   `mapstructure:"quiet"`
	LogFormat string `mapstructure:"logFormat"`
	Timezone  string `mapstructure:"timezone"`

	Database struct {
		DSN      string `mapstructure:"dsn"`
		MaxConns int32  `mapstructure:"maxConns"`
	} `mapstructure:"database"`

	Fetch struct {
		Workers      int           `mapstructure:"workers"`
		MaxRetries   int           `mapstructure:"maxRetries"`
		RetryDelayMs int           `mapstructure:"retryDelayMs"`
		Timeout      time.Duration `mapstructure:"timeout"`
	} `mapstructure:"fetch"`

	Paths struct {
		OutputDir      string `mapstructure:"outputDir"`
		CheckpointDB   string `mapstructure:"checkpointDb"`
		WarehousesFile string `mapstructure:"warehousesFile"`
	} `mapstructure:"paths"`

	Harvest struct {
		PagesPerCatalog  int `mapstructure:"pagesPerCatalog"`
		ProductsPerPage  int `mapstructure:"productsPerPage"`
		PositionPlaceCap int `mapstructure:"positionPlaceCap"`
		QueryBatchSize   int `mapstructure:"queryBatchSize"`
		RetentionDays    int `mapstructure:"retentionDays"`
	} `mapstructure:"harvest"`

	Remote Remote `mapstructure:"remote"`
}

// Loader reads and merges configuration from the config file, environment
// and defaults. The mutex keeps viper's global state safe across callers.
type Loader struct {
	lock       sync.Mutex
	configFile string
}

// Option configures a Loader.
type Option func(*Loader)

// WithConfigFile sets an explicit configuration file path.
func WithConfigFile(configFile string) Option {
	return func(l *Loader) {
		l.configFile = configFile
	}
}

// Load builds a validated Config from defaults, the optional config file and
// environment overrides.
func Load(opts ...Option) (*Config, error) {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	return l.Load()
}

// Load reads the configuration.
func (l *Loader) Load() (*Config, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.setDefaults()

	viper.SetEnvPrefix(strings.ToUpper(build.AppName))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if l.configFile != "" {
		viper.SetConfigFile(l.configFile)
	} else {
		viper.SetConfigName(build.AppName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/" + build.AppName)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var def Definition
	if err := viper.Unmarshal(&def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg := buildConfig(def)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) setDefaults() {
	viper.SetDefault("logFormat", "text")
	viper.SetDefault("timezone", "UTC")

	viper.SetDefault("database.maxConns", 4)

	viper.SetDefault("fetch.workers", 64)
	viper.SetDefault("fetch.maxRetries", 5)
	viper.SetDefault("fetch.retryDelayMs", 3000)
	viper.SetDefault("fetch.timeout", time.Minute)

	viper.SetDefault("paths.outputDir", "output")
	viper.SetDefault("paths.checkpointDb", "checkpoints.db")
	viper.SetDefault("paths.warehousesFile", "warehouses.json")

	viper.SetDefault("harvest.pagesPerCatalog", 17)
	viper.SetDefault("harvest.productsPerPage", 300)
	viper.SetDefault("harvest.positionPlaceCap", 5000)
	viper.SetDefault("harvest.queryBatchSize", 1000000)
	viper.SetDefault("harvest.retentionDays", 30)

	viper.SetDefault("remote.categoriesUrl", "https://menu.example.com/main-menu.json")
	viper.SetDefault("remote.catalogUrl", "https://search.example.com/exactmatch/v4/search?resultset=identity&query=%query%")
	viper.SetDefault("remote.categoryPageUrl", "https://catalog.example.com/catalog/%shard%/listing?limit=300&%query%&page=%page%")
	viper.SetDefault("remote.queryPageUrl", "https://search.example.com/%shard%/listing?limit=300&%query%&page=%page%")
	viper.SetDefault("remote.categoryQueriesUrl", "https://queries.example.com/catalog?url=%url%")
	viper.SetDefault("remote.similarQueriesUrl", "https://queries.example.com/api/v2/search/query?query=%query%")
	viper.SetDefault("remote.sellerUrl", "https://basket-%basket%.example.com/vol%vol%/part%part%/%sku%/info/sellers.json")
	viper.SetDefault("remote.stocksUrl", "https://card.example.com/cards/detail?nm=%skus%")
	viper.SetDefault("remote.productImageUrl", "https://basket-%basket%.example.com/vol%vol%/part%part%/%sku%/images/big/1.jpg")
	viper.SetDefault("remote.brandImageUrl", "https://images.example.com/brands/small/%id%.jpg")
	viper.SetDefault("remote.sellerImageUrl", "https://images.example.com/shops/%id%_logo.jpg")
}

func buildConfig(def Definition) *Config {
	cfg := &Config{
		Debug:     def.Debug,
		Quiet:     def.Quiet,
		LogFormat: def.LogFormat,
		Timezone:  def.Timezone,
		Database: Database{
			DSN:      def.Database.DSN,
			MaxConns: def.Database.MaxConns,
		},
		Fetch: Fetch{
			Workers:    def.Fetch.Workers,
			MaxRetries: def.Fetch.MaxRetries,
			RetryDelay: time.Duration(def.Fetch.RetryDelayMs) * time.Millisecond,
			Timeout:    def.Fetch.Timeout,
		},
		Paths: Paths{
			OutputDir:      def.Paths.OutputDir,
			CheckpointDB:   def.Paths.CheckpointDB,
			WarehousesFile: def.Paths.WarehousesFile,
		},
		Harvest: Harvest{
			PagesPerCatalog:  def.Harvest.PagesPerCatalog,
			ProductsPerPage:  def.Harvest.ProductsPerPage,
			PositionPlaceCap: def.Harvest.PositionPlaceCap,
			QueryBatchSize:   def.Harvest.QueryBatchSize,
			RetentionDays:    def.Harvest.RetentionDays,
		},
		Remote: def.Remote,
	}
	return cfg
}
