package serve

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdUtil "github.com/keyvaldb/keyval/cmd/util"
	"github.com/keyvaldb/keyval/lib/backend/sqlite"
	"github.com/keyvaldb/keyval/lib/fts"
	"github.com/keyvaldb/keyval/lib/kv"
	"github.com/keyvaldb/keyval/lib/metrics"
	"github.com/keyvaldb/keyval/rpc/common"
	"github.com/keyvaldb/keyval/rpc/server"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the keyval server",
		Long:    `Start the keyval server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is KEYVAL_<flag> (e.g. KEYVAL_DB_PATH=/var/lib/keyval/db.sqlite). Full-text search requires SQLite's FTS5 extension, so the binary must be built with 'go build -tags sqlite_fts5'; the server refuses to start without it.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitEnvConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the HTTP API will listen (e.g. localhost:8080)"))

	key = "db-path"
	ServeCmd.PersistentFlags().String(key, "keyval.db", cmdUtil.WrapString("Path to the SQLite database file. Use ':memory:' for an ephemeral in-memory database"))

	key = "metrics-flush-interval"
	ServeCmd.PersistentFlags().Duration(key, metrics.DefaultFlushInterval, cmdUtil.WrapString("Interval at which operation metrics are persisted to the database. Set to 0 to disable metrics persistence"))

	key = "max-key-depth"
	ServeCmd.PersistentFlags().Int(key, common.DefaultLimits().MaxKeyDepth, cmdUtil.WrapString("Maximum number of parts in one key"))

	key = "max-key-size"
	ServeCmd.PersistentFlags().Int(key, common.DefaultLimits().MaxKeySize, cmdUtil.WrapString("Maximum encoded key size in bytes"))

	key = "max-value-size"
	ServeCmd.PersistentFlags().Int(key, common.DefaultLimits().MaxValueSize, cmdUtil.WrapString("Maximum serialized value size in bytes"))

	key = "max-mutations"
	ServeCmd.PersistentFlags().Int(key, common.DefaultLimits().MaxMutations, cmdUtil.WrapString("Maximum number of checks plus mutations in one atomic commit"))

	key = "max-search-limit"
	ServeCmd.PersistentFlags().Int(key, common.DefaultLimits().MaxSearchLimit, cmdUtil.WrapString("Upper bound for the limit of a search request"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.DBPath = viper.GetString("db-path")
	serveCmdConfig.MetricsFlushInterval = viper.GetDuration("metrics-flush-interval")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	serveCmdConfig.Limits = common.Limits{
		MaxKeyDepth:    viper.GetInt("max-key-depth"),
		MaxKeySize:     viper.GetInt("max-key-size"),
		MaxValueSize:   viper.GetInt("max-value-size"),
		MaxMutations:   viper.GetInt("max-mutations"),
		MaxSearchLimit: viper.GetInt("max-search-limit"),
	}

	return nil
}

// run starts the keyval server
func run(_ *cobra.Command, _ []string) error {
	logger, err := common.NewLogger(serveCmdConfig.LogLevel)
	if err != nil {
		return err
	}

	// open the storage backend
	db, err := sqlite.New(serveCmdConfig.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	// set up the metrics collector (persistence optional)
	metricOpts := []metrics.Option{metrics.WithLogger(logger)}
	if serveCmdConfig.MetricsFlushInterval > 0 {
		metricOpts = append(metricOpts,
			metrics.WithBackend(db),
			metrics.WithFlushInterval(serveCmdConfig.MetricsFlushInterval),
		)
	}
	collector := metrics.New(metricOpts...)
	defer func() {
		// final flush of pending counters before the process exits
		_ = collector.Close()
	}()

	// set up the engine
	store := kv.NewStore(db,
		kv.WithMetrics(collector),
		kv.WithLogger(logger),
	)

	indexes := fts.NewManager(db, store, fts.WithLogger(logger))
	if !indexes.FTS5Available() {
		return fmt.Errorf("this binary was built without FTS5 support, rebuild with 'go build -tags sqlite_fts5'")
	}
	if err := indexes.Init(); err != nil {
		return err
	}
	unsubscribe := indexes.Bind(store)
	defer unsubscribe()

	return server.NewServer(*serveCmdConfig, store, indexes, logger).Serve()
}
