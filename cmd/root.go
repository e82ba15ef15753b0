package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/lantern/client"
	"github.com/luma/lantern/cmd/gen"
	"github.com/luma/lantern/endpoint"
	"github.com/luma/lantern/internal/env"
)

var (
	// Path to an optional YAML config file
	configPath string

	// Flags that override the config when set
	servers  []string
	name     string
	verbose  bool
	logLevel string
)

var RootCmd = &cobra.Command{
	Use:   "lantern",
	Short: "Publish, subscribe and make requests on a NATS style message bus",
	Long: `Publish, subscribe and make requests on a NATS style message bus

Servers and client options are read from LANTERN_* environment variables, an
optional .env.local file and an optional YAML file given with --config. Flags
override all of them.`,
	SilenceUsage: true,
}

func init() {
	flags := RootCmd.PersistentFlags()

	flags.StringVarP(&configPath, "config", "c", "", "YAML config file")
	flags.StringSliceVarP(&servers, "servers", "s", nil, "Comma separated servers to try in order")
	flags.StringVar(&name, "name", "", "Client name sent to the server")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Ask the server to acknowledge every command")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	RootCmd.AddCommand(
		PubCmd,
		SubCmd,
		RequestCmd,
		ReplyCmd,
		InfoCmd,
		ServeCmd,
		VersionCmd,
		gen.RootCmd,
	)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the layered config and applies any flags that were set.
func loadConfig(cmd *cobra.Command) (*env.Config, *zap.Logger, error) {
	conf, err := env.LoadConfig(cmd.Context(), configPath)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()

	if flags.Changed("servers") {
		conf.Servers = servers
	}

	if flags.Changed("name") {
		conf.Name = name
	}

	if flags.Changed("verbose") {
		conf.Verbose = verbose
	}

	if flags.Changed("log-level") {
		conf.LogLevel = logLevel
	}

	log, err := env.MakeLogger(conf.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	return conf, log, nil
}

func clientOptions(conf *env.Config, log *zap.Logger) (client.Options, error) {
	dir, err := endpoint.ParseDirectory(conf.Servers, conf.Randomize)
	if err != nil {
		return client.Options{}, err
	}

	opts := client.DefaultOptions()
	opts.Endpoints = dir
	opts.Name = conf.Name
	opts.Verbose = conf.Verbose
	opts.Headers = conf.Headers
	opts.NoResponders = conf.NoResponders && conf.Headers
	opts.Timeout = conf.Timeout
	opts.ReadTimeout = conf.ReadTimeout
	opts.Log = log

	return opts, nil
}

// connect builds a client from the command's config and completes the
// handshake. The caller must Close it.
func connect(cmd *cobra.Command) (*client.Conn, *zap.Logger, error) {
	conf, log, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	opts, err := clientOptions(conf, log)
	if err != nil {
		return nil, nil, err
	}

	conn, err := client.New(opts)
	if err != nil {
		return nil, nil, err
	}

	if err := conn.Connect(cmd.Context()); err != nil {
		return nil, nil, fmt.Errorf("Failed to connect: %w", err)
	}

	return conn, log, nil
}

func closeConn(conn *client.Conn, log *zap.Logger) {
	if err := conn.Close(); err != nil {
		log.Warn("Connection did not close cleanly", zap.Error(err))
	}
}
