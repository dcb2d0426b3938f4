package cli

import (
	"context"
	"io"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mongowiz/src/config"
	"mongowiz/src/logging"
	"mongowiz/src/mongoapi"
	"mongowiz/src/safety"
)

// addGlobalFlags adds the persistent flags shared by every command.
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "Path to the YAML config file (default: user config dir)")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error (overrides config)")
	cmd.PersistentFlags().Bool("dry-run", false, "Show planned actions without making changes")
	cmd.PersistentFlags().BoolP("yes", "y", false, "Assume 'yes' to prompts and run non-interactively")
}

// getSafetyOptions reads global flags into a safety.Options struct.
func getSafetyOptions(cmd *cobra.Command) safety.Options {
	dry, _ := cmd.Root().PersistentFlags().GetBool("dry-run")
	yes, _ := cmd.Root().PersistentFlags().GetBool("yes")
	return safety.Options{DryRun: dry, Yes: yes}
}

// connect opens the MongoDB connection. Tests replace it with a fake.
var connect = func(ctx context.Context, uri string, timeout time.Duration) (mongoapi.Client, error) {
	return mongoapi.Connect(ctx, uri, timeout)
}

// env is what a command needs from config and global flags.
type env struct {
	cfg    config.Config
	log    *logrus.Logger
	safety safety.Options
}

func loadEnv(cmd *cobra.Command, stderr io.Writer) (*env, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(path, "")
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Root().PersistentFlags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	log, err := logging.New(cfg.LogLevel, stderr)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, safety: getSafetyOptions(cmd)}, nil
}

// dial connects using the configured URL and returns the client together
// with the redacted URL for manifests.
func (e *env) dial(ctx context.Context) (mongoapi.Client, string, error) {
	source := mongoapi.Redact(e.cfg.MongoDBURL)
	e.log.WithField("url", source).Debug("connecting")
	client, err := connect(ctx, e.cfg.MongoDBURL, e.cfg.ConnectTimeout)
	if err != nil {
		return nil, "", errors.Trace(err)
	}
	return client, source, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func closeClient(client mongoapi.Client, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Close(ctx); err != nil {
		log.WithError(err).Debug("disconnect failed")
	}
}
