package cli

import (
	"errors"
	"os"
	"strings"

	"trivia-quiz-service/internal/config"
	"trivia-quiz-service/internal/logger"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "quiz-service",
		Short:        "Trivia quiz service with timed scoring and a live leaderboard",
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "config/config.yaml", "path to YAML config")
	flags.String("port", "", "port to listen on (overrides server.port)")
	flags.String("postgres-url", "", "Postgres DSN (overrides postgres.url)")
	flags.String("redis-addr", "", "Redis address (overrides redis.addr)")
	flags.String("jwt-secret", "", "HS256 secret for bearer tokens (overrides auth.jwtSecret)")
	flags.String("log-level", "", "log level (overrides log.level)")

	cmd.AddCommand(NewStartCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	return cmd
}

// viperForCmd binds the command's flags and QUIZ_* environment variables, so
// QUIZ_POSTGRES_URL fills --postgres-url when the flag is not given.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig reads the YAML file named by --config and applies flag and environment
// overrides on top. A missing file is not an error: the zero config runs in memory.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v := viperForCmd(cmd)

	path := v.GetString("config")
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Msg("config file not found, using defaults")
		cfg, err = config.Config{}, nil
	}
	if err != nil {
		return cfg, err
	}

	if s := v.GetString("port"); s != "" {
		cfg.Server.Port = s
	}
	if s := v.GetString("postgres-url"); s != "" {
		cfg.Postgres.URL = s
	}
	if s := v.GetString("redis-addr"); s != "" {
		cfg.Redis.Addr = s
	}
	if s := v.GetString("jwt-secret"); s != "" {
		cfg.Auth.JWTSecret = s
	}
	if s := v.GetString("log-level"); s != "" {
		cfg.Log.Level = s
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}
