package core

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to any of the
// server components.
type Config struct {
	// Hostname or IP address on which the server will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// Maximum number of concurrent connections the server will allow.
	MaxConnections int `mapstructure:"max_connections"`
	// Full path to file to which logs will be written. Blank will write to stdout.
	LogFilePath string `mapstructure:"log_file_path"`
	// Minimum level of a log required to be written. Options: debug, info, warn, error
	LogLevel string `mapstructure:"log_level"`

	Server struct {
		// Name of the server as reported to clients and query responses.
		Name string `mapstructure:"name"`
		// Human readable description of the server.
		Description string `mapstructure:"description"`
		// Message displayed to users once they have joined.
		WelcomeMessage string `mapstructure:"welcome_message"`
		// Password users must supply in order to join. Blank disables the check.
		Password string `mapstructure:"password"`
		// Whether users may join without logging into a registered account.
		AllowGuests bool `mapstructure:"allow_guests"`
	} `mapstructure:"server"`

	Audio struct {
		// Lower bound for the bitrate of any registered audio source.
		MinimumBitrate int `mapstructure:"minimum_bitrate"`
		// Upper bound for the bitrate of any registered audio source.
		MaximumBitrate int `mapstructure:"maximum_bitrate"`
		// Bitrate assigned to sources that do not request one.
		DefaultBitrate int `mapstructure:"default_bitrate"`
	} `mapstructure:"audio"`

	Database struct {
		// Database engine backing the providers. Options: sqlite, postgres
		Engine string `mapstructure:"engine"`
		// Path to the sqlite database file (sqlite engine only).
		Filename string `mapstructure:"filename"`
		// Hostname of the Postgres database instance.
		Host string `mapstructure:"host"`
		// Port on db_host on which the Postgres instance is accepting connections.
		Port int `mapstructure:"port"`
		// Name of the database in Postgres for the server.
		Name string `mapstructure:"name"`
		// Username and password of a user with full RW privileges to ${db_name}.
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		// Set to verify-full if the Postgres instance supports SSL.
		SSLMode string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Debugging struct {
		// Enable extra info-providing mechanisms for the server.
		PprofEnabled bool `mapstructure:"pprof_enabled"`
		// Port on which a pprof server will be started if debug mode is enabled.
		PprofPort int `mapstructure:"pprof_port"`
		// Log dispatched messages to the logger.
		MessageLoggingEnabled bool `mapstructure:"message_logging_enabled"`
		// Enable database-level query logging.
		DatabaseLoggingEnabled bool `mapstructure:"database_logging_enabled"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "GABLARSKI"

// LoadConfig initializes Viper with the contents of the config file under configPath.
func LoadConfig(configPath string) *Config {
	viper.AddConfigPath(configPath)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix(envVarPrefix)
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if errors.Is(err, viper.ConfigFileNotFoundError{}) {
			fmt.Printf("error reading config file: no config file in path %s", configPath)
		} else {
			fmt.Printf("error reading config file: %v", err)
		}
		os.Exit(1)
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, database.host can be set using: <envVarPrefix>_DATABASE_HOST
	for _, k := range viper.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := viper.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			fmt.Printf("error binding %s to %s", k, envVarPrefix+"_"+envVar)
			os.Exit(1)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		fmt.Printf("error unmarshaling config object: %v", err)
		os.Exit(1)
	}
	return config
}

func setDefaults() {
	viper.SetDefault("max_connections", 128)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server.name", "Gablarski Server")
	viper.SetDefault("server.allow_guests", true)
	viper.SetDefault("audio.minimum_bitrate", 16000)
	viper.SetDefault("audio.maximum_bitrate", 96000)
	viper.SetDefault("audio.default_bitrate", 48000)
	viper.SetDefault("database.engine", "sqlite")
	viper.SetDefault("database.filename", "gablarski.db")
}

const databaseURITemplate = "host=%s port=%d dbname=%s user=%s password=%s sslmode=%s"

// DatabaseURL returns a database URL generated from the provided config values.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		databaseURITemplate,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Username,
		c.Database.Password,
		c.Database.SSLMode,
	)
}
