// Package config assembles the process configuration from flags, .env file,
// and environment variables, in that order of rising precedence except
// flags always win last. Grounded on the teacher's cmd/app.go flag set,
// extended with viper/godotenv (as shell-talk-server's internal/config
// does for its own env surface) to cover spec.md §6's full environment
// variable list, which is too large for bare os.Getenv calls without
// repeating the same default-and-parse dance nine times over.
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved process configuration.
type Config struct {
	// listener addresses and log level from CLI flags; APIListenAddr falls
	// back to PORT when --api-listen-addr is not passed
	WSListenAddr   string
	APIListenAddr  string
	LogLevel       string

	// spec.md §6 environment surface
	Port                  int
	UseHTTPS              bool
	SSLCertPath           string
	SSLKeyPath            string
	TURNServerURL         string
	TURNServerUsername    string
	TURNServerCredential  string
	MaxLatentRooms        int
	LatentRoomMaxAgeHours int

	StaticDir      string
	LatentStorePath string
	DataDir        string

	RoomMaxAge          time.Duration
	RoomCleanupInterval time.Duration
}

// Load parses CLI flags (mirroring the teacher's pflag set), then layers a
// .env file and the OS environment on top via viper, falling back to
// hardcoded defaults when nothing else is set.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}

	fs := pflag.NewFlagSet("meetsignal", pflag.ContinueOnError)
	var (
		wsListenAddr  = fs.StringP("ws-listen-addr", "w", ":8888", "websocket signaling listen address")
		apiListenAddr = fs.StringP("api-listen-addr", "a", ":8080", "api listen address")
		logLevel      = fs.StringP("log-level", "l", "info", "log level")
		staticDir     = fs.String("static-dir", "", "directory of static assets to serve at /, empty disables")
		dataDir       = fs.String("data-dir", "data", "directory for persisted state")
	)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetDefault("PORT", 8080)
	v.SetDefault("USE_HTTPS", false)
	v.SetDefault("SSL_CERT_PATH", "")
	v.SetDefault("SSL_KEY_PATH", "")
	v.SetDefault("TURN_SERVER_URL", "")
	v.SetDefault("TURN_SERVER_USERNAME", "")
	v.SetDefault("TURN_SERVER_CREDENTIAL", "")
	v.SetDefault("MAX_LATENT_ROOMS", 10)
	v.SetDefault("LATENT_ROOM_MAX_AGE_HOURS", 24)

	// PORT is the env var a deployer actually sets (spec.md §6); it governs
	// the HTTP surface's listen address, the port USE_HTTPS/SSL_CERT_PATH/
	// SSL_KEY_PATH would terminate TLS on. The --api-listen-addr flag stays
	// available for overriding the full address (host and port both); it
	// wins over PORT when explicitly passed.
	apiAddr := *apiListenAddr
	if !fs.Changed("api-listen-addr") {
		apiAddr = fmt.Sprintf(":%d", v.GetInt("PORT"))
	}

	cfg := &Config{
		WSListenAddr:  *wsListenAddr,
		APIListenAddr: apiAddr,
		LogLevel:      *logLevel,
		StaticDir:     *staticDir,
		DataDir:       *dataDir,

		Port:                  v.GetInt("PORT"),
		UseHTTPS:              v.GetBool("USE_HTTPS"),
		SSLCertPath:           v.GetString("SSL_CERT_PATH"),
		SSLKeyPath:            v.GetString("SSL_KEY_PATH"),
		TURNServerURL:         v.GetString("TURN_SERVER_URL"),
		TURNServerUsername:    v.GetString("TURN_SERVER_USERNAME"),
		TURNServerCredential:  v.GetString("TURN_SERVER_CREDENTIAL"),
		MaxLatentRooms:        v.GetInt("MAX_LATENT_ROOMS"),
		LatentRoomMaxAgeHours: v.GetInt("LATENT_ROOM_MAX_AGE_HOURS"),

		RoomMaxAge:          time.Hour,
		RoomCleanupInterval: 30 * time.Minute,
	}
	cfg.LatentStorePath = strings.TrimSuffix(cfg.DataDir, "/") + "/rooms.json"

	return cfg, nil
}

// LatentRoomMaxAge converts the configured hour count to a duration for
// internal/latent and internal/janitor.
func (c *Config) LatentRoomMaxAge() time.Duration {
	return time.Duration(c.LatentRoomMaxAgeHours) * time.Hour
}

// ParsedLogLevel resolves the configured log level string, defaulting to
// info on a bad value rather than failing startup.
func (c *Config) ParsedLogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
