package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresDB       string `mapstructure:"POSTGRES_DB"`
	PostgresHost     string `mapstructure:"POSTGRES_HOST"`
	PostgresPort     string `mapstructure:"POSTGRES_PORT"`

	RedisHost string `mapstructure:"REDIS_HOST"`
	RedisPort string `mapstructure:"REDIS_PORT"`

	BackendPort    string `mapstructure:"BACKEND_PORT"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	JWTExpiryHours int    `mapstructure:"JWT_EXPIRY_HOURS"`

	// SpeciesTablePath points at the species coefficient table loaded
	// once into the read-mostly in-process cache at startup (spec §5
	// "Species table is read-mostly in-process cache, populated at
	// startup"). Replacing it requires a process restart.
	SpeciesTablePath string `mapstructure:"SPECIES_TABLE_PATH"`

	// DefaultGridSpacingM is the retention-grid cell size (metres) used
	// when an Inventory upload does not specify one.
	DefaultGridSpacingM float64 `mapstructure:"DEFAULT_GRID_SPACING_M"`

	// ProximityDistanceM is the search radius C8 passes to every
	// feature-class query.
	ProximityDistanceM float64 `mapstructure:"PROXIMITY_DISTANCE_M"`

	// RequestDeadlineSeconds bounds a single Calculation's processing
	// time (spec §5 "Cancellation and timeouts").
	RequestDeadlineSeconds int `mapstructure:"REQUEST_DEADLINE_SECONDS"`

	DBMaxConns int32 `mapstructure:"DB_MAX_CONNS"`
	DBMinConns int32 `mapstructure:"DB_MIN_CONNS"`
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDB,
	)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func Load() *Config {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	// Explicitly bind environment variables
	viper.BindEnv("POSTGRES_USER")
	viper.BindEnv("POSTGRES_PASSWORD")
	viper.BindEnv("POSTGRES_DB")
	viper.BindEnv("POSTGRES_HOST")
	viper.BindEnv("POSTGRES_PORT")
	viper.BindEnv("REDIS_HOST")
	viper.BindEnv("REDIS_PORT")
	viper.BindEnv("BACKEND_PORT")
	viper.BindEnv("JWT_SECRET")
	viper.BindEnv("JWT_EXPIRY_HOURS")
	viper.BindEnv("SPECIES_TABLE_PATH")
	viper.BindEnv("DEFAULT_GRID_SPACING_M")
	viper.BindEnv("PROXIMITY_DISTANCE_M")
	viper.BindEnv("REQUEST_DEADLINE_SECONDS")
	viper.BindEnv("DB_MAX_CONNS")
	viper.BindEnv("DB_MIN_CONNS")

	// Defaults
	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", "5432")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("BACKEND_PORT", "8080")
	viper.SetDefault("JWT_EXPIRY_HOURS", 24)
	viper.SetDefault("SPECIES_TABLE_PATH", "species_table.csv")
	viper.SetDefault("DEFAULT_GRID_SPACING_M", 20.0)
	viper.SetDefault("PROXIMITY_DISTANCE_M", 5000.0)
	viper.SetDefault("REQUEST_DEADLINE_SECONDS", 120)
	viper.SetDefault("DB_MAX_CONNS", 20)
	viper.SetDefault("DB_MIN_CONNS", 2)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: no .env file found, using environment variables")
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		log.Fatalf("Failed to unmarshal config: %v", err)
	}

	return cfg
}
