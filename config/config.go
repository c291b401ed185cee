// Package config loads number-pool settings from a YAML profile plus
// environment overrides, following the same viper-based pattern the
// rest of this module's ancestry used for its own app settings.
package config

import (
	"log"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

const (
	cmdDir    = "cmd"
	configDir = "configs"
)

// Settings holds every tunable of the number-pool engine: store
// connections, the constants from the spec's "Constants (defaults)"
// table, and the optional hardening/enrichment toggles this rewrite
// adds on top of them.
type Settings struct {
	Debug bool `mapstructure:"debug"`

	KVAddr     string `mapstructure:"kv_addr"`
	KVPassword string `mapstructure:"kv_password"`
	KVDB       int    `mapstructure:"kv_db"`

	CatalogUser     string `mapstructure:"catalog_user"`
	CatalogPassword string `mapstructure:"catalog_password"`
	CatalogAddr     string `mapstructure:"catalog_addr"`
	CatalogDBName   string `mapstructure:"catalog_db_name"`

	ConnectTries      int           `mapstructure:"connect_tries"`
	ConnectRetryPause time.Duration `mapstructure:"connect_retry_pause"`

	PoolCacheExpiration   time.Duration `mapstructure:"pool_cache_expiration"`
	MaxRenewalAge         time.Duration `mapstructure:"max_renewal_age"`
	RouteCacheExpiration  time.Duration `mapstructure:"route_cache_expiration"`
	UserContextExpiration time.Duration `mapstructure:"user_context_expiration"`

	LockWaitTimeout time.Duration `mapstructure:"lock_wait_timeout"`
	LockHoldTimeout time.Duration `mapstructure:"lock_hold_timeout"`
	InitLockTimeout time.Duration `mapstructure:"init_lock_timeout"`

	IgnoredCallerIDs []string `mapstructure:"ignored_caller_ids"`

	UserContextZipKey string `mapstructure:"user_context_zip_key"`
	PoolContextZipKey string `mapstructure:"pool_context_zip_key"`

	CriteriaAreaCodesPath string `mapstructure:"criteria_area_codes_path"`
	GeoTablePath          string `mapstructure:"geo_table_path"`

	SessionSourceParam  string   `mapstructure:"session_source_param"`
	LocPhysicalURLParam string   `mapstructure:"loc_physical_url_param"`
	LocInterestURLParam string   `mapstructure:"loc_interest_url_param"`
	BingSourceIDs       []string `mapstructure:"bing_source_ids"`

	AdminKey string `mapstructure:"admin_key"`

	CookieEncryptionKey string `mapstructure:"cookie_encryption_key"`
	CookieEncryptionIV  string `mapstructure:"cookie_encryption_iv"`

	CompressionThresholdBytes int    `mapstructure:"compression_threshold_bytes"`
	CompressionAlgorithm      string `mapstructure:"compression_algorithm"`

	PopulateLastCalledContext bool `mapstructure:"populate_last_called_context"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("kv_addr", "localhost:6379")
	v.SetDefault("kv_db", 0)
	v.SetDefault("connect_tries", 5)
	v.SetDefault("connect_retry_pause", time.Second)
	v.SetDefault("pool_cache_expiration", 6*time.Minute)
	v.SetDefault("max_renewal_age", 7*24*time.Hour)
	v.SetDefault("route_cache_expiration", 30*24*time.Hour)
	v.SetDefault("user_context_expiration", 14*24*time.Hour)
	v.SetDefault("lock_wait_timeout", 5*time.Second)
	v.SetDefault("lock_hold_timeout", 5*time.Second)
	v.SetDefault("init_lock_timeout", 2*time.Second)
	v.SetDefault("ignored_caller_ids", []string{"anonymous", "266696687"})
	v.SetDefault("user_context_zip_key", "zip")
	v.SetDefault("pool_context_zip_key", "zip")
	v.SetDefault("compression_threshold_bytes", 2048)
	v.SetDefault("compression_algorithm", "none")
	v.SetDefault("populate_last_called_context", false)
}

// Defaults returns a Settings populated only from the defaults above,
// with no file or environment lookups. Tests use this to avoid
// depending on a configs/ directory existing on disk.
func Defaults() *Settings {
	v := viper.New()
	setDefaults(v)
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		// Unmarshalling a map of our own defaults should never fail.
		panic(err)
	}
	return &s
}

// Read loads settings for the active APP_ENV profile, locating the
// sibling configs/ directory relative to the caller's cmd/ package.
func Read(cfg *Settings) {
	appEnv, err := GetAppEnv()
	if err != nil {
		log.Fatalf("get appEnv error: %s\n", err)
		return
	}
	if err := read(cfg, appEnv, getConfigDirPath(2)); err != nil {
		log.Fatalf("get config error: %s\n", err)
		return
	}
}

// ReadWithConfigDirPath loads settings for the active APP_ENV profile
// from an explicit configs directory.
func ReadWithConfigDirPath(cfg *Settings, cfgDirPath string) {
	appEnv, err := GetAppEnv()
	if err != nil {
		log.Fatalf("get appEnv error: %s\n", err)
		return
	}
	if err := read(cfg, appEnv, cfgDirPath); err != nil {
		log.Fatalf("get config error: %s\n", err)
		return
	}
}

func read(cfg *Settings, cfgName string, cfgDirPath string) error {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigName(cfgName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cfgDirPath)

	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read cfg error")
	}
	if err := v.Unmarshal(cfg); err != nil {
		return errors.Wrapf(err, "parse cfg error")
	}
	return nil
}

func getConfigDirPath(skip int) string {
	_, file, _, _ := runtime.Caller(skip)
	dirList := strings.Split(filepath.ToSlash(filepath.Dir(file)), "/")
	dirPath := "./"

	for i, dir := range dirList {
		if dir == cmdDir {
			dirPath = filepath.Join(configDir, filepath.Join(dirList[i+1:]...))
			break
		}
	}
	return dirPath
}
