package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix env prefix for viper
const EnvPrefix = "GOAPP"

// runtime environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// DatabaseConfig progress and user storage
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" json:"driver" validate:"oneof=mysql postgres"`
	Host     string `mapstructure:"host" json:"host" validate:"required"`
	Port     int    `mapstructure:"port" json:"port"`
	Protocol string `mapstructure:"protocol" json:"protocol" validate:"omitempty,oneof=tcp udp"` // mysql only
	User     string `mapstructure:"username" json:"username" validate:"required"`
	Password string `mapstructure:"password" json:"-" validate:"required"`
	Schema   string `mapstructure:"schema" json:"schema" validate:"required"`
	Query    string `mapstructure:"query" json:"query"` // extra DSN parameters
	MaxConn  int32  `mapstructure:"maxconn" json:"maxconn" validate:"min=1"`
}

// LoggingConfig zap sinks
type LoggingConfig struct {
	FilePath string `mapstructure:"file_path" json:"file_path"`
	Level    string `mapstructure:"level" json:"level" validate:"oneof=debug info warn error"`
}

// SecurityConfig token signing and login lockout
type SecurityConfig struct {
	IDLength         int           `mapstructure:"id_length" json:"id_length" validate:"min=8"`
	JWTMethod        string        `mapstructure:"jwt_method" json:"jwt_method" validate:"oneof=HS256 HS512"`
	JWTSecret        string        `mapstructure:"jwt_secret" json:"-" validate:"required"`
	TokenName        string        `mapstructure:"token_name" json:"token_name" validate:"required"`
	MaxLoginAttempts int           `mapstructure:"max_login_attempts" json:"max_login_attempts"`
	RetryTimeout     time.Duration `mapstructure:"retry_timeout" json:"retry_timeout"`
}

// KVConfig redis connection, an empty host selects the in-process store
type KVConfig struct {
	Host        string        `mapstructure:"host" json:"host"`
	Port        int           `mapstructure:"port" json:"port"`
	Password    string        `mapstructure:"password" json:"-"`
	ProgressTTL time.Duration `mapstructure:"progress_ttl" json:"progress_ttl"` // 0 disables the record cache
}

// CourseConfig where the course structure and lesson files live
type CourseConfig struct {
	CatalogFile  string `mapstructure:"catalog_file" json:"catalog_file" validate:"required"`
	MaterialsDir string `mapstructure:"materials_dir" json:"materials_dir"`
}

// DevOPConfig observability switches
type DevOPConfig struct {
	APM     bool `mapstructure:"apm" json:"apm"`
	Metrics bool `mapstructure:"metrics" json:"metrics"`
}

// AppConfig App option object
type AppConfig struct {
	AppID          string        `mapstructure:"app_id" json:"app_id" validate:"required"` // also used as token issuer
	Host           string        `mapstructure:"host" json:"host"`
	Port           int           `mapstructure:"port" json:"port"`
	Env            string        `mapstructure:"env" json:"env" validate:"oneof=development production"`
	SessionTimeout time.Duration `mapstructure:"session_timeout" json:"session_timeout"`
	SessionRefresh time.Duration `mapstructure:"session_refresh" json:"session_refresh"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout"`

	Database DatabaseConfig `mapstructure:"database" json:"database"`
	Logging  LoggingConfig  `mapstructure:"logging" json:"logging"`
	Security SecurityConfig `mapstructure:"security" json:"security"`
	KVStore  KVConfig       `mapstructure:"kv" json:"kv"`
	Course   CourseConfig   `mapstructure:"course" json:"course"`
	DevOP    DevOPConfig    `mapstructure:"devop" json:"devop"`
}

func registerAppFlags(fs *pflag.FlagSet) {
	fs.String("app_id", "", "application identifier (required)")
	fs.String("host", "", "binding address")
	fs.Int("port", 8081, "listening port")
	fs.String("env", EnvDevelopment, "runtime environment, 'development' or 'production'")
	fs.Duration("session_timeout", 30*time.Minute, "token lifetime, eg.30m")
	fs.Duration("session_refresh", 5*time.Minute, "reissue tokens expiring within this window, eg.5m")
	fs.Duration("request_timeout", 30*time.Second, "abort requests running longer than this")
}

func registerDatabaseFlags(fs *pflag.FlagSet) {
	fs.String("database.driver", "mysql", "'mysql' or 'postgres'")
	fs.String("database.host", "127.0.0.1", "database host")
	fs.Int("database.port", 3306, "database server port")
	fs.String("database.protocol", "", "connection protocol, required by mysql, eg.tcp")
	fs.String("database.username", "", "database username (required)")
	fs.String("database.password", "", "database password (required)")
	fs.String("database.schema", "", "database schema (required)")
	fs.String("database.query", "", `additional DSN query parameters('?' is auto prefixed)`)
	fs.Int32("database.maxconn", 200, "max open connections, keep it below the server's max_connections")
}

func registerLoggingFlags(fs *pflag.FlagSet) {
	fs.String("logging.level", "info", "logging level")
	fs.String("logging.file_path", "", "also log to this file")
}

func registerSecurityFlags(fs *pflag.FlagSet) {
	fs.Int("security.id_length", 24, "length of generated user ids")
	fs.String("security.jwt_method", "HS256", "HS256 or HS512")
	fs.String("security.jwt_secret", "", "token signing secret (required)")
	fs.String("security.token_name", "", "cookie name carrying the token (required)")
	fs.Int("security.max_login_attempts", 3, "failed logins before lockout")
	fs.Duration("security.retry_timeout", time.Hour, "lockout duration")
}

func registerKVFlags(fs *pflag.FlagSet) {
	fs.String("kv.host", "127.0.0.1", "redis host, empty keeps everything in process")
	fs.Int("kv.port", 6379, "redis port")
	fs.String("kv.password", "", "redis password")
	fs.Duration("kv.progress_ttl", 10*time.Minute, "progress record cache lifetime, 0 disables caching")
}

func registerCourseFlags(fs *pflag.FlagSet) {
	fs.String("course.catalog_file", "course.yaml", "course structure file, json or yaml")
	fs.String("course.materials_dir", "materials", "lesson materials directory")
}

func registerDevOPFlags(fs *pflag.FlagSet) {
	fs.Bool("devop.apm", false, "enable apm tracing")
	fs.Bool("devop.metrics", true, "expose prometheus metrics on /metrics")
}

// InitConfig parse command line and GOAPP_* env into a validated config
func InitConfig() (*AppConfig, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	config, err := ParseConfig(pflag.CommandLine, os.Args[1:])
	if err != nil {
		return nil, err
	}
	if config.Logging.Level == "debug" {
		if dump, err := json.MarshalIndent(config, "", "  "); err == nil {
			log.Printf("App config: %s\n", dump)
		}
	}
	return config, nil
}

// ParseConfig register every flag on fs, parse args and overlay the env, fs must be fresh
func ParseConfig(fs *pflag.FlagSet, args []string) (*AppConfig, error) {
	for _, register := range []func(*pflag.FlagSet){
		registerAppFlags,
		registerDatabaseFlags,
		registerLoggingFlags,
		registerSecurityFlags,
		registerKVFlags,
		registerCourseFlags,
		registerDevOPFlags,
	} {
		register(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	config := new(AppConfig)
	if err := v.Unmarshal(config); err != nil {
		return nil, err
	}
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadDotEnv load .env from the working directory into the process env, a missing file is not an error
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load env file: %w", err)
}

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("mapstructure"); name != "-" {
			return name
		}
		return ""
	})
	return v
}

// ValidateConfig validate config struct and aggregate the messages, cfg must be a struct pointer
func ValidateConfig(cfg interface{}) error {
	err := configValidator.Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	msg := make([]string, 0, len(fieldErrs))
	for _, field := range fieldErrs {
		msg = append(msg, describeConfigError(field))
	}
	return fmt.Errorf("failed to validate config: \n%s", strings.Join(msg, "\n"))
}

func describeConfigError(field validator.FieldError) string {
	// drop the struct name, eg. AppConfig.database.host
	key := field.Namespace()
	key = key[strings.IndexByte(key, '.')+1:]
	switch field.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", key)
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", key, strings.ToLower(field.Param()))
	case "oneof":
		return fmt.Sprintf("%s must be one of (%s)", key, field.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", key, field.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid url", key)
	default:
		return fmt.Sprintf("%s failed on %s", key, field.Tag())
	}
}

// Address listen address of the http server
func Address(cfg *AppConfig) string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}
