package config

import (
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/iancoleman/strcase"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

type Config struct {
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"5s"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path" required:"true"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" default:"5"`
	DataDir                   string        `koanf:"data_dir" default:"/data"`
	Environment               string        `koanf:"environment" default:"production"`
	JWTSecret                 string        `koanf:"jwt_secret" required:"true"`
	ServerHost                string        `koanf:"server_host" default:"0.0.0.0"`
	ServerPort                int           `koanf:"server_port" default:"3689"`

	// Barcodes are numeric Code128 strings assigned to every copy.
	BarcodeLength      int `koanf:"barcode_length" default:"12"`
	BarcodeMaxAttempts int `koanf:"barcode_max_attempts"`
	BarcodeImageWidth  int `koanf:"barcode_image_width" default:"400"`
	BarcodeImageHeight int `koanf:"barcode_image_height" default:"120"`

	DefaultRentedDays int    `koanf:"default_rented_days" default:"3"`
	FeeTimeZone       string `koanf:"fee_time_zone" default:"UTC"`
}

// EnvironmentTest enables the fixture endpoints used by end-to-end runs.
const EnvironmentTest = "test"

const (
	configFileENV     = "CONFIG_FILE"
	defaultConfigFile = "/config/circulate.yaml"
)

func New() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	configFile := os.Getenv(configFileENV)
	if configFile == "" {
		configFile = defaultConfigFile
	}
	_, err := os.Stat(configFile)
	switch {
	case err == nil:
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", configFile)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, errors.WithStack(err)
	}

	// Environment variables win over the file: SERVER_PORT -> server_port.
	err = k.Load(env.Provider("", ".", strings.ToLower), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := checkRequired(cfg); err != nil {
		return nil, err
	}

	if _, err := time.LoadLocation(cfg.FeeTimeZone); err != nil {
		return nil, errors.Wrapf(err, "invalid fee_time_zone %q", cfg.FeeTimeZone)
	}

	return cfg, nil
}

// NewForTest returns a config pointing at an in-memory database.
func NewForTest() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	cfg.DatabaseFilePath = ":memory:"
	cfg.DatabaseConnectRetryCount = 1
	cfg.DatabaseConnectRetryDelay = 0
	cfg.DataDir = os.TempDir()
	cfg.Environment = EnvironmentTest
	cfg.JWTSecret = "test-secret"
	cfg.ServerHost = "127.0.0.1"
	return cfg
}

// FeeLocation is the time zone whose calendar days are used to count overdue
// days.
func (cfg *Config) FeeLocation() *time.Location {
	loc, err := time.LoadLocation(cfg.FeeTimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func checkRequired(cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	var missing []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get("required") != "true" {
			continue
		}
		if !v.Field(i).IsZero() {
			continue
		}
		key := field.Tag.Get("koanf")
		if key == "" {
			key = toSnakeCase(field.Name)
		}
		missing = append(missing, strings.ToUpper(key)+" ("+key+")")
	}

	if len(missing) > 0 {
		return errors.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func toSnakeCase(s string) string {
	return strcase.ToSnake(s)
}
