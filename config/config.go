// Package config loads the bridge settings from flags, the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"bridge/batcher"
	"bridge/display"
	"bridge/retry"
	"bridge/syncer"
	"bridge/upload"
)

const (
	SinkHTTP  = "http"
	SinkKafka = "kafka"

	SourceSimulator = "simulator"
	SourceFile      = "file"
)

type Config struct {
	SessionID string `mapstructure:"session-id" validate:"required"`
	RemoteURL string `mapstructure:"remote-url" validate:"required,url"`

	BatchSize       int `mapstructure:"batch-size" validate:"min=1"`
	BatchIntervalMS int `mapstructure:"batch-interval-ms" validate:"min=1"`

	SyncPeriodMS  int `mapstructure:"sync-period-ms" validate:"min=1"`
	SyncTimeoutMS int `mapstructure:"sync-timeout-ms" validate:"min=1"`

	UploadSink       string `mapstructure:"upload-sink" validate:"oneof=http kafka"`
	UploadQueue      int    `mapstructure:"upload-queue" validate:"min=1"`
	UploadMaxRetries int    `mapstructure:"upload-max-retries" validate:"min=0"`
	KafkaBrokers     string `mapstructure:"kafka-brokers" validate:"required_if=UploadSink kafka"`
	KafkaTopic       string `mapstructure:"kafka-topic" validate:"required_if=UploadSink kafka"`

	// Empty broker means pet state updates are only logged.
	MQTTBroker      string `mapstructure:"mqtt-broker"`
	MQTTTopicPrefix string `mapstructure:"mqtt-topic-prefix"`

	Source     string `mapstructure:"source" validate:"oneof=simulator file"`
	SourcePath string `mapstructure:"source-path" validate:"required_if=Source file"`
	SimRateHz  int    `mapstructure:"sim-rate-hz" validate:"min=1,max=1000"`
	DeviceID   string `mapstructure:"device-id"`

	LogLevel  string `mapstructure:"log-level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log-format" validate:"oneof=json console"`
}

// Flags registers every setting as a flag. Each flag can also be set
// by the ENV variable with the upper case, underscore separated name.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("bridge", pflag.ContinueOnError)
	fs.SortFlags = true
	fs.String("session-id", "", "user session identifier")
	fs.String("remote-url", "", "base URL of the cloud API")
	fs.Int("batch-size", batcher.DefaultMaxSamples, "samples per uploaded batch")
	fs.Int("batch-interval-ms", int(batcher.DefaultMaxInterval/time.Millisecond), "max age of a batch in milliseconds")
	fs.Int("sync-period-ms", int(syncer.DefaultPeriod/time.Millisecond), "period of the sync cycle in milliseconds")
	fs.Int("sync-timeout-ms", int(syncer.DefaultTimeout/time.Millisecond), "timeout of one push or pull in milliseconds")
	fs.String("upload-sink", SinkHTTP, `batch sink, "http" or "kafka"`)
	fs.Int("upload-queue", upload.DefaultQueueSize, "number of batches waiting for upload")
	fs.Int("upload-max-retries", int(retry.DefaultMaxRetries), "retries of a failed batch upload")
	fs.String("kafka-brokers", "", "comma separated kafka brokers")
	fs.String("kafka-topic", "", "kafka topic for batches")
	fs.String("mqtt-broker", "", "MQTT broker of the watch display, eg. \"tcp://localhost:1883\"")
	fs.String("mqtt-topic-prefix", display.DefaultTopicPrefix, "MQTT topic prefix")
	fs.String("source", SourceSimulator, `sample source, "simulator" or "file"`)
	fs.String("source-path", "", "NDJSON file read by the file source")
	fs.Int("sim-rate-hz", 50, "samples per second generated by the simulator")
	fs.String("device-id", "watch-1", "device ID of simulated samples")
	fs.String("log-level", "info", "debug, info, warn or error")
	fs.String("log-format", "json", `"json" or "console"`)
	return fs
}

// Load parses args and merges them with ENV variables. Flags win over ENV,
// ENV wins over .env, .env wins over defaults.
func Load(args []string) (*Config, error) {
	fs := Flags()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// .env is optional, existing ENV variables are not overwritten
	_ = godotenv.Load()

	v := viper.NewWithOptions(viper.EnvKeyReplacer(strings.NewReplacer("-", "_")))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.SessionID = strings.TrimSpace(c.SessionID)
	c.RemoteURL = strings.TrimRight(strings.TrimSpace(c.RemoteURL), "/")
	c.UploadSink = strings.ToLower(c.UploadSink)
	c.Source = strings.ToLower(c.Source)
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})
	return v
}

// envName converts a flag name to the ENV variable name, eg. "session-id" -> "SESSION_ID".
func envName(flag string) string {
	return strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// Validate reports every invalid setting by its ENV name.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	var msgs []string
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("- invalid %s: failed on %q", envName(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("invalid config:\n%s", strings.Join(msgs, "\n"))
}

func (c *Config) Batcher() batcher.Config {
	return batcher.Config{
		MaxSamples:  c.BatchSize,
		MaxInterval: ms(c.BatchIntervalMS),
	}
}

func (c *Config) Syncer() syncer.Config {
	return syncer.Config{
		Period:  ms(c.SyncPeriodMS),
		Timeout: ms(c.SyncTimeoutMS),
	}
}

func (c *Config) Upload() upload.Config {
	cfg := upload.DefaultConfig()
	cfg.QueueSize = c.UploadQueue
	cfg.Retry.MaxRetries = uint64(c.UploadMaxRetries)
	return cfg
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
