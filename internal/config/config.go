package config

import (
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"os"
	"strings"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/keystore"
	"tee/trusted-ops/internal/rpc"
	"tee/trusted-ops/internal/transport"
	"time"
)

const EnvPrefix = "tops"

var DashesToUnderscores = strings.NewReplacer("-", "_")

var validate = validator.New()

// Config is the validated client configuration.
type Config struct {
	WorkerURL   string        `validate:"required,url"`
	LogLevel    string        `validate:"oneof=panic fatal error warn warning info debug trace"`
	Timeout     time.Duration `validate:"gt=0"`
	Insecure    bool
	Transport   string `validate:"oneof=tcp vsock"`
	VsockCID    uint32
	VsockPort   uint32 `validate:"required_if=Transport vsock"`
	Shard       string
	Hybrid      bool
	KeySource   string `validate:"oneof=env kms"`
	SignerKey   string
	KMSKeyARN   string
	KeyTable    string `validate:"required_if=KeySource kms"`
	KeyID       string `validate:"required_if=KeySource kms"`
	Region      string
	MetricsAddr string `validate:"omitempty,hostname_port"`
	EMF         bool
}

// LoadDotEnv loads the given dotenv files when they exist. Variables already set in the
// environment win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			log.Warnf("failed to load %s: %s", file, err)
		}
	}
}

// NewViper binds already parsed flags and the TOPS_ environment.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(DashesToUnderscores)
	v.SetEnvPrefix(EnvPrefix)
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	return v, nil
}

// BuildViper parses args into fs and binds the result.
func BuildViper(fs *pflag.FlagSet, args []string) (*viper.Viper, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return NewViper(fs)
}

// FromViper reads and validates the configuration.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		WorkerURL:   v.GetString(WorkerURLKey),
		LogLevel:    strings.ToLower(v.GetString(LogLevelKey)),
		Timeout:     v.GetDuration(TimeoutKey),
		Insecure:    v.GetBool(InsecureKey),
		Transport:   strings.ToLower(v.GetString(TransportKey)),
		VsockCID:    v.GetUint32(VsockCIDKey),
		VsockPort:   v.GetUint32(VsockPortKey),
		Shard:       v.GetString(ShardKey),
		Hybrid:      v.GetBool(HybridKey),
		KeySource:   strings.ToLower(v.GetString(KeySourceKey)),
		SignerKey:   v.GetString(SignerKeyKey),
		KMSKeyARN:   v.GetString(KMSKeyARNKey),
		KeyTable:    v.GetString(KeyTableKey),
		KeyID:       v.GetString(KeyIDKey),
		Region:      v.GetString(RegionKey),
		MetricsAddr: v.GetString(MetricsAddrKey),
		EMF:         v.GetBool(EMFKey),
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Shard != "" {
		if _, err := codec.ParseShard(cfg.Shard); err != nil {
			return Config{}, fmt.Errorf("invalid configuration: shard %q: %w", cfg.Shard, err)
		}
	}
	return cfg, nil
}

// Connection returns the outbound transport shared by the websocket and AWS clients.
func (c Config) Connection() transport.ConnectionConfig {
	connectionType, err := transport.ParseConnectionType(c.Transport)
	if err != nil {
		// validated in FromViper
		connectionType = transport.TCP
	}
	return transport.NewConnectionConfig(connectionType, c.VsockCID, c.VsockPort)
}

func (c Config) Dialer() rpc.DialerConfig {
	return rpc.DialerConfig{
		InsecureSkipVerify: c.Insecure,
		Connection:         c.Connection(),
	}
}

// ShardID returns the configured shard or nil when it must be fetched from the worker.
func (c Config) ShardID() *codec.ShardIdentifier {
	if c.Shard == "" {
		return nil
	}
	shard, err := codec.ParseShard(c.Shard)
	if err != nil {
		return nil
	}
	return &shard
}

func (c Config) Keystore() keystore.Config {
	return keystore.Config{
		Source:     keystore.Source(c.KeySource),
		Key:        c.SignerKey,
		KeyARN:     c.KMSKeyARN,
		Table:      c.KeyTable,
		KeyID:      c.KeyID,
		Region:     c.Region,
		Connection: c.Connection(),
	}
}
