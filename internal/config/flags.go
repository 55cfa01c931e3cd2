package config

import (
	"github.com/spf13/pflag"
	"tee/trusted-ops/internal/rpc"
)

const (
	WorkerURLKey   = "worker-url"
	LogLevelKey    = "log-level"
	TimeoutKey     = "timeout"
	InsecureKey    = "insecure"
	TransportKey   = "transport"
	VsockCIDKey    = "vsock-cid"
	VsockPortKey   = "vsock-port"
	ShardKey       = "shard"
	HybridKey      = "aes"
	KeySourceKey   = "key-source"
	SignerKeyKey   = "signer-key"
	KMSKeyARNKey   = "kms-key-arn"
	KeyTableKey    = "key-table"
	KeyIDKey       = "key-id"
	RegionKey      = "region"
	MetricsAddrKey = "metrics-addr"
	EMFKey         = "emf"
)

// AddFlags registers every setting on fs. Each flag can also be set through the
// environment as TOPS_<FLAG_NAME>.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(WorkerURLKey, "wss://localhost:2000", "Worker websocket endpoint")
	fs.String(LogLevelKey, "info", "Log level: trace, debug, info, warn, error")
	fs.Duration(TimeoutKey, rpc.DefaultTimeout, "Per-request timeout")
	fs.Bool(InsecureKey, false, "Skip TLS certificate verification of the worker")
	fs.String(TransportKey, "tcp", "Outbound transport: tcp or vsock")
	fs.Uint32(VsockCIDKey, 3, "vsock context id of the proxy when transport is vsock")
	fs.Uint32(VsockPortKey, 8000, "vsock port of the proxy when transport is vsock")
	fs.String(ShardKey, "", "Shard as base58 or 0x-hex, fetched from the worker when empty")
	fs.Bool(HybridKey, false, "Always use hybrid AES-GCM request encryption")
	fs.String(KeySourceKey, "env", "Signer key source: env or kms")
	fs.String(SignerKeyKey, "", "Signer key as <type>:<hex> when the key source is env")
	fs.String(KMSKeyARNKey, "", "KMS key used to decrypt the stored signer key")
	fs.String(KeyTableKey, "", "DynamoDB table holding encrypted signer keys")
	fs.String(KeyIDKey, "", "Key id of the signer key in the table")
	fs.String(RegionKey, "", "AWS region, SDK default chain when empty")
	fs.String(MetricsAddrKey, "", "Serve Prometheus metrics on this address when set")
	fs.Bool(EMFKey, false, "Write CloudWatch embedded metric records to stdout")
}
