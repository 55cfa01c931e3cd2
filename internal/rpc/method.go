package rpc

import "fmt"

// Method is the closed set of worker RPC methods. Wire names only appear in JSON.
type Method int

const (
	MethodSubmitAndWatchRsaRequest Method = iota
	MethodSubmitAndWatchAesRequest
	MethodSubmitRsaRequest
	MethodSubmitAesRequest
	MethodExecuteGetter
	MethodSystemVersion
	MethodSystemHealth
	MethodGetShard
	MethodGetShieldingKey
	MethodGetShardVault
	MethodGetEnclaveSignerAccount
	MethodGetMrenclave
	MethodGetNextNonce
	MethodRPCMethods

	methodCount
)

var methodNames = [...]string{
	MethodSubmitAndWatchRsaRequest: "author_submitAndWatchRsaRequest",
	MethodSubmitAndWatchAesRequest: "author_submitAndWatchAesRequest",
	MethodSubmitRsaRequest:         "author_submitRsaRequest",
	MethodSubmitAesRequest:         "author_submitAesRequest",
	MethodExecuteGetter:            "state_executeGetter",
	MethodSystemVersion:            "system_version",
	MethodSystemHealth:             "system_health",
	MethodGetShard:                 "author_getShard",
	MethodGetShieldingKey:          "author_getShieldingKey",
	MethodGetShardVault:            "author_getShardVault",
	MethodGetEnclaveSignerAccount:  "author_getEnclaveSignerAccount",
	MethodGetMrenclave:             "state_getMrenclave",
	MethodGetNextNonce:             "author_getNextNonce",
	MethodRPCMethods:               "rpc_methods",
}

func (m Method) String() string {
	if m >= 0 && m < methodCount {
		return methodNames[m]
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// Streaming reports whether the worker keeps pushing status updates after the first reply.
func (m Method) Streaming() bool {
	return m == MethodSubmitAndWatchRsaRequest || m == MethodSubmitAndWatchAesRequest
}

// ParseMethod maps a wire name back to its Method.
func ParseMethod(name string) (Method, error) {
	for i, n := range methodNames {
		if n == name {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("unknown method %q", name)
}

// AllMethods lists every method in declaration order.
func AllMethods() []Method {
	out := make([]Method, 0, methodCount)
	for m := Method(0); m < methodCount; m++ {
		out = append(out, m)
	}
	return out
}
