package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"github.com/google/uuid"
)

const jsonRPCVersion = "2.0"

// Request is a JSON-RPC 2.0 call. Every parameter travels as a string.
type Request struct {
	JSONRPC string   `json:"jsonrpc"`
	Method  string   `json:"method"`
	Params  []string `json:"params"`
	ID      string   `json:"id"`
}

func NewRequest(method Method, params ...string) Request {
	if params == nil {
		params = []string{}
	}
	return Request{
		JSONRPC: jsonRPCVersion,
		Method:  method.String(),
		Params:  params,
		ID:      uuid.NewString(),
	}
}

type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e ErrorObject) String() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// Response is a JSON-RPC 2.0 reply or subscription push.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// NewResult builds a successful response carrying a string result.
func NewResult(id string, result string) (Response, error) {
	rawID, err := json.Marshal(id)
	if err != nil {
		return Response{}, err
	}
	rawResult, err := json.Marshal(result)
	if err != nil {
		return Response{}, err
	}
	return Response{JSONRPC: jsonRPCVersion, ID: rawID, Result: rawResult}, nil
}

// NewError builds an error response.
func NewError(id string, code int, message string) Response {
	rawID, _ := json.Marshal(id)
	return Response{JSONRPC: jsonRPCVersion, ID: rawID, Error: &ErrorObject{Code: code, Message: message}}
}

// MatchesID compares the response id with a request id. Numeric and string ids with the
// same text are treated as equal; a missing id matches nothing.
func (r Response) MatchesID(id string) bool {
	if len(r.ID) == 0 {
		return false
	}
	var s string
	if err := json.Unmarshal(r.ID, &s); err == nil {
		return s == id
	}
	return string(bytes.TrimSpace(r.ID)) == id
}

// ResultString returns the result when it is a JSON string.
func (r Response) ResultString() (string, error) {
	var s string
	if err := json.Unmarshal(r.Result, &s); err != nil {
		return "", fmt.Errorf("result is not a string: %w", err)
	}
	return s, nil
}
