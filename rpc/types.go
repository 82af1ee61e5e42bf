// Package rpc exposes the reward pool via a JSON-RPC 2.0 HTTP endpoint.
package rpc

import (
	"encoding/json"

	"github.com/tolelom/levelpool/core"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents a JSON-RPC error object.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData lets clients map a rejected operation to a message and decide
// whether to offer a retry.
type ErrorData struct {
	Kind      core.ErrorKind `json:"kind"`
	Retryable bool           `json:"retryable"`
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32000
)

// Pool operation error codes, one per error kind.
const (
	CodeAuthorization = -32001
	CodeState         = -32002
	CodeValidation    = -32003
	CodeIntegrity     = -32004
	CodeResource      = -32005
)

var kindCodes = map[core.ErrorKind]int{
	core.KindAuthorization: CodeAuthorization,
	core.KindState:         CodeState,
	core.KindValidation:    CodeValidation,
	core.KindIntegrity:     CodeIntegrity,
	core.KindResource:      CodeResource,
	core.KindInternal:      CodeInternalError,
}

func errResponse(id any, code int, msg string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: msg},
	}
}

// opErrResponse reports a failed pool operation with its error kind.
func opErrResponse(id any, err error) Response {
	kind := core.Kind(err)
	resp := errResponse(id, kindCodes[kind], err.Error())
	resp.Error.Data = &ErrorData{Kind: kind, Retryable: core.Retryable(err)}
	return resp
}

func okResponse(id, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}
