package wcserver

import (
	"encoding/json"
	"fmt"

	"github.com/wcproto/wc-server-go/internal/jsonrpc"
	"github.com/wcproto/wc-server-go/wc"
)

// Request is one JSON-RPC request bound to the connection URL it arrived
// on or will be sent over. Values are immutable once constructed.
type Request struct {
	url     wc.URL
	payload *jsonrpc.Request
}

// NewRequest builds an outbound request with a fresh time-derived id and
// the given positional params. Marshal failures surface as
// ErrSerialization; there is no panicking construction path.
func NewRequest(url wc.URL, method string, params ...any) (*Request, error) {
	payload, err := jsonrpc.NewRequest(jsonrpc.NewTimeID(), method, params...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return &Request{url: url, payload: payload}, nil
}

func newRequest(url wc.URL, payload *jsonrpc.Request) *Request {
	return &Request{url: url, payload: payload}
}

// URL returns the connection the request belongs to.
func (r *Request) URL() wc.URL {
	return r.url
}

// Method returns the JSON-RPC method name.
func (r *Request) Method() string {
	return r.payload.Method
}

// ID returns the raw request id: a string, int64, float64, or nil for a
// notification.
func (r *Request) ID() any {
	return r.payload.ID.Value()
}

// ParamCount returns the number of positional params, zero when the
// params field is absent or not an array.
func (r *Request) ParamCount() int {
	elems, err := jsonrpc.PositionalParams(r.payload.Params)
	if err != nil {
		return 0
	}
	return len(elems)
}

// UnmarshalParam decodes positional param i into dst. Out-of-range
// indices and decode failures surface as ErrDeserialization.
func (r *Request) UnmarshalParam(i int, dst any) error {
	elems, err := jsonrpc.PositionalParams(r.payload.Params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	if i < 0 || i >= len(elems) {
		return fmt.Errorf("%w: no param at index %d", ErrDeserialization, i)
	}
	if err := json.Unmarshal(elems[i], dst); err != nil {
		return fmt.Errorf("%w: param %d: %v", ErrDeserialization, i, err)
	}
	return nil
}

// Response is one JSON-RPC response bound to a connection URL.
type Response struct {
	url     wc.URL
	payload *jsonrpc.Response
}

// NewResponse builds a success response echoing req's id.
func NewResponse(req *Request, result any) (*Response, error) {
	payload, err := jsonrpc.NewResultResponse(req.payload.ID, result)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return &Response{url: req.url, payload: payload}, nil
}

// NewErrorResponse builds an error response echoing req's id, for host
// handlers that reject a request.
func NewErrorResponse(req *Request, code int, message string) *Response {
	return &Response{
		url:     req.url,
		payload: jsonrpc.NewErrorResponse(req.payload.ID, jsonrpc.ErrorCode(code), message, nil),
	}
}

// URL returns the connection the response belongs to.
func (r *Response) URL() wc.URL {
	return r.url
}
