package codec

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	"mini-jsonrpc/message"
)

// Wire shapes. Fields are declared in alphabetical order, which is the order
// encoding/json writes them in.
type wireRequest struct {
	ID      json.RawMessage `json:"id,omitempty"` // Absent marks a notification
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type wireResponse struct {
	Error   json.RawMessage `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
}

func toWireRequest(req message.Request) wireRequest {
	return wireRequest{
		ID:      json.RawMessage(req.ID),
		JSONRPC: message.Version,
		Method:  req.Method,
		Params:  json.RawMessage(req.Params),
	}
}

func toWireResponse(resp message.Response) wireResponse {
	id := resp.ID
	if id == nil {
		id = message.Null
	}
	return wireResponse{
		Error:   json.RawMessage(resp.Error),
		ID:      json.RawMessage(id),
		JSONRPC: message.Version,
		Result:  json.RawMessage(resp.Result),
	}
}

// EncodeRequest serializes a single request.
func EncodeRequest(req message.Request) ([]byte, error) {
	return marshal(toWireRequest(req))
}

// EncodeRequests serializes a batch of requests as a JSON array, in order.
func EncodeRequests(reqs []message.Request) ([]byte, error) {
	arr := make([]wireRequest, 0, len(reqs))
	for _, req := range reqs {
		arr = append(arr, toWireRequest(req))
	}
	return marshal(arr)
}

// EncodeResponse serializes a single response. A nil ID is written as null.
func EncodeResponse(resp message.Response) ([]byte, error) {
	return marshal(toWireResponse(resp))
}

// EncodeResponses serializes a batch of responses as a JSON array, in order.
func EncodeResponses(resps []message.Response) ([]byte, error) {
	arr := make([]wireResponse, 0, len(resps))
	for _, resp := range resps {
		arr = append(arr, toWireResponse(resp))
	}
	return marshal(arr)
}

// DecodeRequest parses the bytes of one request envelope (a single object or a batch array).
func DecodeRequest(data []byte) (message.ClientRequest, error) {
	elems, batch, err := split(data, KindInvalidRequest, "Invalid JSON-RPC request")
	if err != nil {
		return message.ClientRequest{}, err
	}
	reqs := make([]message.Request, 0, len(elems))
	for _, obj := range elems {
		req, err := decodeRequestObject(obj)
		if err != nil {
			return message.ClientRequest{}, err
		}
		reqs = append(reqs, req)
	}
	if batch {
		return message.NewBatchRequest(reqs...), nil
	}
	return message.NewSingleRequest(reqs[0]), nil
}

// DecodeResponse parses the bytes of one response envelope (a single object or a batch array).
func DecodeResponse(data []byte) (message.ServerResponse, error) {
	elems, batch, err := split(data, KindInvalidResponse, "Invalid JSON-RPC response")
	if err != nil {
		return message.ServerResponse{}, err
	}
	resps := make([]message.Response, 0, len(elems))
	for _, obj := range elems {
		resp, err := decodeResponseObject(obj)
		if err != nil {
			return message.ServerResponse{}, err
		}
		resps = append(resps, resp)
	}
	if batch {
		return message.NewBatchResponse(resps...), nil
	}
	return message.NewSingleResponse(resps[0]), nil
}

// split validates data and breaks it into envelope objects. A single object
// yields one element; an array yields its elements, each of which must be an object.
func split(data []byte, kind ErrorKind, desc string) (objs []map[string]json.RawMessage, batch bool, err error) {
	if !utf8.Valid(data) {
		return nil, false, ErrNonUTF8
	}
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, &ParseError{Err: err}
	}
	raw = bytes.TrimSpace(raw)

	switch message.Value(raw).Kind() {
	case '{':
		obj, err := toObject(raw)
		if err != nil {
			return nil, false, err
		}
		return []map[string]json.RawMessage{obj}, false, nil
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil, false, &ParseError{Err: err}
		}
		objs = make([]map[string]json.RawMessage, 0, len(elems))
		for _, elem := range elems {
			if message.Value(elem).Kind() != '{' {
				return nil, true, newInternalError(kind, desc, "expecting an object in batch, but found %s", elem)
			}
			obj, err := toObject(elem)
			if err != nil {
				return nil, true, err
			}
			objs = append(objs, obj)
		}
		return objs, true, nil
	default:
		return nil, false, newInternalError(kind, desc, "expecting an object or a batch array, but found %s", raw)
	}
}

func toObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, &ParseError{Err: err}
	}
	return obj, nil
}

func checkVersion(obj map[string]json.RawMessage) error {
	const desc = "Invalid JSON-RPC version"
	raw, ok := obj["jsonrpc"]
	if !ok {
		return newInternalError(KindInvalidVersion, desc, "missing `jsonrpc` field")
	}
	var ver string
	if message.Value(raw).Kind() != '"' || json.Unmarshal(raw, &ver) != nil {
		return newInternalError(KindInvalidVersion, desc, "expecting JSON-RPC %s, but found %s", message.Version, raw)
	}
	if ver != message.Version {
		return newInternalError(KindInvalidVersion, desc, "expecting JSON-RPC %s, but found %s", message.Version, ver)
	}
	return nil
}

func decodeRequestObject(obj map[string]json.RawMessage) (message.Request, error) {
	if err := checkVersion(obj); err != nil {
		return message.Request{}, err
	}

	rawMethod, ok := obj["method"]
	if !ok {
		return message.Request{}, newInternalError(KindInvalidRequest, "`method` is required", "")
	}
	var method string
	if message.Value(rawMethod).Kind() != '"' || json.Unmarshal(rawMethod, &method) != nil {
		return message.Request{}, newInternalError(KindInvalidRequest, "`method` must be a string", "expecting method, but found %s", rawMethod)
	}

	req := message.Request{Method: method}
	if params, ok := obj["params"]; ok {
		req.Params = compact(params)
	}
	if id, ok := obj["id"]; ok {
		req.ID = compact(id)
	}
	return req, nil
}

func decodeResponseObject(obj map[string]json.RawMessage) (message.Response, error) {
	if err := checkVersion(obj); err != nil {
		return message.Response{}, err
	}

	var resp message.Response
	// Both slots are passed through; a peer sending result and error together is tolerated.
	if result, ok := obj["result"]; ok {
		resp.Result = compact(result)
	}
	if rpcErr, ok := obj["error"]; ok {
		resp.Error = compact(rpcErr)
	}
	id, ok := obj["id"]
	if !ok {
		return message.Response{}, newInternalError(KindInvalidResponse, "Invalid JSON-RPC response", "`id` is required")
	}
	resp.ID = compact(id)
	return resp, nil
}
