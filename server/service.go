package server

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"mini-jsonrpc/message"
)

var (
	errorType   = reflect.TypeFor[error]()
	contextType = reflect.TypeFor[context.Context]()
)

type methodType struct {
	method    reflect.Method
	withCtx   bool // First argument is a context.Context
	ArgType   reflect.Type
	ReplyType reflect.Type
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

// newService scans rcvr, a pointer to a struct, for methods of either form
//
//	func (t *T) Method(args *A, reply *R) error
//	func (t *T) Method(ctx context.Context, args *A, reply *R) error
func newService(rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Pointer {
		return nil, fmt.Errorf("server: receiver must be a pointer, got %T", rcvr)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("server: receiver must point to a struct, got %s", typ.Elem().Kind())
	}

	svc := &service{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	svc.registerMethods()
	if len(svc.method) == 0 {
		return nil, fmt.Errorf("server: type %s has no exported methods of suitable type", svc.name)
	}
	return svc, nil
}

func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mt := method.Type
		if mt.NumOut() != 1 || mt.Out(0) != errorType {
			continue
		}

		first := 1
		withCtx := false
		switch {
		case mt.NumIn() == 4 && mt.In(1) == contextType:
			first, withCtx = 2, true
		case mt.NumIn() == 3:
		default:
			continue
		}
		if mt.In(first).Kind() != reflect.Pointer || mt.In(first+1).Kind() != reflect.Pointer {
			continue
		}

		s.method[method.Name] = &methodType{
			method:    method,
			withCtx:   withCtx,
			ArgType:   mt.In(first).Elem(),
			ReplyType: mt.In(first + 1).Elem(),
		}
	}
}

func (s *service) call(ctx context.Context, mType *methodType, argv, replyv reflect.Value) error {
	args := []reflect.Value{s.rcvr}
	if mType.withCtx {
		args = append(args, reflect.ValueOf(ctx))
	}
	args = append(args, argv, replyv)

	results := mType.method.Func.Call(args)
	if !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}

// Services is a Dispatcher routing requests to registered receivers by
// method name. Register exposes receiver methods as "Type.Method"; Handle
// binds a Dispatcher to an exact method name.
type Services struct {
	mu       sync.RWMutex
	services map[string]*service
	handlers map[string]Dispatcher
}

// NewServices returns an empty set of services.
func NewServices() *Services {
	return &Services{
		services: make(map[string]*service),
		handlers: make(map[string]Dispatcher),
	}
}

// Register exposes the suitable exported methods of rcvr, a pointer to a
// struct, under the struct's type name.
func (s *Services) Register(rcvr any) error {
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.services[svc.name]; dup {
		return fmt.Errorf("server: service %s already registered", svc.name)
	}
	s.services[svc.name] = svc
	return nil
}

// Handle routes method to d. It takes precedence over registered receivers.
func (s *Services) Handle(method string, d Dispatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = d
}

// Names returns the registered service names in sorted order.
func (s *Services) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Dispatch implements Dispatcher. A handler failure is reported as follows: a
// *message.ProtocolError is sent as is, any other error or a panic becomes an
// InternalError carrying the error text.
func (s *Services) Dispatch(ctx context.Context, req message.Request) (resp *message.Response) {
	s.mu.RLock()
	h, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if ok {
		resp = h.Dispatch(ctx, req)
		if req.IsNotification() {
			return nil
		}
		return resp
	}

	result, perr := s.invoke(ctx, req)
	if req.IsNotification() {
		return nil
	}
	var r message.Response
	if perr != nil {
		r = message.NewErrorResponse(perr, req.ID)
	} else {
		r = message.NewResultResponse(result, req.ID)
	}
	return &r
}

func (s *Services) invoke(ctx context.Context, req message.Request) (result message.Value, perr *message.ProtocolError) {
	dot := strings.LastIndex(req.Method, ".")
	if dot < 0 {
		return nil, message.NewMethodNotFound(fmt.Sprintf("unknown method %q", req.Method))
	}

	s.mu.RLock()
	svc := s.services[req.Method[:dot]]
	s.mu.RUnlock()
	if svc == nil {
		return nil, message.NewMethodNotFound(fmt.Sprintf("unknown method %q", req.Method))
	}
	mType := svc.method[req.Method[dot+1:]]
	if mType == nil {
		return nil, message.NewMethodNotFound(fmt.Sprintf("unknown method %q", req.Method))
	}

	argv := reflect.New(mType.ArgType)
	replyv := reflect.New(mType.ReplyType)
	if err := BindParams(req.Params, argv.Interface()); err != nil {
		return nil, message.NewInvalidParams(err.Error())
	}

	defer func() {
		if p := recover(); p != nil {
			result, perr = nil, message.NewInternalError(fmt.Sprintf("panic in %s: %v", req.Method, p))
		}
	}()
	if err := svc.call(ctx, mType, argv, replyv); err != nil {
		return nil, handlerError(err)
	}
	return marshalReply(replyv.Interface())
}

// BindParams unmarshals request params into v, a non-nil pointer.
//
// Absent or null params leave v untouched. An object is unmarshaled into v
// directly. An array is unmarshaled as a whole into a slice or array, element
// by element into the exported fields of a struct, and otherwise must hold
// exactly one element for v.
func BindParams(params message.Value, v any) error {
	if params == nil || params.Kind() == 'n' {
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("bind target must be a non-nil pointer, got %T", v)
	}

	switch params.Kind() {
	case '{':
		return json.Unmarshal(params, v)
	case '[':
	default:
		return fmt.Errorf("expecting params as an object or an array, but found %s", params)
	}

	elem := rv.Elem()
	switch elem.Kind() {
	case reflect.Slice, reflect.Array, reflect.Interface:
		return json.Unmarshal(params, v)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(params, &items); err != nil {
		return err
	}

	if elem.Kind() == reflect.Struct {
		fields := positionalFields(elem.Type())
		if len(items) > len(fields) {
			return fmt.Errorf("expecting at most %d params, but found %d", len(fields), len(items))
		}
		for i, item := range items {
			target := elem.FieldByIndex(fields[i].Index).Addr().Interface()
			if err := json.Unmarshal(item, target); err != nil {
				return fmt.Errorf("param %d (%s): %w", i, fields[i].Name, err)
			}
		}
		return nil
	}

	if len(items) != 1 {
		return fmt.Errorf("expecting 1 param, but found %d", len(items))
	}
	return json.Unmarshal(items[0], v)
}

// positionalFields lists the exported, non-ignored fields of a struct type in
// declaration order.
func positionalFields(t reflect.Type) []reflect.StructField {
	fields := make([]reflect.StructField, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("json") == "-" {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}
