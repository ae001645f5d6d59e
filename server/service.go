package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"mux-rpc/codec"
	"mux-rpc/message"
)

var (
	ErrBadServiceMethod = errors.New("service method must look like Service.Method")
	ErrUnknownService   = errors.New("unknown service")
	ErrUnknownMethod    = errors.New("unknown method")
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

type methodType struct {
	method    reflect.Method
	withCtx   bool
	ArgType   reflect.Type
	ReplyType reflect.Type
}

type service struct {
	name   string
	rcvr   reflect.Value
	method map[string]*methodType
}

// newService scans rcvr's exported methods of the form
//
//	func (*T) Name(args *A, reply *R) error
//	func (*T) Name(ctx context.Context, args *A, reply *R) error
func newService(rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr || typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("service receiver must be a pointer to a struct, got %v", typ)
	}
	svc := &service{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		method: make(map[string]*methodType),
	}
	for i := 0; i < typ.NumMethod(); i++ {
		if mt := suitable(typ.Method(i)); mt != nil {
			svc.method[mt.method.Name] = mt
		}
	}
	if len(svc.method) == 0 {
		return nil, fmt.Errorf("type %s has no suitable methods", svc.name)
	}
	return svc, nil
}

func suitable(m reflect.Method) *methodType {
	mtype := m.Type
	if mtype.NumOut() != 1 || mtype.Out(0) != errorType {
		return nil
	}
	first := 1
	withCtx := mtype.NumIn() == 4 && mtype.In(1) == contextType
	if withCtx {
		first = 2
	}
	if mtype.NumIn() != first+2 {
		return nil
	}
	args, reply := mtype.In(first), mtype.In(first+1)
	if args.Kind() != reflect.Ptr || reply.Kind() != reflect.Ptr {
		return nil
	}
	return &methodType{method: m, withCtx: withCtx, ArgType: args.Elem(), ReplyType: reply.Elem()}
}

func (s *service) call(ctx context.Context, mt *methodType, argv, replyv reflect.Value) error {
	in := []reflect.Value{s.rcvr}
	if mt.withCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	in = append(in, argv, replyv)
	if errv := mt.method.Func.Call(in)[0]; !errv.IsNil() {
		return errv.Interface().(error)
	}
	return nil
}

// ServiceMux routes typed calls to registered service methods. Requests and
// replies are codec envelopes around a message.RPCMessage whose Payload
// holds the JSON encoded args or reply. A reply uses the request's codec.
type ServiceMux struct {
	mu       sync.RWMutex
	services map[string]*service
}

func NewServiceMux() *ServiceMux {
	return &ServiceMux{services: make(map[string]*service)}
}

// Register exposes rcvr's suitable methods under its type name.
func (m *ServiceMux) Register(rcvr any) error {
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.services[svc.name]; dup {
		return fmt.Errorf("service %s already registered", svc.name)
	}
	m.services[svc.name] = svc
	return nil
}

// Services returns the registered service names, sorted.
func (m *ServiceMux) Services() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle decodes one envelope, invokes the method it names and encodes the
// reply. Routing and decoding failures are reported in the reply's Error.
func (m *ServiceMux) Handle(ctx context.Context, request []byte) ([]byte, error) {
	req, c, err := codec.Unmarshal(request)
	if err != nil {
		if c == nil {
			c = codec.JSONCodec{}
		}
		return codec.Marshal(c, message.Failed("", err))
	}
	return codec.Marshal(c, m.dispatch(ctx, req))
}

func (m *ServiceMux) dispatch(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
	serviceName, methodName, ok := strings.Cut(req.ServiceMethod, ".")
	if !ok || serviceName == "" || methodName == "" {
		return message.Failed(req.ServiceMethod, ErrBadServiceMethod)
	}

	m.mu.RLock()
	svc := m.services[serviceName]
	m.mu.RUnlock()
	if svc == nil {
		return message.Failed(req.ServiceMethod, fmt.Errorf("%w %s", ErrUnknownService, serviceName))
	}
	mt := svc.method[methodName]
	if mt == nil {
		return message.Failed(req.ServiceMethod, fmt.Errorf("%w %s", ErrUnknownMethod, req.ServiceMethod))
	}

	argv := reflect.New(mt.ArgType)
	replyv := reflect.New(mt.ReplyType)
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, argv.Interface()); err != nil {
			return message.Failed(req.ServiceMethod, fmt.Errorf("decode args: %w", err))
		}
	}

	resp := &message.RPCMessage{ServiceMethod: req.ServiceMethod}
	if err := svc.call(ctx, mt, argv, replyv); err != nil {
		resp.Error = err.Error()
	}
	payload, err := json.Marshal(replyv.Interface())
	if err != nil {
		return message.Failed(req.ServiceMethod, fmt.Errorf("encode reply: %w", err))
	}
	resp.Payload = payload
	return resp
}
