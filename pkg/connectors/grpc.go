package connectors

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	rpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

// grpcMethod is one unary RPC exposed as a tool.
type grpcMethod struct {
	service    protoreflect.FullName
	name       string
	fullMethod string
	input      protoreflect.MessageDescriptor
	output     protoreflect.MessageDescriptor
}

// GRPCConnector exposes the unary methods of a gRPC server as tools.
// Requests and responses are built dynamically from the server's
// protobuf descriptors, so no generated client code is needed.
type GRPCConnector struct {
	target   string
	conn     *grpc.ClientConn
	prefix   string
	dialOpts []grpc.DialOption
	services []protoreflect.FullName
	built    []tools.Tool
}

// GRPCOption configures a GRPCConnector.
type GRPCOption func(*GRPCConnector)

// WithGRPCPrefix prefixes generated tool names, separated with an
// underscore.
func WithGRPCPrefix(prefix string) GRPCOption {
	return func(c *GRPCConnector) { c.prefix = prefix }
}

// WithGRPCDialOption appends dial options. Later options override the
// default insecure transport credentials.
func WithGRPCDialOption(opts ...grpc.DialOption) GRPCOption {
	return func(c *GRPCConnector) { c.dialOpts = append(c.dialOpts, opts...) }
}

// NewGRPC connects to target and discovers its services through the
// reflection API. The server must register reflection.
func NewGRPC(ctx context.Context, target string, opts ...GRPCOption) (*GRPCConnector, error) {
	c := &GRPCConnector{target: target}
	for _, opt := range opts {
		opt(c)
	}
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	c.conn = conn

	files, services, err := c.discover(ctx)
	if err != nil {
		conn.Close()
		return nil, errors.New(errors.CodeValidation, "grpc reflection failed", err)
	}
	if err := c.build(files, services); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// GRPCFromDescriptors builds the connector from a descriptor set
// instead of server reflection. The connection to target is opened
// lazily, so tools can be inspected without a reachable server.
func GRPCFromDescriptors(target string, set *descriptorpb.FileDescriptorSet, opts ...GRPCOption) (*GRPCConnector, error) {
	c := &GRPCConnector{target: target}
	for _, opt := range opts {
		opt(c)
	}
	files, err := protodesc.NewFiles(set)
	if err != nil {
		return nil, errors.New(errors.CodeValidation, "invalid descriptor set", err)
	}

	var services []protoreflect.FullName
	files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		svcs := fd.Services()
		for i := range svcs.Len() {
			services = append(services, svcs.Get(i).FullName())
		}
		return true
	})

	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	c.conn = conn
	if err := c.build(files, services); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *GRPCConnector) dial() (*grpc.ClientConn, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, c.dialOpts...)
	conn, err := grpc.NewClient(c.target, dialOpts...)
	if err != nil {
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("grpc client for %s", c.target), err)
	}
	return conn, nil
}

// Name implements Connector.
func (c *GRPCConnector) Name() string { return "grpc:" + c.target }

// Tools implements Connector.
func (c *GRPCConnector) Tools() []tools.Tool { return c.built }

// Target returns the server address.
func (c *GRPCConnector) Target() string { return c.target }

// Services returns the discovered service names, sorted.
func (c *GRPCConnector) Services() []string {
	names := make([]string, len(c.services))
	for i, s := range c.services {
		names[i] = string(s)
	}
	sort.Strings(names)
	return names
}

// Close releases the client connection.
func (c *GRPCConnector) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// discover lists services over the reflection stream and collects the
// file descriptors that define them.
func (c *GRPCConnector) discover(ctx context.Context) (*protoregistry.Files, []protoreflect.FullName, error) {
	client := rpb.NewServerReflectionClient(c.conn)
	stream, err := client.ServerReflectionInfo(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open reflection stream: %w", err)
	}
	defer stream.CloseSend()

	if err := stream.Send(&rpb.ServerReflectionRequest{
		MessageRequest: &rpb.ServerReflectionRequest_ListServices{},
	}); err != nil {
		return nil, nil, fmt.Errorf("list services: %w", err)
	}
	resp, err := stream.Recv()
	if err != nil {
		return nil, nil, fmt.Errorf("list services: %w", err)
	}
	list := resp.GetListServicesResponse()
	if list == nil {
		return nil, nil, fmt.Errorf("unexpected reflection response %T", resp.MessageResponse)
	}

	var services []protoreflect.FullName
	descriptors := map[string]*descriptorpb.FileDescriptorProto{}
	for _, svc := range list.Service {
		// Reflection and health are infrastructure, not tools.
		if strings.HasPrefix(svc.Name, "grpc.") {
			continue
		}
		services = append(services, protoreflect.FullName(svc.Name))

		if err := stream.Send(&rpb.ServerReflectionRequest{
			MessageRequest: &rpb.ServerReflectionRequest_FileContainingSymbol{
				FileContainingSymbol: svc.Name,
			},
		}); err != nil {
			return nil, nil, fmt.Errorf("resolve %s: %w", svc.Name, err)
		}
		resp, err := stream.Recv()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve %s: %w", svc.Name, err)
		}
		fdResp := resp.GetFileDescriptorResponse()
		if fdResp == nil {
			return nil, nil, fmt.Errorf("resolve %s: unexpected response %T", svc.Name, resp.MessageResponse)
		}
		for _, raw := range fdResp.FileDescriptorProto {
			fdp := &descriptorpb.FileDescriptorProto{}
			if err := proto.Unmarshal(raw, fdp); err != nil {
				return nil, nil, fmt.Errorf("resolve %s: %w", svc.Name, err)
			}
			descriptors[fdp.GetName()] = fdp
		}
	}
	if len(services) == 0 {
		return nil, nil, fmt.Errorf("server exposes no services")
	}

	set := &descriptorpb.FileDescriptorSet{File: make([]*descriptorpb.FileDescriptorProto, 0, len(descriptors))}
	for _, fdp := range descriptors {
		set.File = append(set.File, fdp)
	}
	files, err := protodesc.NewFiles(set)
	if err != nil {
		return nil, nil, fmt.Errorf("build descriptor registry: %w", err)
	}
	return files, services, nil
}

// build generates one tool per unary method, in sorted service order.
func (c *GRPCConnector) build(files *protoregistry.Files, services []protoreflect.FullName) error {
	sort.Slice(services, func(i, j int) bool { return services[i] < services[j] })
	c.services = services

	for _, name := range services {
		desc, err := files.FindDescriptorByName(name)
		if err != nil {
			return errors.New(errors.CodeValidation, fmt.Sprintf("service %s not in descriptors", name), err)
		}
		svc, ok := desc.(protoreflect.ServiceDescriptor)
		if !ok {
			return errors.Newf(errors.CodeValidation, "%s is not a service", name)
		}

		methods := svc.Methods()
		for i := range methods.Len() {
			md := methods.Get(i)
			if md.IsStreamingClient() || md.IsStreamingServer() {
				continue
			}
			m := &grpcMethod{
				service:    name,
				name:       string(md.Name()),
				fullMethod: fmt.Sprintf("/%s/%s", name, md.Name()),
				input:      md.Input(),
				output:     md.Output(),
			}
			c.built = append(c.built, c.methodTool(m))
		}
	}
	if len(c.built) == 0 {
		return errors.Newf(errors.CodeValidation, "no unary methods discovered")
	}
	return nil
}

func (c *GRPCConnector) methodTool(m *grpcMethod) tools.Tool {
	shortService := string(m.service.Name())
	name := snakeCase(shortService) + "_" + snakeCase(m.name)
	if c.prefix != "" {
		name = c.prefix + "_" + name
	}
	def := tools.NewDefinition(name,
		fmt.Sprintf("Call %s on the %s service", m.name, m.service),
		messageProperties(m.input, 0))
	return tools.New(def, func(ctx context.Context, args map[string]any) (any, error) {
		return c.call(ctx, m, args)
	})
}

func (c *GRPCConnector) call(ctx context.Context, m *grpcMethod, args map[string]any) (any, error) {
	in := dynamicpb.NewMessage(m.input)
	if err := populateFields(in, args); err != nil {
		return nil, err
	}
	out := dynamicpb.NewMessage(m.output)
	if err := c.conn.Invoke(ctx, m.fullMethod, in, out); err != nil {
		return nil, fmt.Errorf("rpc %s: %w", m.fullMethod, err)
	}
	return messageToMap(out), nil
}

// maxSchemaDepth bounds nested message expansion so self-referential
// types do not recurse forever.
const maxSchemaDepth = 3

func messageProperties(md protoreflect.MessageDescriptor, depth int) map[string]any {
	properties := map[string]any{}
	fields := md.Fields()
	for i := range fields.Len() {
		fd := fields.Get(i)
		properties[string(fd.Name())] = fieldJSONSchema(fd, depth)
	}
	return properties
}

func fieldJSONSchema(fd protoreflect.FieldDescriptor, depth int) map[string]any {
	switch {
	case fd.IsMap():
		return map[string]any{
			"type":                 "object",
			"additionalProperties": kindJSONSchema(fd.MapValue(), depth),
		}
	case fd.IsList():
		return map[string]any{
			"type":  "array",
			"items": kindJSONSchema(fd, depth),
		}
	default:
		return kindJSONSchema(fd, depth)
	}
}

func kindJSONSchema(fd protoreflect.FieldDescriptor, depth int) map[string]any {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return map[string]any{"type": "boolean"}
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind,
		protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return map[string]any{"type": "integer"}
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return map[string]any{"type": "number"}
	case protoreflect.EnumKind:
		values := fd.Enum().Values()
		names := make([]any, 0, values.Len())
		for i := range values.Len() {
			names = append(names, string(values.Get(i).Name()))
		}
		return map[string]any{"type": "string", "enum": names}
	case protoreflect.MessageKind, protoreflect.GroupKind:
		if depth >= maxSchemaDepth {
			return map[string]any{"type": "object"}
		}
		return map[string]any{
			"type":       "object",
			"properties": messageProperties(fd.Message(), depth+1),
		}
	default:
		return map[string]any{"type": "string"}
	}
}

// populateFields fills msg from tool arguments, matching keys by proto
// field name or JSON name.
func populateFields(msg protoreflect.Message, args map[string]any) error {
	fields := msg.Descriptor().Fields()
	for name, value := range args {
		fd := fields.ByName(protoreflect.Name(name))
		if fd == nil {
			fd = fields.ByJSONName(name)
		}
		if fd == nil {
			return fmt.Errorf("unknown field %q in %s", name, msg.Descriptor().FullName())
		}
		if value == nil {
			continue
		}
		if err := setField(msg, fd, value); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return nil
}

func setField(msg protoreflect.Message, fd protoreflect.FieldDescriptor, value any) error {
	switch {
	case fd.IsMap():
		entries, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
		mp := msg.Mutable(fd).Map()
		for k, v := range entries {
			key, err := mapKey(fd.MapKey(), k)
			if err != nil {
				return err
			}
			if fd.MapValue().Kind() == protoreflect.MessageKind {
				nested, ok := v.(map[string]any)
				if !ok {
					return fmt.Errorf("map value for %q: expected object, got %T", k, v)
				}
				el := mp.NewValue()
				if err := populateFields(el.Message(), nested); err != nil {
					return err
				}
				mp.Set(key, el)
				continue
			}
			val, err := scalarValue(fd.MapValue(), v)
			if err != nil {
				return err
			}
			mp.Set(key, val)
		}
		return nil

	case fd.IsList():
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("expected array, got %T", value)
		}
		list := msg.Mutable(fd).List()
		for _, item := range items {
			if fd.Kind() == protoreflect.MessageKind || fd.Kind() == protoreflect.GroupKind {
				nested, ok := item.(map[string]any)
				if !ok {
					return fmt.Errorf("expected object element, got %T", item)
				}
				el := list.NewElement()
				if err := populateFields(el.Message(), nested); err != nil {
					return err
				}
				list.Append(el)
				continue
			}
			v, err := scalarValue(fd, item)
			if err != nil {
				return err
			}
			list.Append(v)
		}
		return nil

	case fd.Kind() == protoreflect.MessageKind || fd.Kind() == protoreflect.GroupKind:
		nested, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
		return populateFields(msg.Mutable(fd).Message(), nested)

	default:
		v, err := scalarValue(fd, value)
		if err != nil {
			return err
		}
		msg.Set(fd, v)
		return nil
	}
}

// mapKey parses a JSON object key into the proto map key kind.
func mapKey(fd protoreflect.FieldDescriptor, key string) (protoreflect.MapKey, error) {
	switch fd.Kind() {
	case protoreflect.StringKind:
		return protoreflect.ValueOfString(key).MapKey(), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		n, err := strconv.ParseInt(key, 10, 32)
		if err != nil {
			return protoreflect.MapKey{}, fmt.Errorf("map key %q is not an integer", key)
		}
		return protoreflect.ValueOfInt32(int32(n)).MapKey(), nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		n, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return protoreflect.MapKey{}, fmt.Errorf("map key %q is not an integer", key)
		}
		return protoreflect.ValueOfInt64(n).MapKey(), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		n, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			return protoreflect.MapKey{}, fmt.Errorf("map key %q is not an unsigned integer", key)
		}
		return protoreflect.ValueOfUint32(uint32(n)).MapKey(), nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		n, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return protoreflect.MapKey{}, fmt.Errorf("map key %q is not an unsigned integer", key)
		}
		return protoreflect.ValueOfUint64(n).MapKey(), nil
	case protoreflect.BoolKind:
		return protoreflect.ValueOfBool(key == "true").MapKey(), nil
	default:
		return protoreflect.MapKey{}, fmt.Errorf("unsupported map key kind %s", fd.Kind())
	}
}

func scalarValue(fd protoreflect.FieldDescriptor, value any) (protoreflect.Value, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		b, ok := value.(bool)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected boolean, got %T", value)
		}
		return protoreflect.ValueOfBool(b), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		n, ok := asInt64(value)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected integer, got %T", value)
		}
		return protoreflect.ValueOfInt32(int32(n)), nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		n, ok := asInt64(value)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected integer, got %T", value)
		}
		return protoreflect.ValueOfInt64(n), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		n, ok := asUint64(value)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected unsigned integer, got %T", value)
		}
		return protoreflect.ValueOfUint32(uint32(n)), nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		n, ok := asUint64(value)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected unsigned integer, got %T", value)
		}
		return protoreflect.ValueOfUint64(n), nil
	case protoreflect.FloatKind:
		f, ok := asFloat64(value)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected number, got %T", value)
		}
		return protoreflect.ValueOfFloat32(float32(f)), nil
	case protoreflect.DoubleKind:
		f, ok := asFloat64(value)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected number, got %T", value)
		}
		return protoreflect.ValueOfFloat64(f), nil
	case protoreflect.StringKind:
		s, ok := value.(string)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected string, got %T", value)
		}
		return protoreflect.ValueOfString(s), nil
	case protoreflect.BytesKind:
		s, ok := value.(string)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected string, got %T", value)
		}
		return protoreflect.ValueOfBytes([]byte(s)), nil
	case protoreflect.EnumKind:
		switch v := value.(type) {
		case string:
			ev := fd.Enum().Values().ByName(protoreflect.Name(v))
			if ev == nil {
				return protoreflect.Value{}, fmt.Errorf("unknown enum value %q for %s", v, fd.Enum().FullName())
			}
			return protoreflect.ValueOfEnum(ev.Number()), nil
		default:
			n, ok := asInt64(value)
			if !ok {
				return protoreflect.Value{}, fmt.Errorf("expected enum name or number, got %T", value)
			}
			return protoreflect.ValueOfEnum(protoreflect.EnumNumber(n)), nil
		}
	default:
		return protoreflect.Value{}, fmt.Errorf("unsupported field kind %s", fd.Kind())
	}
}

// messageToMap converts a response message into JSON-friendly values.
// Only populated fields appear.
func messageToMap(msg protoreflect.Message) map[string]any {
	out := map[string]any{}
	msg.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		out[string(fd.Name())] = fieldToGo(fd, v)
		return true
	})
	return out
}

func fieldToGo(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch {
	case fd.IsMap():
		entries := map[string]any{}
		v.Map().Range(func(k protoreflect.MapKey, mv protoreflect.Value) bool {
			entries[k.String()] = valueToGo(fd.MapValue(), mv)
			return true
		})
		return entries
	case fd.IsList():
		list := v.List()
		items := make([]any, list.Len())
		for i := range list.Len() {
			items[i] = valueToGo(fd, list.Get(i))
		}
		return items
	default:
		return valueToGo(fd, v)
	}
}

func valueToGo(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return messageToMap(v.Message())
	case protoreflect.EnumKind:
		if ev := fd.Enum().Values().ByNumber(v.Enum()); ev != nil {
			return string(ev.Name())
		}
		return int32(v.Enum())
	case protoreflect.BytesKind:
		return string(v.Bytes())
	case protoreflect.BoolKind:
		return v.Bool()
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return v.Int()
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return v.Uint()
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return v.Float()
	case protoreflect.StringKind:
		return v.String()
	default:
		return v.Interface()
	}
}
