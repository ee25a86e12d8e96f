// Package grpcapi serves the attendance submission over gRPC. Messages are
// google.protobuf.Struct values carrying the same fields as the JSON API.
package grpcapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/ledger"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/qr"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/service"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/types"
	"github.com/BrandonDHaskell/rollcall/internal/wire"
)

const (
	ServiceName  = "rollcall.v1.Attendance"
	SubmitMethod = "/" + ServiceName + "/Submit"
)

// AttendanceServer is the server side of rollcall.v1.Attendance.
type AttendanceServer interface {
	Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AttendanceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rollcall/v1/attendance.proto",
}

func submitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AttendanceServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SubmitMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AttendanceServer).Submit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type Server struct {
	attendance *service.AttendanceService
	gate       qr.Gate
	now        func() time.Time
	logger     *slog.Logger
}

// NewServer serves attendance behind the same QR gate as the HTTP API.
func NewServer(attendance *service.AttendanceService, gate qr.Gate, logger *slog.Logger) *Server {
	return &Server{attendance: attendance, gate: gate, now: time.Now, logger: logger.With("component", "grpc")}
}

// Submit decides one submission. Rejections are ordinary responses; only
// store failures become gRPC errors.
func (s *Server) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.SubmissionRequest
	if err := wire.FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid submission message")
	}
	req.ClientIP = peerIP(ctx)

	if err := s.gate.Verify(s.now(), req.QR, req.Week, req.Location); err != nil {
		resp := types.Reject(qr.Reason(err), err.Error())
		resp.ServerTime = s.now().UTC().Format(time.RFC3339Nano)
		s.logger.Info("submission rejected at gate", "student_id", req.StudentID, "reason", resp.Reason)
		return s.encode(resp)
	}

	resp, err := s.attendance.Submit(ctx, req)
	if err != nil {
		s.logger.Error("submission failed", "student_id", req.StudentID, "error", err)
		if errors.Is(err, ledger.ErrTransientStore) {
			return nil, status.Error(codes.Unavailable, resp.Error)
		}
		return nil, status.Error(codes.Internal, "internal error")
	}

	return s.encode(resp)
}

func (s *Server) encode(resp types.SubmissionResponse) (*structpb.Struct, error) {
	out, err := wire.ToStruct(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// Client calls rollcall.v1.Attendance.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) Submit(ctx context.Context, req types.SubmissionRequest, opts ...grpc.CallOption) (types.SubmissionResponse, error) {
	in, err := wire.ToStruct(req)
	if err != nil {
		return types.SubmissionResponse{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SubmitMethod, in, out, opts...); err != nil {
		return types.SubmissionResponse{}, err
	}
	var resp types.SubmissionResponse
	if err := wire.FromStruct(out, &resp); err != nil {
		return types.SubmissionResponse{}, err
	}
	return resp, nil
}
