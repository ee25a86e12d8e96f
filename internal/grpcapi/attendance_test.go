package grpcapi_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/rollcall/internal/grpcapi"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/ledger"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/qr"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/service"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store/memory"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/types"
)

func hex64(prefix string) string {
	return prefix + strings.Repeat("0", 64-len(prefix))
}

var classroom = types.LatLng{Lat: 41.015137, Lng: 28.979530}

// dial starts the gRPC server on an in-memory listener.
func dial(t *testing.T, gate qr.Gate) (*grpc.ClientConn, *memory.Ledger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mem := memory.NewLedger()
	mem.Seed([][]string{{"Student ID", "Name"}, {"150210001", "Ada Lovelace"}})
	cfg := ledger.DefaultConfig()
	cfg.MinCallInterval = 0
	adapter, err := ledger.NewAdapter(mem, cfg, logger)
	require.NoError(t, err)

	reg := service.NewDeviceRegistry(memory.NewDeviceStore(), service.PolicyAllow, logger)
	tracker := service.NewDailyDeviceTracker(memory.NewDailyDeviceStore(), adapter, service.TrackerConfig{}, logger)
	svc := service.NewAttendanceService(reg, tracker, adapter, memory.NewDecisionEventStore(), logger)

	lis := bufconn.Listen(1 << 20)
	g := grpcapi.NewGRPCServer(grpcapi.NewServer(svc, gate, logger), logger)
	go func() { _ = g.Serve(lis) }()
	t.Cleanup(g.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, mem
}

func TestSubmit_Accepted(t *testing.T) {
	conn, mem := dial(t, qr.Gate{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := grpcapi.NewClient(conn).Submit(ctx, types.SubmissionRequest{
		StudentID: "150210001", Week: 5, DeviceFingerprint: hex64("aa"), HardwareSignature: hex64("bb"),
	})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.True(t, strings.HasPrefix(mem.Cell("G2"), "VAR"))
}

func TestSubmit_RejectionIsAResponse(t *testing.T) {
	conn, _ := dial(t, qr.Gate{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := grpcapi.NewClient(conn).Submit(ctx, types.SubmissionRequest{
		StudentID: "150219999", Week: 5, DeviceFingerprint: hex64("aa"), HardwareSignature: hex64("bb"),
	})
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
	assert.Equal(t, types.ReasonStudentNotFound, resp.Reason)
}

func TestSubmit_MalformedMessage(t *testing.T) {
	conn, _ := dial(t, qr.Gate{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	in, err := structpb.NewStruct(map[string]any{"student_id": "1", "favourite_colour": "red"})
	require.NoError(t, err)
	err = conn.Invoke(ctx, grpcapi.SubmitMethod, in, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestHealth(t *testing.T) {
	conn, _ := dial(t, qr.Gate{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: grpcapi.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestSubmit_GateRejections(t *testing.T) {
	conn, mem := dial(t, qr.Gate{MaxDistanceKm: 0.5, Required: true})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := grpcapi.NewClient(conn)

	code, err := qr.Encode(qr.Issue(time.Now(), classroom, 5, time.Minute))
	require.NoError(t, err)
	far := types.LatLng{Lat: 41.1, Lng: 29.1}

	cases := []struct {
		name   string
		qr     string
		loc    *types.LatLng
		reason types.RejectionReason
	}{
		{"missing code", "", &classroom, types.ReasonQRRequired},
		{"garbage", "!!!", &classroom, types.ReasonQRInvalid},
		{"too far", code, &far, types.ReasonLocationOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := client.Submit(ctx, types.SubmissionRequest{
				StudentID: "150210001", Week: 5, DeviceFingerprint: hex64("aa"), HardwareSignature: hex64("bb"),
				QR: tc.qr, Location: tc.loc,
			})
			require.NoError(t, err)
			assert.False(t, resp.Accepted)
			assert.Equal(t, tc.reason, resp.Reason)
		})
	}
	assert.Empty(t, mem.Cell("G2"), "gate rejections never reach the ledger")

	resp, err := client.Submit(ctx, types.SubmissionRequest{
		StudentID: "150210001", Week: 5, DeviceFingerprint: hex64("aa"), HardwareSignature: hex64("bb"),
		QR: code, Location: &classroom,
	})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
}
