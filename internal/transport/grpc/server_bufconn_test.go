package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"clinic/backend/internal/directory"
	"clinic/backend/internal/domain"
	"clinic/backend/internal/service/availability"
	"clinic/backend/internal/service/clinic"
	"clinic/backend/internal/service/reservations"
	"clinic/backend/internal/store/memory"
)

func startServer(t *testing.T) (*SchedulingClient, *grpc.ClientConn, domain.Doctor) {
	t.Helper()
	st := memory.New()
	clinicSvc := clinic.NewService(st, nil)
	availSvc := availability.NewService(st, nil)
	resSvc := reservations.NewService(st, directory.NewStatic([]directory.Employee{
		{ID: "emp-1001", EmployeeNumber: "1001", Name: "Aiko", Email: "aiko@example.com"},
		{ID: "emp-1002", EmployeeNumber: "1002", Name: "Ben", Email: "ben@example.com"},
	}))

	doc, err := clinicSvc.CreateDoctor(context.Background(), clinic.DoctorInput{Name: "Tanaka"})
	if err != nil {
		t.Fatalf("CreateDoctor error: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoveryInterceptor(nil),
		DefaultRequestTimeoutInterceptor(5*time.Second),
	))
	RegisterSchedulingServiceServer(s, NewSchedulingServer(resSvc, availSvc, clinicSvc, nil))
	healthpb.RegisterHealthServer(s, health.NewServer())
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewSchedulingClient(conn), conn, doc
}

func TestSchedulingService_OverBufconn(t *testing.T) {
	client, conn, doc := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("health Check error: %v", err)
	}
	if hc.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health = %s", hc.GetStatus())
	}

	_, err = client.Call(ctx, "ReplacePeriods", map[string]any{
		"doctorId": doc.ID.String(),
		"date":     "2026-02-10",
		"timePeriods": []any{
			map[string]any{"startTime": "09:00", "endTime": "12:00"},
		},
	})
	if err != nil {
		t.Fatalf("ReplacePeriods error: %v", err)
	}

	periods, err := client.Call(ctx, "ListPeriods", map[string]any{"doctorId": doc.ID.String(), "date": "2026-02-10"})
	if err != nil {
		t.Fatalf("ListPeriods error: %v", err)
	}
	if n := len(periods.GetFields()["timePeriods"].GetListValue().GetValues()); n != 1 {
		t.Fatalf("periods = %d, want 1", n)
	}

	book := func(number, start, end string) error {
		_, err := client.Call(ctx, "BookReservation", map[string]any{
			"doctorId":       doc.ID.String(),
			"employeeNumber": number,
			"startTime":      start,
			"endTime":        end,
		})
		return err
	}

	if err := book("1001", "2026-02-10T09:00:00Z", "2026-02-10T09:30:00Z"); err != nil {
		t.Fatalf("first booking error: %v", err)
	}
	err = book("1002", "2026-02-10T09:15:00Z", "2026-02-10T09:45:00Z")
	if status.Code(err) != codes.FailedPrecondition || Reason(err) != ReasonDoubleBooked {
		t.Fatalf("overlap err = %v", err)
	}
	err = book("1002", "2026-02-10T12:00:00Z", "2026-02-10T12:30:00Z")
	if Reason(err) != ReasonOutsideSchedule {
		t.Fatalf("outside schedule err = %v", err)
	}
	err = book("9999", "2026-02-10T10:00:00Z", "2026-02-10T10:30:00Z")
	if status.Code(err) != codes.NotFound || Reason(err) != ReasonEmployeeNotFound {
		t.Fatalf("unknown employee err = %v", err)
	}

	list, err := client.Call(ctx, "ListReservations", map[string]any{"doctorId": doc.ID.String()})
	if err != nil {
		t.Fatalf("ListReservations error: %v", err)
	}
	rows := list.GetFields()["reservations"].GetListValue().GetValues()
	if len(rows) != 1 {
		t.Fatalf("reservations = %d, want 1", len(rows))
	}
	if name := rows[0].GetStructValue().GetFields()["employeeName"].GetStringValue(); name != "Aiko" {
		t.Fatalf("employeeName = %q", name)
	}

	settings, err := client.Call(ctx, "GetSettings", nil)
	if err != nil {
		t.Fatalf("GetSettings error: %v", err)
	}
	if rooms := settings.GetFields()["settings"].GetStructValue().GetFields()["numberOfRooms"].GetNumberValue(); rooms != 1 {
		t.Fatalf("numberOfRooms = %v", rooms)
	}
}
