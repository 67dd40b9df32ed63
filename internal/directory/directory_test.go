package directory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

type fakeResolver struct {
	resolveFn func(ctx context.Context, employeeNumber string) (Employee, error)
}

func (f *fakeResolver) ResolveEmployee(ctx context.Context, employeeNumber string) (Employee, error) {
	if f.resolveFn == nil {
		panic("ResolveEmployee not configured")
	}
	return f.resolveFn(ctx, employeeNumber)
}

func TestStatic_ResolvesByNumber(t *testing.T) {
	s := NewStatic([]Employee{{ID: "e1", EmployeeNumber: "1001", Name: "Aiko", Email: "aiko@example.com"}})

	got, err := s.ResolveEmployee(context.Background(), " 1001 ")
	if err != nil {
		t.Fatalf("ResolveEmployee error: %v", err)
	}
	if got.Name != "Aiko" {
		t.Fatalf("name = %q, want Aiko", got.Name)
	}

	if _, err := s.ResolveEmployee(context.Background(), "9999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "employees.json")
	roster := `[{"id":"e1","employeeNumber":"1001","name":"Aiko","email":"aiko@example.com","department":"Ops"}]`
	if err := os.WriteFile(path, []byte(roster), 0o600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	s, err := LoadStatic(path)
	if err != nil {
		t.Fatalf("LoadStatic error: %v", err)
	}
	got, err := s.ResolveEmployee(context.Background(), "1001")
	if err != nil {
		t.Fatalf("ResolveEmployee error: %v", err)
	}
	if got.Department != "Ops" {
		t.Fatalf("department = %q, want Ops", got.Department)
	}

	if _, err := LoadStatic(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing roster")
	}
}

func TestHTTP_ResolveEmployee(t *testing.T) {
	var gotFilter, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("$filter")
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/users" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if gotFilter == "employeeId eq '1001'" {
			_, _ = w.Write([]byte(`{"value":[{"id":"u1","employeeId":"1001","displayName":"Aiko","userPrincipalName":"aiko@corp.example"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"value":[]}`))
	}))
	defer srv.Close()

	h, err := NewHTTP(HTTPConfig{BaseURL: srv.URL + "/", Token: "secret"})
	if err != nil {
		t.Fatalf("NewHTTP error: %v", err)
	}

	got, err := h.ResolveEmployee(context.Background(), "1001")
	if err != nil {
		t.Fatalf("ResolveEmployee error: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if got.Email != "aiko@corp.example" {
		t.Fatalf("email = %q, want principal name fallback", got.Email)
	}

	if _, err := h.ResolveEmployee(context.Background(), "2002"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestHTTP_ServerErrorIsNotNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	h, err := NewHTTP(HTTPConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTP error: %v", err)
	}
	_, err = h.ResolveEmployee(context.Background(), "1001")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want transport error", err)
	}
}

func TestNewHTTP_RequiresBaseURL(t *testing.T) {
	if _, err := NewHTTP(HTTPConfig{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCached_MemoizesHitsOnly(t *testing.T) {
	var calls atomic.Int32
	next := &fakeResolver{
		resolveFn: func(ctx context.Context, employeeNumber string) (Employee, error) {
			calls.Add(1)
			if employeeNumber == "1001" {
				return Employee{EmployeeNumber: "1001", Name: "Aiko"}, nil
			}
			return Employee{}, ErrNotFound
		},
	}
	c := NewCached(next, 8, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := c.ResolveEmployee(context.Background(), "1001"); err != nil {
			t.Fatalf("ResolveEmployee error: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}

	for i := 0; i < 2; i++ {
		if _, err := c.ResolveEmployee(context.Background(), "2002"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	if c.Len() != 1 {
		t.Fatalf("cache len = %d, want 1", c.Len())
	}
}
