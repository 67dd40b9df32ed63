package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTP queries a Graph-style users endpoint:
// GET {BaseURL}/users?$filter=employeeId eq '<number>'.
type HTTP struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("directory base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse directory base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{
		baseURL:    base,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type graphUser struct {
	ID            string `json:"id"`
	EmployeeID    string `json:"employeeId"`
	DisplayName   string `json:"displayName"`
	Mail          string `json:"mail"`
	CompanyName   string `json:"companyName"`
	Department    string `json:"department"`
	MobilePhone   string `json:"mobilePhone"`
	UserPrincipal string `json:"userPrincipalName"`
}

type graphUsersResponse struct {
	Value []graphUser `json:"value"`
}

func (h *HTTP) ResolveEmployee(ctx context.Context, employeeNumber string) (Employee, error) {
	number := strings.TrimSpace(employeeNumber)
	if number == "" {
		return Employee{}, ErrNotFound
	}

	q := url.Values{}
	q.Set("$filter", fmt.Sprintf("employeeId eq '%s'", strings.ReplaceAll(number, "'", "''")))
	endpoint := h.baseURL + "/users?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Employee{}, fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return Employee{}, fmt.Errorf("directory request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Employee{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Employee{}, fmt.Errorf("directory returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload graphUsersResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Employee{}, fmt.Errorf("decode directory response: %w", err)
	}
	if len(payload.Value) == 0 {
		return Employee{}, ErrNotFound
	}

	u := payload.Value[0]
	email := u.Mail
	if email == "" {
		email = u.UserPrincipal
	}
	return Employee{
		ID:             u.ID,
		EmployeeNumber: u.EmployeeID,
		Name:           u.DisplayName,
		Email:          email,
		CompanyName:    u.CompanyName,
		Department:     u.Department,
		PhoneNumber:    u.MobilePhone,
	}, nil
}
