package operator

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/roman-kulish/altitude-hold/internal/control"
	"github.com/roman-kulish/altitude-hold/internal/flight"
	"github.com/roman-kulish/altitude-hold/internal/vehicle/fake"
)

const testSecret = "correct horse battery staple"

func newTestFlight(t *testing.T) *flight.Session {
	t.Helper()

	s, err := flight.NewSession(flight.DefaultConfig(), fake.New())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return s
}

func newTestServer(t *testing.T, f Flight, options ...func(*Server)) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(NewServer(f, options...).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, token, body string) (int, Response) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var response Response
	if err = json.NewDecoder(resp.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp.StatusCode, response
}

func signToken(t *testing.T, v *Verifier, scopes ...string) string {
	t.Helper()

	token, err := v.Sign(Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func TestServer_Parameters(t *testing.T) {
	f := newTestFlight(t)
	ts := newTestServer(t, f)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
		want       control.ControlParameters
	}{
		{"setpoint accepted", "/api/v1/parameters/setpoint", `{"value": 60}`, http.StatusOK, "", control.ControlParameters{Setpoint: 60, Gain: 3.15}},
		{"gain accepted", "/api/v1/parameters/gain", `{"value": 1.2}`, http.StatusOK, "", control.ControlParameters{Setpoint: 60, Gain: 1.2}},
		{"negative setpoint", "/api/v1/parameters/setpoint", `{"value": -5}`, http.StatusUnprocessableEntity, codeRejected, control.ControlParameters{Setpoint: 60, Gain: 1.2}},
		{"gain above limit", "/api/v1/parameters/gain", `{"value": 3.6}`, http.StatusUnprocessableEntity, codeRejected, control.ControlParameters{Setpoint: 60, Gain: 1.2}},
		{"missing value", "/api/v1/parameters/gain", `{}`, http.StatusBadRequest, codeBadRequest, control.ControlParameters{Setpoint: 60, Gain: 1.2}},
		{"malformed body", "/api/v1/parameters/setpoint", `{"value":`, http.StatusBadRequest, codeBadRequest, control.ControlParameters{Setpoint: 60, Gain: 1.2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, response := do(t, http.MethodPut, ts.URL+tt.path, "", tt.body)
			if status != tt.wantStatus {
				t.Errorf("Expected status %d, got %d (%s)", tt.wantStatus, status, response.Message)
			}
			if response.Code != tt.wantCode {
				t.Errorf("Expected code %q, got %q", tt.wantCode, response.Code)
			}
			if got := f.Parameters().Snapshot(); got != tt.want {
				t.Errorf("Expected parameters %+v, got %+v", tt.want, got)
			}
		})
	}

	status, response := do(t, http.MethodGet, ts.URL+"/api/v1/parameters", "", "")
	if status != http.StatusOK || response.Result != "ok" {
		t.Fatalf("Unexpected response %d %+v", status, response)
	}
	data := response.Data.(map[string]any)
	if data["setpoint"] != 60.0 || data["gain"] != 1.2 {
		t.Errorf("Unexpected parameters %v", data)
	}
	limits := data["limits"].(map[string]any)
	if limits["setpoint"] != 100.0 || limits["gain"] != 3.5 {
		t.Errorf("Unexpected limits %v", limits)
	}
}

func TestServer_Abort(t *testing.T) {
	f := newTestFlight(t)
	ts := newTestServer(t, f)

	status, response := do(t, http.MethodPost, ts.URL+"/api/v1/abort", "", "")
	if status != http.StatusAccepted {
		t.Fatalf("Expected status %d, got %d", http.StatusAccepted, status)
	}
	if !f.Status().Aborted {
		t.Errorf("Expected the flight to be aborted")
	}
	if data := response.Data.(map[string]any); data["aborted"] != true {
		t.Errorf("Expected status to report the abort, got %v", data)
	}
}

func TestServer_Health(t *testing.T) {
	f := newTestFlight(t)
	v, _ := NewVerifier(testSecret)
	ts := newTestServer(t, f, WithVerifier(v))

	status, response := do(t, http.MethodGet, ts.URL+"/api/v1/health", "", "")
	if status != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, status)
	}

	flightStatus := response.Data.(map[string]any)["flight"].(map[string]any)
	if flightStatus["id"] != f.ID().String() || flightStatus["phase"] != control.PhaseIdle.String() {
		t.Errorf("Unexpected flight status %v", flightStatus)
	}
}

func TestServer_Authentication(t *testing.T) {
	f := newTestFlight(t)
	v, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}
	other, _ := NewVerifier("another secret")

	ts := newTestServer(t, f, WithVerifier(v))
	setpoint := ts.URL + "/api/v1/parameters/setpoint"

	expired, _ := v.Sign(Claims{
		Scopes: []string{ScopeControl},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"wrong secret", signToken(t, other, ScopeControl), http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"read scope only", signToken(t, v, ScopeRead), http.StatusForbidden},
		{"control scope", signToken(t, v, ScopeControl), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := do(t, http.MethodPut, setpoint, tt.token, `{"value": 70}`)
			if status != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, status)
			}
		})
	}

	if got := f.Parameters().Snapshot().Setpoint; got != 70 {
		t.Errorf("Expected only the authorized update to apply, setpoint is %g", got)
	}

	if status, _ := do(t, http.MethodGet, ts.URL+"/api/v1/parameters", signToken(t, v, ScopeRead), ""); status != http.StatusOK {
		t.Errorf("Expected read scope to read parameters, got %d", status)
	}
	if status, _ := do(t, http.MethodPost, ts.URL+"/api/v1/abort", signToken(t, v, ScopeRead), ""); status != http.StatusForbidden {
		t.Errorf("Expected read scope not to abort, got %d", status)
	}
	if f.Status().Aborted {
		t.Errorf("Expected the flight not to be aborted")
	}
}

func TestNewVerifier_EmptySecret(t *testing.T) {
	if _, err := NewVerifier(""); err == nil {
		t.Errorf("Expected an error for an empty secret")
	}
}

func TestVerifier_RejectsOtherAlgorithms(t *testing.T) {
	v, _ := NewVerifier(testSecret)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		Scopes: []string{ScopeControl},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	if _, err = v.Verify(token); err == nil {
		t.Errorf("Expected HS512 token to be rejected")
	}
}
