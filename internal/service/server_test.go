package service

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/san-kum/jointctl/internal/control"
	"github.com/san-kum/jointctl/internal/estimator"
	"github.com/san-kum/jointctl/internal/filter"
	"github.com/san-kum/jointctl/internal/gravity"
	"github.com/san-kum/jointctl/internal/loop"
)

func newLoop(t *testing.T) *loop.Loop {
	t.Helper()
	bank, err := filter.NewBank(1, 1, []float64{1, 0}, []float64{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	l, err := loop.New(bank, gravity.NewCompensator([]float64{0}, false), estimator.NewKalman(), control.NewNone(), loop.Config{Dt: 0.005})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func do(t *testing.T, s *Server, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func TestSetKalmanParams(t *testing.T) {
	l := newLoop(t)
	s := New(":0", l)

	tests := []struct {
		name   string
		body   string
		status int
		ok     bool
	}{
		{"accepted", `{"q_angle":0.002,"q_rate":0.004,"r_angle":0.05}`, http.StatusOK, true},
		{"zero allowed", `{"q_angle":0,"q_rate":0,"r_angle":0}`, http.StatusOK, true},
		{"negative rejected", `{"q_angle":-0.1,"q_rate":0.004,"r_angle":0.05}`, http.StatusOK, false},
		{"missing field", `{"q_angle":0.1,"q_rate":0.004}`, http.StatusBadRequest, false},
		{"bad json", `{"q_angle":`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := do(t, s, http.MethodPost, "/kalman/params", tt.body)
			if status != tt.status {
				t.Fatalf("status %d, want %d (%s)", status, tt.status, data)
			}
			var resp KalmanResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				t.Fatalf("decode %s: %v", data, err)
			}
			if resp.OK != tt.ok {
				t.Errorf("ok = %v, want %v", resp.OK, tt.ok)
			}
		})
	}
}

func TestGetKalmanParams(t *testing.T) {
	l := newLoop(t)
	s := New(":0", l)

	do(t, s, http.MethodPost, "/kalman/params", `{"q_angle":0.002,"q_rate":0.004,"r_angle":0.05}`)
	do(t, s, http.MethodPost, "/kalman/params", `{"q_angle":-1,"q_rate":0.004,"r_angle":0.05}`)

	status, data := do(t, s, http.MethodGet, "/kalman/params", "")
	if status != http.StatusOK {
		t.Fatalf("status %d", status)
	}
	var p estimator.Params
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatal(err)
	}
	if p != (estimator.Params{QAngle: 0.002, QRate: 0.004, RAngle: 0.05}) {
		t.Errorf("unexpected params %+v", p)
	}
}

func TestGetKalmanCovariance(t *testing.T) {
	l := newLoop(t)
	s := New(":0", l)

	decode := func() KalmanState {
		status, data := do(t, s, http.MethodGet, "/kalman/params", "")
		if status != http.StatusOK {
			t.Fatalf("status %d", status)
		}
		var st KalmanState
		if err := json.Unmarshal(data, &st); err != nil {
			t.Fatal(err)
		}
		return st
	}

	initial := decode()
	if initial.Covariance != [2][2]float64{{1, 0}, {0, 1}} {
		t.Errorf("initial covariance %v, want identity", initial.Covariance)
	}
	if initial.Params != estimator.DefaultParams() {
		t.Errorf("unexpected params %+v", initial.Params)
	}

	for i := 0; i < 50; i++ {
		if _, err := l.Tick(loop.Snapshot{Angles: []float64{0}, Torque: []float64{0}, AccelAngle: 0.1}); err != nil {
			t.Fatal(err)
		}
	}
	st := decode()
	if st.Covariance[0][0] >= 1 || st.Covariance[0][0] <= 0 {
		t.Errorf("angle variance %g should have shrunk from 1", st.Covariance[0][0])
	}
	if st.Covariance[0][1] != st.Covariance[1][0] {
		t.Errorf("asymmetric covariance %v", st.Covariance)
	}
}

func TestStatus(t *testing.T) {
	l := newLoop(t)
	s := New(":0", l)

	for i := 0; i < 3; i++ {
		if _, err := l.Tick(loop.Snapshot{Angles: []float64{0}, Torque: []float64{1}}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := l.Tick(loop.Snapshot{}); err != nil {
		t.Fatal(err)
	}

	status, data := do(t, s, http.MethodGet, "/status", "")
	if status != http.StatusOK {
		t.Fatalf("status %d", status)
	}
	var st loop.Status
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatal(err)
	}
	if st.Tick != 4 || st.Skipped != 1 {
		t.Errorf("unexpected status %+v", st)
	}
}
