package filter

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/jointctl/internal/dynamo"
)

func TestButterworthMatchesOctave(t *testing.T) {
	ff, fb, err := Butterworth(2, 5, 400)
	if err != nil {
		t.Fatalf("design failed: %v", err)
	}

	wantFF := []float64{0.0014603, 0.0029206, 0.0014603}
	wantFB := []float64{1.0, -1.88903, 0.89487}

	for i := range wantFF {
		if math.Abs(ff[i]-wantFF[i]) > 1e-5 {
			t.Errorf("ff[%d] = %.7f, want %.7f", i, ff[i], wantFF[i])
		}
		if math.Abs(fb[i]-wantFB[i]) > 1e-5 {
			t.Errorf("fb[%d] = %.7f, want %.7f", i, fb[i], wantFB[i])
		}
	}
}

func TestButterworthUnityDCGain(t *testing.T) {
	for order := 1; order <= 5; order++ {
		ff, fb, err := Butterworth(order, 20, 1000)
		if err != nil {
			t.Fatalf("order %d: %v", order, err)
		}
		if len(ff) != order+1 || len(fb) != order+1 {
			t.Fatalf("order %d: got %d/%d coefficients", order, len(ff), len(fb))
		}
		f, _ := New(order, ff, fb)
		if g := f.DCGain(); math.Abs(g-1) > 1e-9 {
			t.Errorf("order %d: dc gain %v, want 1", order, g)
		}
	}
}

func TestButterworthStepSettles(t *testing.T) {
	ff, fb, _ := Butterworth(3, 10, 500)
	f, _ := New(3, ff, fb)

	var y float64
	for i := 0; i < 2000; i++ {
		y = f.Step(1.0)
	}
	if math.Abs(y-1) > 1e-6 {
		t.Errorf("step response settled at %v, want 1", y)
	}
}

func TestButterworthInvalid(t *testing.T) {
	tests := []struct {
		name             string
		order            int
		cutoff, sampling float64
	}{
		{"zero order", 0, 5, 200},
		{"zero cutoff", 2, 0, 200},
		{"above nyquist", 2, 150, 200},
		{"zero sampling", 2, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Butterworth(tt.order, tt.cutoff, tt.sampling)
			if !errors.Is(err, dynamo.ErrInvalidParameter) {
				t.Errorf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}
