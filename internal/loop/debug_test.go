package loop

import "testing"

func TestDebugEnabled(t *testing.T) {
	tests := []struct {
		level int
		tick  uint64
		want  bool
	}{
		{0, 0, false},
		{0, 200, false},
		{1, 0, true},
		{1, 199, false},
		{1, 400, true},
		{2, 7, true},
	}
	for _, tt := range tests {
		if got := debugEnabled(tt.level, tt.tick); got != tt.want {
			t.Errorf("debugEnabled(%d, %d) = %v, want %v", tt.level, tt.tick, got, tt.want)
		}
	}
}
