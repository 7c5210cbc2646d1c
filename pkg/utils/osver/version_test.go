package osver

import "testing"

func TestAtLeast(t *testing.T) {
	tests := []struct {
		v, other Version
		want     bool
	}{
		{Version{14, 2, 1}, Version{10, 9, 0}, true},
		{Version{10, 9, 0}, Version{10, 9, 0}, true},
		{Version{10, 8, 5}, Version{10, 9, 0}, false},
		{Version{10, 9, 0}, Version{10, 9, 1}, false},
		{Version{11, 0, 0}, Version{10, 15, 7}, true},
	}

	for _, tt := range tests {
		if got := tt.v.AtLeast(tt.other); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %t, want %t", tt.v, tt.other, got, tt.want)
		}
	}
}
