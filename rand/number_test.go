package rand

import (
	"testing"
)

func TestRandomIntBetweenInclusive(t *testing.T) {
	type args struct {
		min, max       int
		isMinInclusive bool
		isMaxInclusive bool
	}
	tests := []struct {
		name      string
		args      args
		wantMin   int
		wantMax   int
		wantPanic bool
	}{
		{
			name:      "equal bounds, min inclusive only",
			args:      args{min: 3, max: 3, isMinInclusive: true, isMaxInclusive: false},
			wantPanic: true,
		},
		{
			name:      "equal bounds, max inclusive only",
			args:      args{min: 3, max: 3, isMinInclusive: false, isMaxInclusive: true},
			wantPanic: true,
		},
		{
			name:      "min greater than max",
			args:      args{min: 5, max: 3, isMinInclusive: true, isMaxInclusive: true},
			wantPanic: true,
		},
		{
			name:      "not enough room for an exclusive range",
			args:      args{min: 2, max: 3, isMinInclusive: false, isMaxInclusive: false},
			wantPanic: true,
		},
		{
			name:    "both bounds inclusive",
			args:    args{min: 2, max: 5, isMinInclusive: true, isMaxInclusive: true},
			wantMin: 2,
			wantMax: 5,
		},
		{
			name:    "min inclusive only",
			args:    args{min: 2, max: 5, isMinInclusive: true, isMaxInclusive: false},
			wantMin: 2,
			wantMax: 4,
		},
		{
			name:    "max inclusive only",
			args:    args{min: 2, max: 5, isMinInclusive: false, isMaxInclusive: true},
			wantMin: 3,
			wantMax: 5,
		},
		{
			name:    "both bounds exclusive",
			args:    args{min: 2, max: 6, isMinInclusive: false, isMaxInclusive: false},
			wantMin: 3,
			wantMax: 5,
		},
		{
			name:    "equal bounds, both inclusive",
			args:    args{min: 3, max: 3, isMinInclusive: true, isMaxInclusive: true},
			wantMin: 3,
			wantMax: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if tt.wantPanic && r == nil {
					t.Errorf("expected panic but did not")
				}
				if !tt.wantPanic && r != nil {
					t.Errorf("unexpected panic: %v", r)
				}
			}()

			if tt.wantPanic {
				RandomIntBetweenInclusive(tt.args.min, tt.args.max, tt.args.isMinInclusive, tt.args.isMaxInclusive)
				return
			}

			values := make(map[int]bool)
			for i := 0; i < 100; i++ {
				got := RandomIntBetweenInclusive(tt.args.min, tt.args.max, tt.args.isMinInclusive, tt.args.isMaxInclusive)
				if got < tt.wantMin || got > tt.wantMax {
					t.Errorf("got value out of range: %d (expected between %d and %d)", got, tt.wantMin, tt.wantMax)
				}
				values[got] = true
			}
			if tt.wantMin != tt.wantMax && len(values) != (tt.wantMax-tt.wantMin+1) {
				t.Errorf("not all values in range returned: got %v", values)
			}
		})
	}
}
