package hal

import "testing"

func TestSpeed_String(t *testing.T) {
	tests := []struct {
		speed Speed
		want  string
	}{
		{SpeedUnknown, "unknown"},
		{SpeedFull, "full"},
		{SpeedHigh, "high"},
		{Speed(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.speed.String(); got != tt.want {
				t.Errorf("Speed.String() = %q, want %q", got, tt.want)
			}
		})
	}
}
