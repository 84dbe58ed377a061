package rtn

import (
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil is Good", nil, Good},
		{"direct", New(WrongDims, "len %d != %d", 3, 4), WrongDims},
		{"wrapped", fmt.Errorf("compress: %w", New(InvalidParam, "bpp out of range")), InvalidParam},
		{"foreign error", fmt.Errorf("boom"), Error},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecoverable(t *testing.T) {
	if !BitstreamExhausted.Recoverable() {
		t.Error("BitstreamExhausted should be recoverable")
	}
	if Error.Recoverable() {
		t.Error("Error should not be recoverable")
	}
}

func TestErrorString(t *testing.T) {
	err := New(WrongDims, "len 3 != 4")
	if got, want := err.Error(), "WrongDims: len 3 != 4"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
