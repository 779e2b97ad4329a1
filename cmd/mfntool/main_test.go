package main

import (
	"errors"
	"fmt"
	"testing"

	"mfntool/internal/model"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{errors.New("boom"), ExitError},
		{fmt.Errorf("normalize: %w", &model.SchemaError{Unknown: []string{"x"}}), ExitSchemaError},
		{fmt.Errorf("convert: %w", &model.DataIntegrityError{Field: "ppp_rate"}), ExitIntegrityError},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"germany=1.1", " france = 0.25 "})
	if err != nil {
		t.Fatalf("parseAssignments: %v", err)
	}
	if got["germany"] != 1.1 || got["france"] != 0.25 {
		t.Errorf("got %v", got)
	}

	for _, bad := range []string{"germany", "=1", "italy=abc"} {
		if _, err := parseAssignments([]string{bad}); err == nil {
			t.Errorf("parseAssignments(%q): expected error", bad)
		}
	}
}
