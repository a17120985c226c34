package buildopts

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		want  Options
	}{
		{
			name:  "empty",
			value: "",
			want:  Options{Parallel: 1},
		},
		{
			name:  "nocheck only",
			value: "nocheck",
			want:  Options{NoCheck: true, Parallel: 1},
		},
		{
			name:  "space separated",
			value: "nocheck nodoc nostrip",
			want:  Options{NoCheck: true, NoDoc: true, NoStrip: true, Parallel: 1},
		},
		{
			name:  "comma separated",
			value: "noopt,terse",
			want:  Options{NoOpt: true, Terse: true, Parallel: 1},
		},
		{
			name:  "parallel",
			value: "parallel=8",
			want:  Options{Parallel: 8},
		},
		{
			name:  "malformed parallel degrades to sequential",
			value: "parallel=banana",
			want:  Options{Parallel: 1},
		},
		{
			name:  "zero parallel degrades to sequential",
			value: "parallel=0",
			want:  Options{Parallel: 1},
		},
		{
			name:  "unknown tokens retained",
			value: "nocheck hardening=+all",
			want:  Options{NoCheck: true, Parallel: 1, Unknown: []string{"hardening=+all"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.value)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Parse(%q) = %+v, want %+v", tt.value, got, tt.want)
			}
		})
	}
}

func TestTokensRoundTrip(t *testing.T) {
	t.Parallel()

	value := "nocheck nodoc parallel=4 hardening=+all"
	parsed := Parse(value)
	again := Parse(parsed.String())

	if !reflect.DeepEqual(parsed, again) {
		t.Fatalf("round trip mismatch: %+v != %+v", parsed, again)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvBuildOptions, "nocheck parallel=2")

	got := FromEnv()
	if !got.NoCheck {
		t.Error("FromEnv().NoCheck = false, want true")
	}
	if got.Parallel != 2 {
		t.Errorf("FromEnv().Parallel = %d, want 2", got.Parallel)
	}
}
