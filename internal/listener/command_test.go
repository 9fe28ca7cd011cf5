package listener

import (
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	testCases := []struct {
		name    string
		line    string
		want    Command
		wantErr bool
	}{
		{name: "queue", line: "queue", want: Command{Verb: VerbQueue}},
		{name: "exit is case insensitive", line: "  EXIT ", want: Command{Verb: VerbExit}},
		{name: "status", line: "status 7f3c", want: Command{Verb: VerbStatus, Arg: "7f3c"}},
		{
			name: "submit with typed trigger values",
			line: "submit daily branch=main n=3 dry=true note=a=b",
			want: Command{Verb: VerbSubmit, Arg: "daily", Trigger: map[string]any{
				"branch": "main", "n": float64(3), "dry": true, "note": "a=b",
			}},
		},
		{name: "submit bare", line: "submit daily", want: Command{Verb: VerbSubmit, Arg: "daily", Trigger: map[string]any{}}},
		{name: "submit without task", line: "submit", wantErr: true},
		{name: "bad pair", line: "submit daily =x", wantErr: true},
		{name: "status without id", line: "status", wantErr: true},
		{name: "queue with args", line: "queue now", wantErr: true},
		{name: "unknown", line: "deploy prod", wantErr: true},
		{name: "empty", line: "   ", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCommand(tc.line)
			if tc.wantErr {
				if err == nil {
					t.Errorf("ParseCommand(%q) = %+v, want error", tc.line, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand(%q) error: %v", tc.line, err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ParseCommand(%q) = %+v, want %+v", tc.line, got, tc.want)
			}
		})
	}
}
