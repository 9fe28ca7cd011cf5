package list

import (
	"context"
	"testing"
)

func TestHandleListAction(t *testing.T) {
	testCases := []struct {
		name      string
		operation string
		params    map[string]any
		key       string
		want      string
		wantErr   bool
	}{
		{
			name:      "pluck field",
			operation: "pluck",
			params:    map[string]any{"list_json": `[{"id":1,"n":"a"},{"id":2},{"id":3,"n":"c"}]`, "field": "n"},
			key:       "values_json",
			want:      `["a","c"]`,
		},
		{
			name:      "unique keeps first occurrence",
			operation: "unique",
			params:    map[string]any{"list_json": `["b","a","b",1,1]`},
			key:       "list_json",
			want:      `["b","a","1"]`,
		},
		{name: "bad json", operation: "unique", params: map[string]any{"list_json": "{"}, wantErr: true},
		{name: "unknown operation", operation: "concat", params: map[string]any{}, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := HandleListAction(context.Background(), tc.operation, tc.params)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if got := out[tc.key]; got != tc.want {
				t.Errorf("%s = %v, want %s", tc.key, got, tc.want)
			}
		})
	}
}
