package frontmatter_test

import (
	"testing"

	"github.com/alnah/go-docpress/internal/frontmatter"
)

func TestSplit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		wantBody string
		wantMeta map[string]interface{}
		wantErr  bool
	}{
		{
			name:     "front matter and body",
			input:    "---\ntitle: Intro\ndraft: true\n---\n# Heading\n",
			wantBody: "# Heading\n",
			wantMeta: map[string]interface{}{"title": "Intro", "draft": true},
		},
		{
			name:     "no front matter",
			input:    "# Heading\n\nBody text.\n",
			wantBody: "# Heading\n\nBody text.\n",
			wantMeta: map[string]interface{}{},
		},
		{
			name:     "empty input",
			input:    "",
			wantBody: "",
			wantMeta: map[string]interface{}{},
		},
		{
			name:    "malformed front matter",
			input:   "---\ntitle: [unclosed\n---\nbody\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			meta, body, err := frontmatter.Split([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
			if meta == nil {
				t.Fatal("meta is nil, want a map")
			}
			if len(meta) != len(tt.wantMeta) {
				t.Fatalf("meta = %v, want %v", meta, tt.wantMeta)
			}
			for k, want := range tt.wantMeta {
				if got := meta[k]; got != want {
					t.Errorf("meta[%q] = %v, want %v", k, got, want)
				}
			}
		})
	}
}
