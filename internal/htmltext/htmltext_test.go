package htmltext

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  hello   world ", "hello world"},
		{"entities", "Don&#39;t forget &amp; bring snacks", "Don't forget & bring snacks"},
		{"tags", "<b>Midterm</b> moved to <i>Tuesday</i>", "Midterm moved to Tuesday"},
		{"blocks separate words", "<p>one</p><p>two</p><div>three</div>", "one two three"},
		{"line breaks", "first<br>second", "first second"},
		{"script dropped", "<script>alert(1)</script>visible", "visible"},
		{"style dropped", "<style>p{color:red}</style><p>body</p>", "body"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
