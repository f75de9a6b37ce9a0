package security

import "testing"

func TestExtractText_StripsTags(t *testing.T) {
	e := NewTextExtractor()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text unchanged",
			input: "just text",
			want:  "just text",
		},
		{
			name:  "simple tags removed",
			input: "<p>hello <strong>world</strong></p>",
			want:  "hello world",
		},
		{
			name:  "script removed entirely",
			input: `<p>safe</p><script>alert("x")</script>`,
			want:  "safe",
		},
		{
			name:  "entities decoded",
			input: "fish &amp; chips&nbsp;today",
			want:  "fish & chips today",
		},
		{
			name:  "whitespace normalized",
			input: "<div>line one</div>\n\n<div>line   two</div>",
			want:  "line one line two",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.ExtractText(tt.input)
			if got != tt.want {
				t.Errorf("ExtractText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractText_Idempotent(t *testing.T) {
	e := NewTextExtractor()

	input := "<p>some <em>styled</em> content</p>"
	once := e.ExtractText(input)
	twice := e.ExtractText(once)

	if once != twice {
		t.Errorf("冪等性が破れている: 1回目=%q 2回目=%q", once, twice)
	}
}

func TestValidateURL(t *testing.T) {
	g := NewSSRFGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"public https", "https://www.sciencedaily.com/rss/health_medicine.xml", false},
		{"public http", "http://example.com/feed", false},
		{"empty", "", true},
		{"file scheme", "file:///etc/passwd", true},
		{"localhost", "http://localhost:8080/feed", true},
		{"loopback ip", "http://127.0.0.1/feed", true},
		{"private ip", "http://10.0.0.5/feed", true},
		{"link local metadata", "http://169.254.169.254/latest/meta-data", true},
		{"no host", "https:///feed.xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestNewSafeClient_ReturnsClient(t *testing.T) {
	g := NewSSRFGuard()
	c := g.NewSafeClient(0, 0)
	if c == nil {
		t.Fatal("NewSafeClient は nil を返してはならない")
	}
}
