package content

import "testing"

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "  hello world \n", want: "hello world"},
		{name: "blocks", in: "<h1>Title</h1><p>first   line</p><p>second</p>", want: "Title\nfirst line\nsecond"},
		{name: "entities", in: "<p>AI &amp; you &lt;3</p>", want: "AI & you <3"},
		{name: "script dropped", in: "<p>keep</p><script>var x = 1;</script><style>p{}</style>", want: "keep"},
		{name: "list", in: "<ul><li>一</li><li>二</li></ul>", want: "一\n二"},
		{name: "br", in: "a<br>b<br/>c", want: "a\nb\nc"},
		{name: "empty", in: "<div> </div>", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.in); got != tt.want {
				t.Fatalf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
