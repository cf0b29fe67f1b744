package doi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"index.html":       "text/html",
		"page.htm":         "text/html",
		"style.css":        "text/css",
		"app.min.js":       "text/javascript",
		"INDEX.HTML":       "text/html",
		"data.bin":         "",
		"README":           "",
		"archive.html.zip": "",
		"trailing.":        "",
	}
	for name, want := range cases {
		got, ok := Classify(name)
		assert.Equal(t, want, got, name)
		assert.Equal(t, want != "", ok, name)
	}
}

func TestEscapeContentURL(t *testing.T) {
	assert.Equal(t,
		"https://z.example/files/my%20style.css/content",
		EscapeContentURL("https://z.example/files/my style.css/content", "my style.css"))

	// 只替换最后一次出现的位置。
	assert.Equal(t,
		"https://z.example/a b.css/files/a%20b.css/content",
		EscapeContentURL("https://z.example/a b.css/files/a b.css/content", "a b.css"))

	assert.Equal(t,
		"https://z.example/files/index.html/content",
		EscapeContentURL("https://z.example/files/index.html/content", "index.html"))

	assert.Equal(t,
		"https://z.example/other",
		EscapeContentURL("https://z.example/other", "x y.js"))
}
