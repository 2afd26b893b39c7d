package blacklist

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", []string{}},
		{"no urls", "hello world, ftp://not.this", []string{}},
		{"single", "visit http://a.com today", []string{"http://a.com"}},
		{"https", "see https://b.org/path?q=1", []string{"https://b.org/path?q=1"}},
		{"in order", "x https://one.io y http://two.io z", []string{"https://one.io", "http://two.io"}},
		{"duplicates kept", "http://a.com http://a.com", []string{"http://a.com", "http://a.com"}},
		{"trailing punctuation kept", "go to http://a.com.", []string{"http://a.com."}},
		{"bare scheme ignored", "http:// alone", []string{}},
		{"newline terminates", "http://a.com\nhttp://b.com", []string{"http://a.com", "http://b.com"}},
		{"nbsp terminates", "see http://a.test\u00a0and\u2003http://b.test", []string{"http://a.test", "http://b.test"}},
		{"ideographic space terminates", "http://a.test\u3000http://b.test", []string{"http://a.test", "http://b.test"}},
		{"line separator terminates", "http://a.test\u2028http://b.test\ufeff", []string{"http://a.test", "http://b.test"}},
		{"non-ascii path kept", "http://例子.测试/路径", []string{"http://例子.测试/路径"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractURLs(tt.text))
		})
	}
}

func TestURLs_MultipleTexts(t *testing.T) {
	got := slices.Collect(URLs("subject http://s.com", "", "body https://b.com and http://s.com"))
	assert.Equal(t, []string{"http://s.com", "https://b.com", "http://s.com"}, got)
}

func TestURLs_StopsEarly(t *testing.T) {
	var seen []string
	for u := range URLs("http://1.com http://2.com http://3.com") {
		seen = append(seen, u)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"http://1.com", "http://2.com"}, seen)
}
