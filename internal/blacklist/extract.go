// Package blacklist 实现与黑名单服务（oracle）之间的行协议：
// URL 提取、客户端、响应解析，以及一个可本地运行的参考服务端。
package blacklist

import (
	"iter"
	"regexp"
)

// urlPattern http 或 https，后接 ://，再接一个或多个非空白字符。
// RE2 的 \S 只排除 ASCII 空白，这里显式排除 Unicode 空白（NBSP、全角空格等）。
var urlPattern = regexp.MustCompile(`https?://[^\s\p{Z}\x{85}\x{FEFF}]+`)

// URLs 按出现顺序惰性产出所有文本中的 URL，重复的 URL 会重复产出。
func URLs(texts ...string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, text := range texts {
			for text != "" {
				loc := urlPattern.FindStringIndex(text)
				if loc == nil {
					break
				}
				if !yield(text[loc[0]:loc[1]]) {
					return
				}
				text = text[loc[1]:]
			}
		}
	}
}

// ExtractURLs 返回文本中的全部 URL
func ExtractURLs(text string) []string {
	urls := make([]string, 0)
	for u := range URLs(text) {
		urls = append(urls, u)
	}
	return urls
}
