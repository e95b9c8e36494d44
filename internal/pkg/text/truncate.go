// Package text 提供推送消息用的文本修剪工具。
package text

import "unicode/utf8"

// Truncate 把超过 max 字节的文本截断并补省略号。截断点回退到
// 完整 UTF-8 字符边界,不会产生半个汉字。max <= 0 表示不截断。
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
