package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// Clean 清理用户提交的富文本字段。
//
// 去掉所有 HTML 标记，再把换行转成展示用的 <br>（卡片描述和自我介绍
// 在页面上是作为 HTML 片段渲染的）。
func Clean(text string) string {
	cleaned := policy.Sanitize(strings.TrimSpace(text))
	cleaned = strings.ReplaceAll(cleaned, "\r\n", "\n")
	cleaned = strings.ReplaceAll(cleaned, "\r", "\n")
	return strings.ReplaceAll(cleaned, "\n", "<br>")
}
