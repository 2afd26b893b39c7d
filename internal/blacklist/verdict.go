package blacklist

import "strings"

// 协议动词
const (
	VerbGet    = "GET"
	VerbPost   = "POST"
	VerbDelete = "DELETE"
)

// 状态行
const (
	StatusOK         = "200 Ok"
	StatusCreated    = "201 Created"
	StatusNoContent  = "204 No Content"
	StatusBadRequest = "400 Bad Request"
	StatusNotFound   = "404 Not Found"
)

// ParseVerdict 解析 GET 响应，返回 URL 是否在黑名单中。
//
// 响应为三行：状态行、空行、两个布尔值。只有状态行为 "200 Ok" 且两个值都是
// 字面量 "true" 时才判定为命中；其余任何形式（缺行、缺值、单个 true）都视为未命中。
// 这是全项目唯一的判定规则。
func ParseVerdict(response string) bool {
	lines := strings.Split(response, "\n")
	if len(lines) < 3 {
		return false
	}
	if strings.TrimRight(lines[0], "\r") != StatusOK {
		return false
	}
	fields := strings.Fields(lines[2])
	if len(fields) < 2 {
		return false
	}
	return fields[0] == "true" && fields[1] == "true"
}

// StatusLine 返回响应的第一行
func StatusLine(response string) string {
	line, _, _ := strings.Cut(response, "\n")
	return strings.TrimRight(line, "\r")
}

// ParseStatus 检查 POST/DELETE 响应的状态行是否以期望的状态码开头，
// 返回原始状态行供调用方作为失败详情。
func ParseStatus(response, wantCode string) (string, bool) {
	line := StatusLine(response)
	return line, strings.HasPrefix(line, wantCode)
}
