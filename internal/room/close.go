package room

import "fmt"

// WebSocket close codes the room uses or reports.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
)

var closeDescriptions = map[int]string{
	1000: "正常关闭",
	1001: "客户端离开（如页面关闭）",
	1002: "协议错误",
	1003: "不支持的数据类型",
	1005: "客户端主动断开",
	1006: "异常断开（网络问题）",
	1008: "策略违规",
	1009: "消息过大",
	1011: "服务器错误",
}

// CloseReason describes a close code for logs. An explicit reason from
// the peer wins over the generic description.
func CloseReason(code int, reason string) string {
	if reason != "" {
		return fmt.Sprintf("代码: %d, 原因: %s", code, reason)
	}
	if d, ok := closeDescriptions[code]; ok {
		return d
	}
	return fmt.Sprintf("未知关闭码: %d", code)
}
