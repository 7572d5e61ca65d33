package tools

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"
)

var zhWeekdays = [...]string{"星期日", "星期一", "星期二", "星期三", "星期四", "星期五", "星期六"}

// TimeTool returns the get_current_time tool. now defaults to time.Now.
func TimeTool(now func() time.Time) *Tool {
	if now == nil {
		now = time.Now
	}
	return &Tool{
		Name:        "get_current_time",
		Description: "获取当前时间。当用户询问现在几点、当前时间、日期等时间相关问题时使用此工具。",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": "时区，默认为 Asia/Shanghai（北京时间）",
				},
				"format": map[string]any{
					"type":        "string",
					"description": "时间格式: 'full' (完整日期时间), 'time' (仅时间), 'date' (仅日期)",
					"enum":        []string{"full", "time", "date"},
				},
			},
			"required": []string{},
		},
		Ephemeral: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			tz, _ := args["timezone"].(string)
			if tz == "" {
				tz = DefaultTimezoneFromContext(ctx)
			}
			format, _ := args["format"].(string)

			loc, err := time.LoadLocation(tz)
			if err != nil {
				return "", fmt.Errorf("unknown timezone %q", tz)
			}
			return formatZH(now().In(loc), format), nil
		},
	}
}

// formatZH renders t the way zh-CN locales print dates:
// 2026/10/19 星期一 15:04:05. Unknown formats fall back to full.
func formatZH(t time.Time, format string) string {
	date := t.Format("2006/01/02") + " " + zhWeekdays[t.Weekday()]
	clock := t.Format("15:04:05")
	switch format {
	case "time":
		return clock
	case "date":
		return date
	default:
		return date + " " + clock
	}
}
