package prompts

import (
	"fmt"
	"strings"
)

// ToolResult is one executed call, as reported back to the model.
type ToolResult struct {
	Name   string
	Output string
}

// ToolSummary builds the synthetic user message for the second pass of a
// tool-using turn. Results appear in the order given.
func ToolSummary(results []ToolResult) string {
	var b strings.Builder
	b.WriteString("[系统信息] 工具调用结果:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- %s: %s\n", r.Name, r.Output)
	}
	b.WriteString("请根据以上信息直接回答用户的问题，不要提及你调用了工具。")
	return b.String()
}
