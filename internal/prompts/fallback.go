package prompts

import "fmt"

// EmptyAnswerFallback replaces an answer that is empty after cleaning.
const EmptyAnswerFallback = "Hmm... 我好像没听清。"

// ErrorAnswer is the degraded answer for a turn that failed; it still
// tells the user what went wrong.
func ErrorAnswer(err error) string {
	return fmt.Sprintf("(AI 连接打瞌睡了: %v)", err)
}
