// Package prompts contains the text emoroom sends to models and the fixed
// answers it falls back to.
//
// Prompt text is Go code rather than config because it is program logic:
// it is interpolated with fmt.Sprintf and checked by tests. Each prompt
// category gets its own file with an exported function that takes the
// dynamic parts and returns the finished string.
package prompts
