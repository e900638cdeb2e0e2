// Package prompts holds the text Sanjeevni sends to language models and the
// fixed user-facing messages the orchestration loop falls back to.
//
// Prompt text is Go code rather than config because it is program logic: it
// is interpolated with fmt and checked by tests. The identity and
// capabilities that fill the system prompt come from config.yaml.
package prompts
