package prompts

// ToolResultsPreamble opens every fold-back turn, before the per-tool
// narration.
const ToolResultsPreamble = "I'll help you with that. Let me use some tools to get the information you need."

// ToolResultsInstruction is the user turn that follows a fold-back turn. It
// asks the model for an answer grounded in the tool output it was just shown.
const ToolResultsInstruction = "Please provide a helpful response based on the tool results above."

// DepthExhaustedMessage is returned verbatim when the model keeps asking for
// tools after the tool-round budget is spent.
const DepthExhaustedMessage = "I've reached the maximum depth of tool calls and cannot process further."

// ErrorApology is returned, and persisted, when the model backend fails.
const ErrorApology = "I'm sorry, I ran into a problem while preparing a response. Please try again in a moment."
