package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonUnknownTool     ReasonCode = "unknown_tool"
	ReasonValidation      ReasonCode = "validation"
	ReasonHandlerFault    ReasonCode = "handler_fault"
	ReasonToolTimeout     ReasonCode = "tool_timeout"
	ReasonSessionRequired ReasonCode = "session_required"

	ReasonDuplicateTool ReasonCode = "duplicate_tool"
	ReasonPluginLoad    ReasonCode = "plugin_load"

	ReasonLLMGenerate  ReasonCode = "llm_generate"
	ReasonLLMRateLimit ReasonCode = "llm_rate_limit"

	ReasonConfig        ReasonCode = "config"
	ReasonTransportSend ReasonCode = "transport_send"
)
