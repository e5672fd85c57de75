package domain

// ChatPayload is the payload of a chat event.
type ChatPayload struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ToolCallPayload is the payload of a tool_call event.
type ToolCallPayload struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResultPayload is the payload of a tool_result event.
type ToolResultPayload struct {
	Tool   string `json:"tool"`
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
}

// StatusChangePayload is the payload of a status_change event.
type StatusChangePayload struct {
	From      ScanStatus `json:"from"`
	To        ScanStatus `json:"to"`
	HasReport bool       `json:"has_report,omitempty"`
}

// ErrorPayload is the payload of an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
