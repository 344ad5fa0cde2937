package daemon

// Frame types on the console socket
const (
	FrameCommand  = "command"
	FrameLog      = "log"
	FrameResponse = "response"
)

// Frame is one newline-delimited JSON message on the console socket.
// Clients send command frames; the daemon streams log frames to every
// session and sends a response frame to the session that submitted the
// command it answers.
type Frame struct {
	Type string `json:"type"`

	// command frames (client -> daemon)
	Command string `json:"command,omitempty"`

	// log frames (daemon -> clients)
	Content string `json:"content,omitempty"`
	IsError bool   `json:"is_error,omitempty"`

	// response frames (daemon -> submitting client)
	Success bool   `json:"success,omitempty"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}
