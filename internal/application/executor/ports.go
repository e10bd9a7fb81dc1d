package executor

import "context"

// ContentWriter persists generated artifacts. It returns the stored location.
type ContentWriter interface {
	Write(ctx context.Context, relPath string, content []byte) (string, error)
}

// Message is an outbound notification composed by an agent.
type Message struct {
	Channel string `json:"channel"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	TaskID  string `json:"taskId"`
}

// Notifier delivers messages to an external channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Ports are the capabilities handed to built-in executors.
type Ports struct {
	Content  ContentWriter
	Notifier Notifier
}
