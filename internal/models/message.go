package models

// Message is one input line on its way to the webhook.
type Message struct {
	ID   string
	Seq  int
	Text string
}

func NewMessage(seq int, text string) Message {
	return Message{
		ID:   NewID("msg"),
		Seq:  seq,
		Text: text,
	}
}
