package domain

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeAudio MessageType = "audio"
)

// InboundMessage is an already-decoded chat event. From is the normalized
// sender phone number, the partition key for all conversation state.
type InboundMessage struct {
	From        string
	ContactName string
	Type        MessageType
	Text        string
	Caption     string
	MediaID     string
}
