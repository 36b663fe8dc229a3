package domain

// ReadReceipt groups the messages of one sender that a reader has just read.
type ReadReceipt struct {
	ConversationID ConversationID
	SenderID       UserID
	ReaderID       UserID
	MessageIDs     []string
}

// DeliveredMessage is a message that reached its recipient's device.
type DeliveredMessage struct {
	MessageID      string
	ConversationID ConversationID
	SenderID       UserID
	RecipientID    UserID
}
