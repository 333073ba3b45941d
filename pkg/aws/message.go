package aws

// Message is one outbound SNS or SQS message.
type Message struct {
	Body       []byte
	Attributes map[string]string
	// GroupID and DedupID are only sent to FIFO topics and queues.
	GroupID string
	DedupID string
}

func isFIFO(target string) bool {
	return len(target) > 5 && target[len(target)-5:] == ".fifo"
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
