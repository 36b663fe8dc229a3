package domain

type PushPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type PushResult struct {
	Token             string
	Success           bool
	Err               error
	ShouldRemoveToken bool
}
