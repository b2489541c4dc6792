package anthropic

// BuildCachedSystemBlocks wraps a system prompt in a single block with an
// ephemeral cache breakpoint. An empty ttl uses the API default (5m).
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: ttl},
		},
	}
}

// FewShot appends example exchanges ahead of the real user turn. Each example
// is a user input paired with the assistant answer it should produce.
func FewShot(examples [][2]string, input string) []Message {
	msgs := make([]Message, 0, len(examples)*2+1)
	for _, ex := range examples {
		msgs = append(msgs,
			Message{Role: "user", Content: ex[0]},
			Message{Role: "assistant", Content: ex[1]},
		)
	}
	return append(msgs, Message{Role: "user", Content: input})
}
