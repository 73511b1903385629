package anthropic

// CachedSystemPrompt returns system blocks with a prompt-cache breakpoint.
// The translation instructions are identical for every sub-batch of a task,
// so later calls read them from the cache.
func CachedSystemPrompt(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "5m"},
		},
	}
}
