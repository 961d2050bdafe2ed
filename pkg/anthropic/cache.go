package anthropic

// BuildCachedSystemBlocks wraps a static system prompt in a cache-controlled
// block so repeated calls reuse the processed prefix.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "1h"},
		},
	}
}
