package music

// Track describes one queued item. Never mutated after creation.
type Track struct {
	Title       string
	WebpageURL  string
	StreamURL   string
	RequestedBy string
}
