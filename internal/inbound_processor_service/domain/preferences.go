package domain

// Preferences is the user-preference snapshot a pipeline run works with.
type Preferences struct {
	// DropBlocked discards blocked messages instead of storing them.
	DropBlocked     bool
	BlockingManager BlockingManager
}
