package app

import "sync/atomic"

// ActiveConversationReader reports the conversation currently open on screen.
type ActiveConversationReader interface {
	Get() (threadID int64, ok bool)
}

// ActiveConversation tracks the open conversation. Thread ids are positive;
// the zero value tracks none.
type ActiveConversation struct {
	id atomic.Int64
}

// Set records threadID as open. Non-positive ids clear the tracker.
func (a *ActiveConversation) Set(threadID int64) {
	if threadID <= 0 {
		threadID = 0
	}
	a.id.Store(threadID)
}

func (a *ActiveConversation) Clear() {
	a.id.Store(0)
}

func (a *ActiveConversation) Get() (int64, bool) {
	id := a.id.Load()
	return id, id > 0
}
