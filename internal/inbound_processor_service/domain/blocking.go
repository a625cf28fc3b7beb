package domain

import (
	"context"
	"fmt"
)

// BlockingAction is the verdict of a BlockingPolicy for one address.
// It is one of NoAction, Block or Unblock.
type BlockingAction interface {
	isBlockingAction()
	String() string
}

// NoAction leaves the conversation's blocked state unchanged.
type NoAction struct{}

// Block blocks the conversation for Reason.
type Block struct {
	Reason string
}

// Unblock clears a previous block.
type Unblock struct{}

func (NoAction) isBlockingAction() {}
func (Block) isBlockingAction()    {}
func (Unblock) isBlockingAction()  {}

func (NoAction) String() string { return "none" }
func (Block) String() string    { return "block" }
func (Unblock) String() string  { return "unblock" }

// ParseBlockingAction rebuilds an action from its stored name. reason is only
// kept for "block".
func ParseBlockingAction(name, reason string) (BlockingAction, error) {
	switch name {
	case "block":
		return Block{Reason: reason}, nil
	case "unblock":
		return Unblock{}, nil
	case "none":
		return NoAction{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlockingAction, name)
	}
}

// ReasonOf returns the block reason carried by action, or "".
func ReasonOf(action BlockingAction) string {
	if b, ok := action.(Block); ok {
		return b.Reason
	}
	return ""
}

// BlockingPolicy decides what to do with messages from an address.
type BlockingPolicy interface {
	GetAction(ctx context.Context, address string) (BlockingAction, error)
}
