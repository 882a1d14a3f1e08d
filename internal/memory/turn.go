// Package memory keeps the conversation log the central agent reads its
// history from. The log is append-only: turns are never edited or removed.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role says who produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is one entry of the conversation log. Log order is the order of
// Append calls; CreatedAt is informational.
type Turn struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// UserTurn creates a turn holding a user query.
func UserTurn(content string) Turn {
	return Turn{ID: uuid.New(), Role: RoleUser, Content: content, CreatedAt: time.Now().UTC()}
}

// AgentTurn creates a turn holding an agent answer.
func AgentTurn(content string) Turn {
	return Turn{ID: uuid.New(), Role: RoleAgent, Content: content, CreatedAt: time.Now().UTC()}
}

// Reader gives read access to the log.
type Reader interface {
	// Turns returns a copy of the log in append order.
	Turns(ctx context.Context) ([]Turn, error)
}

// Store is a Reader that can also append. A single Append call is
// written as one batch.
type Store interface {
	Reader
	Append(ctx context.Context, turns ...Turn) error
	Close() error
}

// prepare fills missing IDs and timestamps and rejects unknown roles.
func prepare(turns []Turn) ([]Turn, error) {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		if t.Role != RoleUser && t.Role != RoleAgent {
			return nil, fmt.Errorf("turn %d: invalid role %q", i, t.Role)
		}
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		out[i] = t
	}
	return out, nil
}

// Last returns at most n trailing turns of turns; n <= 0 means all.
func Last(turns []Turn, n int) []Turn {
	if n <= 0 || n >= len(turns) {
		return turns
	}
	return turns[len(turns)-n:]
}
