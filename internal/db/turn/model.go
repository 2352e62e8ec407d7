package turn

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// rank breaks CreatedAt ties: a user turn always precedes the assistant turn
// of the same tick.
func (r Role) rank() int {
	if r == RoleUser {
		return 0
	}
	return 1
}

// SeedContent is the introduction every new conversation starts with.
const SeedContent = "Hi! I'm your assistant. Ask me anything and I'll remember what we talked about."

var ErrInvalidTurn = errors.New("invalid turn")

type Turn struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Seed      bool      `json:"seed,omitempty"`
}

func New(userID string, role Role, content string, createdAt time.Time) Turn {
	return Turn{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: createdAt,
	}
}

// NewSeed builds the synthetic assistant turn that opens a conversation.
func NewSeed(userID string, createdAt time.Time) Turn {
	t := New(userID, RoleAssistant, SeedContent, createdAt)
	t.Seed = true
	return t
}

func (t Turn) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidTurn)
	}
	if !t.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidTurn, t.Role)
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("%w: zero createdAt", ErrInvalidTurn)
	}
	if t.Seed && t.Role != RoleAssistant {
		return fmt.Errorf("%w: seed turn must be an assistant turn", ErrInvalidTurn)
	}
	return nil
}

// Less is the total order of turns within one conversation.
func Less(a, b Turn) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if ra, rb := a.Role.rank(), b.Role.rank(); ra != rb {
		return ra < rb
	}
	return a.ID < b.ID
}

// Sort orders turns ascending, oldest first.
func Sort(turns []Turn) {
	sort.SliceStable(turns, func(i, j int) bool {
		return Less(turns[i], turns[j])
	})
}
