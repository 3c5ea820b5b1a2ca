package ril

import (
	"errors"
	"fmt"
	"sync"

	"github.com/skobkin/rilcore/internal/events"
)

var (
	// ErrNoFreeID is returned when every wire id is taken by an outstanding request.
	ErrNoFreeID = errors.New("no free request id")
	// ErrUnknownToken is returned for tokens that hold no id.
	ErrUnknownToken = errors.New("unknown token")
)

// maxID is the largest wire id; id 0 is reserved for unsolicited traffic.
const maxID = 255

// Tokens maps caller tokens to the one byte ids carried as mseq on the wire.
// Ids are handed out round robin so a just released id is not reused at once.
type Tokens struct {
	mu      sync.Mutex
	byToken map[events.Token]uint8
	byID    [maxID + 1]events.Token
	used    [maxID + 1]bool
	last    uint8
}

func NewTokens() *Tokens {
	return &Tokens{byToken: make(map[events.Token]uint8)}
}

// Register returns the id of token, allocating one if needed.
func (t *Tokens) Register(token events.Token) (uint8, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.byToken[token]; ok {
		return id, nil
	}
	id := t.last
	for range maxID {
		id++
		if id == 0 {
			id = 1
		}
		if !t.used[id] {
			t.used[id] = true
			t.byID[id] = token
			t.byToken[token] = id
			t.last = id

			return id, nil
		}
	}

	return 0, fmt.Errorf("%w: %d requests outstanding", ErrNoFreeID, len(t.byToken))
}

func (t *Tokens) IDOf(token events.Token) (uint8, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.byToken[token]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownToken, token)
	}

	return id, nil
}

func (t *Tokens) TokenOf(id uint8) (events.Token, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.used[id] {
		return 0, false
	}

	return t.byID[id], true
}

// Release frees the id held by token. Unknown tokens are ignored.
func (t *Tokens) Release(token events.Token) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.byToken[token]
	if !ok {
		return
	}
	delete(t.byToken, token)
	t.used[id] = false
	t.byID[id] = 0
}

// Len returns the number of outstanding tokens.
func (t *Tokens) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.byToken)
}
