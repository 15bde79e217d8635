package analysis

import (
	"sync"

	"github.com/bryanwahyu/estate-compliance/internal/domain/compliance"
)

// Token stamps an operation with the subject and generation current at its start.
type Token struct {
	SubjectID  compliance.SubjectID
	Generation uint64
}

// Matches reports whether t still denotes the same selection as other.
func (t Token) Matches(other Token) bool {
	return t.SubjectID == other.SubjectID && t.Generation == other.Generation
}

// Identity is the single owner of the selected subject and its generation.
// Every Set advances the generation, even when the id does not change.
type Identity struct {
	mu  sync.RWMutex
	cur Token
}

func (i *Identity) Set(id compliance.SubjectID) Token {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cur = Token{SubjectID: id, Generation: i.cur.Generation + 1}
	return i.cur
}

func (i *Identity) Current() Token {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cur
}
