package identity

import (
	"context"
	"errors"
	"sync"

	"punchclock.service/internal/core/model"
)

type binding struct {
	credential model.CardCredential
	employee   model.Employee
}

// CachingStore remembers the last binding a CredentialStore returned for
// each card and serves it when the store fails for any reason other than
// the card being unknown. A card the store no longer knows is forgotten.
type CachingStore struct {
	next CredentialStore

	mu    sync.RWMutex
	known map[string]binding
}

var _ CredentialStore = (*CachingStore)(nil)

func NewCachingStore(next CredentialStore) *CachingStore {
	return &CachingStore{next: next, known: make(map[string]binding)}
}

func (c *CachingStore) FindCredential(ctx context.Context, scheme model.CredentialScheme, cardKey string) (model.CardCredential, model.Employee, error) {
	key := string(scheme) + "/" + cardKey

	cred, emp, err := c.next.FindCredential(ctx, scheme, cardKey)
	switch {
	case err == nil:
		c.mu.Lock()
		c.known[key] = binding{credential: cred, employee: emp}
		c.mu.Unlock()
		return cred, emp, nil
	case errors.Is(err, model.ErrUnknownCredential):
		c.mu.Lock()
		delete(c.known, key)
		c.mu.Unlock()
		return model.CardCredential{}, model.Employee{}, err
	}

	c.mu.RLock()
	b, ok := c.known[key]
	c.mu.RUnlock()
	if !ok {
		return model.CardCredential{}, model.Employee{}, err
	}
	return b.credential, b.employee, nil
}

