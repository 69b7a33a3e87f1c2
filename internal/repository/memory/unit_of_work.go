package memory

import (
	"context"
	"fmt"

	"llamatalks-be/internal/repository/contract"
	"llamatalks-be/internal/repository/unitofwork"
)

type RepositoryFactory struct {
	store *Store
}

func NewRepositoryFactory(store *Store) unitofwork.RepositoryFactory {
	return &RepositoryFactory{store: store}
}

func (f *RepositoryFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &UnitOfWork{store: f.store}
}

// Ping always succeeds; the store lives in this process.
func (f *RepositoryFactory) Ping(ctx context.Context) error {
	return ctx.Err()
}

// UnitOfWork tracks transaction state only. Each repository call is atomic on
// its own and Rollback does not undo earlier writes.
type UnitOfWork struct {
	store  *Store
	active bool
}

func (u *UnitOfWork) Begin(ctx context.Context) error {
	if u.active {
		return fmt.Errorf("transaction already started")
	}
	u.active = true
	return nil
}

func (u *UnitOfWork) Commit() error {
	if !u.active {
		return fmt.Errorf("no transaction to commit")
	}
	u.active = false
	return nil
}

func (u *UnitOfWork) Rollback() error {
	if !u.active {
		return fmt.Errorf("no transaction to rollback")
	}
	u.active = false
	return nil
}

func (u *UnitOfWork) ConversationRepository() contract.ConversationRepository {
	return NewConversationRepository(u.store)
}

func (u *UnitOfWork) MessageRepository() contract.MessageRepository {
	return NewMessageRepository(u.store)
}

func (u *UnitOfWork) EmbeddingRepository() contract.EmbeddingRepository {
	return NewEmbeddingRepository(u.store)
}
