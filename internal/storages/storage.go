package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Shopify/sarama"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type AtomicFunc func(Registry) error

type Registry interface {
	Atomic(ctx context.Context, fn AtomicFunc) error
	GetUsersStore() *UsersStorage
	GetSearchHistoryStore() *SearchHistoryStorage
	GetConversationsStore() *ConversationsStorage
	GetMessagesStore() *MessagesStorage
	GetInvitesStore() *InvitesStorage
	GetUpdatesStore() *UpdatesStorage
}

type DefaultRegistry struct {
	db       *sqlx.DB
	scope    Scope
	producer sarama.SyncProducer
	cfg      *UpdatesStoreConfig
	outbox   *outbox
	log      logrus.FieldLogger
}

type Scope interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
	sqlx.Execer
	sqlx.Queryer
	Get(dest interface{}, query string, args ...interface{}) error
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExec(query string, arg interface{}) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	NamedQuery(query string, arg interface{}) (*sqlx.Rows, error)
}

// NewRegistry builds a registry over db. A nil producer disables the updates feed.
func NewRegistry(db *sqlx.DB, p sarama.SyncProducer, cfg *UpdatesStoreConfig) *DefaultRegistry {
	if cfg == nil {
		cfg = &UpdatesStoreConfig{}
	}
	return &DefaultRegistry{
		db:       db,
		scope:    db,
		producer: p,
		cfg:      cfg,
		log:      logrus.StandardLogger(),
	}
}

func (r *DefaultRegistry) WithLogger(log logrus.FieldLogger) *DefaultRegistry {
	r.log = log
	return r
}

type registryKey struct{}

// WithRegistry makes Atomic calls made with the returned context join the
// transaction of r instead of opening their own.
func WithRegistry(ctx context.Context, r Registry) context.Context {
	return context.WithValue(ctx, registryKey{}, r)
}

// Atomic runs fn in a transaction. Updates published by fn are sent only after
// the transaction commits and are dropped when it rolls back.
func (r *DefaultRegistry) Atomic(ctx context.Context, fn AtomicFunc) (err error) {
	if joined, ok := ctx.Value(registryKey{}).(Registry); ok {
		return fn(joined)
	}

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	storage := DefaultRegistry{
		db:       r.db,
		scope:    tx,
		producer: r.producer,
		cfg:      r.cfg,
		outbox:   &outbox{},
		log:      r.log,
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("rollback caused by error: \"%v\" failed: %v", err, rbErr)
			}
			return
		}
		if err = tx.Commit(); err != nil {
			return
		}
		if pubErr := storage.GetUpdatesStore().flush(); pubErr != nil {
			r.log.WithError(pubErr).Error("committed updates were not published")
		}
	}()

	err = fn(&storage)
	return err
}

func (r *DefaultRegistry) GetUsersStore() *UsersStorage {
	return NewUsersStorage(r.scope)
}

func (r *DefaultRegistry) GetSearchHistoryStore() *SearchHistoryStorage {
	return NewSearchHistoryStorage(r.scope)
}

func (r *DefaultRegistry) GetConversationsStore() *ConversationsStorage {
	return NewConversationsStorage(r.scope)
}

func (r *DefaultRegistry) GetMessagesStore() *MessagesStorage {
	return NewMessagesStorage(r.scope)
}

func (r *DefaultRegistry) GetInvitesStore() *InvitesStorage {
	return NewInvitesStorage(r.scope)
}

func (r *DefaultRegistry) GetUpdatesStore() *UpdatesStorage {
	store := NewUpdatesStore(r.producer, r.cfg)
	store.outbox = r.outbox
	return store
}
