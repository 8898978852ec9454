package storage

import (
	"context"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/practice-sem-2/messaging-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const defaultTestMigrationsDir = "file://../../migrations"

// PostgresTestSuite migrates the database pointed to by DB_DSN before the suite
// and wipes every table after each test. Suites are skipped when DB_DSN is not set.
type PostgresTestSuite struct {
	suite.Suite
	DB *sqlx.DB
	m  *migrate.Migrate
}

func (s *PostgresTestSuite) SetupSuite() {
	var err error
	viper.AutomaticEnv()
	dbDsn := viper.GetString("DB_DSN")
	if dbDsn == "" {
		s.T().Skip("DB_DSN is not set")
	}

	migrationsDsn := MigrationsDSN(dbDsn, viper.GetString("MIGRATIONS_DSN"))
	migrationsDir := viper.GetString("MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = defaultTestMigrationsDir
	}

	s.DB, err = sqlx.Connect("pgx", dbDsn)
	require.NoError(s.T(), err, "failed to connect to database")

	s.m, err = migrate.New(migrationsDir, migrationsDsn)
	require.NoError(s.T(), err, "failed to open migrations")

	err = s.m.Up()
	if err != migrate.ErrNoChange {
		require.NoError(s.T(), err, "failed to migrate database")
	}
}

func (s *PostgresTestSuite) TearDownTest() {
	if s.DB == nil {
		return
	}
	_, err := s.DB.Exec(`TRUNCATE message_reactions, messages, group_invites, chat_invites,
		conversation_members, conversations, search_history, users`)
	require.NoError(s.T(), err, "can't teardown test")
}

func (s *PostgresTestSuite) TearDownSuite() {
	if s.m != nil {
		_ = s.m.Down()
	}
	if s.DB != nil {
		_ = s.DB.Close()
	}
}

// CreateUser stores a user with the given name and returns it.
func (s *PostgresTestSuite) CreateUser(name string) models.User {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	user := &models.User{
		UserID:          uuid.NewString(),
		TokenIdentifier: "test|" + uuid.NewString(),
		Name:            &name,
		LastSeenAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
	stored, err := NewUsersStorage(s.DB).UpsertUser(ctx, user)
	require.NoError(s.T(), err, "should correctly create user")
	return *stored
}
