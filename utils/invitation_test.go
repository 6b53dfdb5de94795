package utils_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"playboard/utils"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	matcher := sqlmock.QueryMatcherFunc(func(expected, actual string) error {
		normalize := func(s string) string {
			return strings.Join(strings.Fields(s), " ")
		}
		if strings.HasPrefix(normalize(actual), normalize(expected)) {
			return nil
		}
		return fmt.Errorf("query %q does not start with %q", actual, expected)
	})

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{})
	require.NoError(t, err)

	return gdb, mock
}

func TestNewInvitationCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code := utils.NewInvitationCode()
		require.Len(t, code, 8)
		for _, ch := range code {
			require.Contains(t, "0123456789abcdef", string(ch))
		}
		seen[code] = struct{}{}
	}
	// 100 draws from a 16^8 keyspace never collide in practice
	require.Len(t, seen, 100)
}

func TestGenerateInvitationCodeUnused(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT count(*) FROM "teams" WHERE invitation_code`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	code, err := utils.GenerateInvitationCode(db)
	require.NoError(t, err)
	require.Len(t, code, 8)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateInvitationCodeGivesUpAfterCollisions(t *testing.T) {
	db, mock := newMockDB(t)

	for i := 0; i < 5; i++ {
		mock.ExpectQuery(`SELECT count(*) FROM "teams" WHERE invitation_code`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	}

	_, err := utils.GenerateInvitationCode(db)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
