package controller_test

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"playboard/models"
)

var errDocStoreDown = errors.New("document store unavailable")

func playRows(id, teamID uint, name string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "created_at", "team_id", "name"}).
		AddRow(id, time.Now(), teamID, name)
}

func TestCreatePlay(t *testing.T) {
	db, mock := newMockDB(t)
	fake := newFakePlayData()
	app := newTestApp(db, fake, testUser())

	mock.ExpectQuery(`SELECT * FROM "permissions"`).
		WillReturnRows(permRows(9, 1, 5, models.RoleEditor))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "plays"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	resp, raw := doJSON(t, app, "POST", "/plays", fiber.Map{
		"team_id": 5,
		"name":    "pick and roll",
		"data":    fiber.Map{"positions": []int{1, 2, 3}},
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	body := decodeMap(t, raw)
	require.Equal(t, float64(7), body["id"])
	require.Equal(t, "pick and roll", body["name"])

	require.Equal(t, 1, fake.putCalls)
	require.Contains(t, fake.docs, uint(7))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePlayWithoutData(t *testing.T) {
	db, mock := newMockDB(t)
	fake := newFakePlayData()
	app := newTestApp(db, fake, testUser())

	mock.ExpectQuery(`SELECT * FROM "permissions"`).
		WillReturnRows(permRows(9, 1, 5, models.RoleAdmin))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "plays"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	resp, _ := doJSON(t, app, "POST", "/plays", fiber.Map{
		"team_id": 5,
		"name":    "zone defense",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, 0, fake.putCalls)
}

func TestCreatePlayAsViewer(t *testing.T) {
	db, mock := newMockDB(t)
	fake := newFakePlayData()
	app := newTestApp(db, fake, testUser())

	mock.ExpectQuery(`SELECT * FROM "permissions"`).
		WillReturnRows(permRows(9, 1, 5, models.RoleViewer))

	resp, raw := doJSON(t, app, "POST", "/plays", fiber.Map{
		"team_id": 5,
		"name":    "pick and roll",
	})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Equal(t, "insufficient permissions for this action", decodeMap(t, raw)["detail"])
	require.Equal(t, 0, fake.putCalls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePlayDataWriteFails(t *testing.T) {
	db, mock := newMockDB(t)
	fake := newFakePlayData()
	fake.putErr = errDocStoreDown
	app := newTestApp(db, fake, testUser())

	mock.ExpectQuery(`SELECT * FROM "permissions"`).
		WillReturnRows(permRows(9, 1, 5, models.RoleEditor))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "plays"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	resp, raw := doJSON(t, app, "POST", "/plays", fiber.Map{
		"team_id": 5,
		"name":    "pick and roll",
		"data":    fiber.Map{"positions": []int{1}},
	})
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "Play record created but saving play data failed", decodeMap(t, raw)["detail"])
}

func TestUpdatePlayNameOnly(t *testing.T) {
	db, mock := newMockDB(t)
	fake := newFakePlayData()
	app := newTestApp(db, fake, testUser())

	mock.ExpectQuery(`SELECT * FROM "plays"`).
		WillReturnRows(playRows(7, 5, "pick and roll"))
	mock.ExpectQuery(`SELECT * FROM "permissions"`).
		WillReturnRows(permRows(9, 1, 5, models.RoleEditor))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "plays" SET "name"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resp, raw := doJSON(t, app, "PUT", "/plays/7", fiber.Map{
		"name": "horns set",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "horns set", decodeMap(t, raw)["name"])
	require.Equal(t, 0, fake.putCalls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePlayDataOnly(t *testing.T) {
	db, mock := newMockDB(t)
	fake := newFakePlayData()
	app := newTestApp(db, fake, testUser())

	mock.ExpectQuery(`SELECT * FROM "plays"`).
		WillReturnRows(playRows(7, 5, "pick and roll"))
	mock.ExpectQuery(`SELECT * FROM "permissions"`).
		WillReturnRows(permRows(9, 1, 5, models.RoleEditor))

	resp, _ := doJSON(t, app, "PUT", "/plays/7", fiber.Map{
		"data": fiber.Map{"positions": []int{4, 5}},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 1, fake.putCalls)
	require.Contains(t, fake.docs, uint(7))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePlayNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	app := newTestApp(db, newFakePlayData(), testUser())

	mock.ExpectQuery(`SELECT * FROM "plays"`).WillReturnRows(emptyRows())

	resp, raw := doJSON(t, app, "PUT", "/plays/99", fiber.Map{"name": "x"})
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, "Play not found", decodeMap(t, raw)["detail"])
}

func TestGetPlayData(t *testing.T) {
	db, mock := newMockDB(t)
	fake := newFakePlayData()
	fake.docs[7] = map[string]interface{}{"positions": []interface{}{1.0, 2.0}}
	app := newTestApp(db, fake, testUser())

	mock.ExpectQuery(`SELECT * FROM "plays"`).
		WillReturnRows(playRows(7, 5, "pick and roll"))
	mock.ExpectQuery(`SELECT * FROM "permissions"`).
		WillReturnRows(permRows(9, 1, 5, models.RoleViewer))

	resp, raw := doJSON(t, app, "GET", "/plays/7/data", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeMap(t, raw)
	require.Equal(t, "pick and roll", body["name"])

	data := body["data"].(map[string]interface{})
	require.Equal(t, []interface{}{1.0, 2.0}, data["positions"])
}

func TestGetPlayDataNoPayload(t *testing.T) {
	db, mock := newMockDB(t)
	app := newTestApp(db, newFakePlayData(), testUser())

	mock.ExpectQuery(`SELECT * FROM "plays"`).
		WillReturnRows(playRows(7, 5, "pick and roll"))
	mock.ExpectQuery(`SELECT * FROM "permissions"`).
		WillReturnRows(permRows(9, 1, 5, models.RoleViewer))

	resp, raw := doJSON(t, app, "GET", "/plays/7/data", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeMap(t, raw)
	require.Contains(t, body, "data")
	require.Nil(t, body["data"])
}

func TestListTeamPlays(t *testing.T) {
	db, mock := newMockDB(t)
	app := newTestApp(db, newFakePlayData(), testUser())

	mock.ExpectQuery(`SELECT * FROM "permissions"`).
		WillReturnRows(permRows(9, 1, 5, models.RoleViewer))
	mock.ExpectQuery(`SELECT * FROM "plays" WHERE team_id`).
		WillReturnRows(playRows(3, 5, "pick and roll").
			AddRow(4, time.Now(), 5, "zone defense"))

	resp, raw := doJSON(t, app, "GET", "/plays/5", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	plays := decodeList(t, raw)
	require.Len(t, plays, 2)
	require.Equal(t, "pick and roll", plays[0]["name"])
	require.NotContains(t, plays[0], "data")
}

func TestGetFullTeamPlays(t *testing.T) {
	db, mock := newMockDB(t)
	fake := newFakePlayData()
	fake.docs[3] = map[string]interface{}{"positions": []interface{}{1.0}}
	app := newTestApp(db, fake, testUser())

	mock.ExpectQuery(`SELECT * FROM "permissions"`).
		WillReturnRows(permRows(9, 1, 5, models.RoleViewer))
	mock.ExpectQuery(`SELECT * FROM "plays" WHERE team_id`).
		WillReturnRows(playRows(3, 5, "pick and roll").
			AddRow(4, time.Now(), 5, "zone defense"))

	resp, raw := doJSON(t, app, "GET", "/plays/5/full", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	plays := decodeList(t, raw)
	require.Len(t, plays, 2)
	require.NotNil(t, plays[0]["data"])
	require.Nil(t, plays[1]["data"])
	require.Equal(t, 1, fake.getManyCalls)
}

func TestGetFullTeamPlaysEmptyTeam(t *testing.T) {
	db, mock := newMockDB(t)
	fake := newFakePlayData()
	app := newTestApp(db, fake, testUser())

	mock.ExpectQuery(`SELECT * FROM "permissions"`).
		WillReturnRows(permRows(9, 1, 5, models.RoleViewer))
	mock.ExpectQuery(`SELECT * FROM "plays" WHERE team_id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "team_id", "name"}))

	resp, raw := doJSON(t, app, "GET", "/plays/5/full", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Empty(t, decodeList(t, raw))
	require.Equal(t, 0, fake.getManyCalls)
}

func TestDeletePlay(t *testing.T) {
	db, mock := newMockDB(t)
	fake := newFakePlayData()
	fake.docs[7] = map[string]interface{}{"positions": []interface{}{1.0}}
	app := newTestApp(db, fake, testUser())

	mock.ExpectQuery(`SELECT * FROM "plays"`).
		WillReturnRows(playRows(7, 5, "pick and roll"))
	mock.ExpectQuery(`SELECT * FROM "permissions"`).
		WillReturnRows(permRows(9, 1, 5, models.RoleEditor))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "plays"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resp, raw := doJSON(t, app, "DELETE", "/plays/7", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "Play deleted", decodeMap(t, raw)["detail"])
	require.Equal(t, 1, fake.deleteCalls)
	require.NotContains(t, fake.docs, uint(7))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePlayAsViewer(t *testing.T) {
	db, mock := newMockDB(t)
	fake := newFakePlayData()
	app := newTestApp(db, fake, testUser())

	mock.ExpectQuery(`SELECT * FROM "plays"`).
		WillReturnRows(playRows(7, 5, "pick and roll"))
	mock.ExpectQuery(`SELECT * FROM "permissions"`).
		WillReturnRows(permRows(9, 1, 5, models.RoleViewer))

	resp, _ := doJSON(t, app, "DELETE", "/plays/7", nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Equal(t, 0, fake.deleteCalls)
}
