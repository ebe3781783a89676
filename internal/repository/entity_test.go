package repository

import (
	"database/sql"
	"errors"
	"testing"

	"brokkoli/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *EntityRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewEntityRepository(db, logger)

	return db, mock, repo
}

func TestListEntities_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	plantConfig := []byte(`{
		"sources": {"temperature": "sensor.t1", "bogus": "sensor.x"},
		"limits": {"temperature": {"min": 12, "max": 28}},
		"triggers": {"moisture": false},
		"decimals": {"temperature": 2}
	}`)
	cycleConfig := []byte(`{"aggregations": {"temperature": "median", "ph": "nonsense", "water_consumption": "original"}}`)

	rows := sqlmock.NewRows([]string{"entity_id", "name", "kind", "config"}).
		AddRow("plant_1", "Basil", "plant", plantConfig).
		AddRow("cycle_1", "Spring", "cycle", cycleConfig).
		AddRow("plant_2", "Mint", "plant", nil)
	mock.ExpectQuery(`SELECT entity_id, name, kind, config\s+FROM plant_entities`).
		WillReturnRows(rows)

	members := sqlmock.NewRows([]string{"group_id", "member_id"}).
		AddRow("cycle_1", "plant_2").
		AddRow("cycle_1", "plant_1")
	mock.ExpectQuery(`SELECT group_id, member_id\s+FROM plant_group_members`).
		WillReturnRows(members)

	entities, err := repo.ListEntities()

	require.NoError(t, err)
	require.Len(t, entities, 3)

	plant := entities[0]
	assert.Equal(t, "plant_1", plant.EntityID)
	assert.Equal(t, models.KindPlant, plant.Kind)
	assert.Equal(t, map[models.Metric]string{models.MetricTemperature: "sensor.t1"}, plant.Sources)
	assert.Equal(t, models.Limits{Min: 12, Max: 28}, plant.Limits[models.MetricTemperature])
	assert.Equal(t, false, plant.Triggers[models.MetricMoisture])
	assert.Equal(t, 2.0, plant.Decimals[models.MetricTemperature])

	cycle := entities[1]
	assert.Equal(t, models.KindCycle, cycle.Kind)
	assert.Equal(t, models.StrategyMedian, cycle.Aggregations[models.MetricTemperature])
	assert.Equal(t, models.StrategyKeepOwn, cycle.Aggregations[models.MetricWaterConsumption])
	_, ok := cycle.Aggregations[models.MetricPH]
	assert.False(t, ok)
	assert.Equal(t, []string{"plant_2", "plant_1"}, cycle.Members)

	assert.Nil(t, entities[2].Sources)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEntities_QueryError(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT entity_id`).WillReturnError(errors.New("connection reset"))

	entities, err := repo.ListEntities()

	assert.Error(t, err)
	assert.Nil(t, entities)
	assert.Contains(t, err.Error(), "failed to query entities")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEntities_BadConfig(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"entity_id", "name", "kind", "config"}).
		AddRow("plant_1", "Basil", "plant", []byte(`{"limits": 5}`))
	mock.ExpectQuery(`SELECT entity_id`).WillReturnRows(rows)

	_, err := repo.ListEntities()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "plant_1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDefaultConfig_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"config"}).
		AddRow([]byte(`{"limits": {"moisture": {"min": 25, "max": 65}}, "decimals": {"ph": "2"}}`))
	mock.ExpectQuery(`SELECT config\s+FROM plant_default_config`).WillReturnRows(rows)

	cfg, err := repo.GetDefaultConfig()

	require.NoError(t, err)
	assert.Equal(t, models.Limits{Min: 25, Max: 65}, cfg.Limits[models.MetricMoisture])
	assert.Equal(t, "2", cfg.Decimals[models.MetricPH])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDefaultConfig_NotFound(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT config`).WillReturnError(sql.ErrNoRows)

	cfg, err := repo.GetDefaultConfig()

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.Limits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddMember_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO plant_group_members`).
		WithArgs("cycle_1", "plant_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AddMember("cycle_1", "plant_1")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMember_NoRowsAffected(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM plant_group_members`).
		WithArgs("cycle_1", "plant_9").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RemoveMember("cycle_1", "plant_9")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
