package reliability

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sharpescan/internal/database"
	testingpkg "github.com/aristath/sharpescan/internal/testing"
)

func testDatabases(t *testing.T) map[string]*database.DB {
	t.Helper()
	return map[string]*database.DB{
		database.NameResults:    testingpkg.NewTestDB(t, database.NameResults),
		database.NameClientData: testingpkg.NewTestDB(t, database.NameClientData),
	}
}

func fixedUsage(freeBytes uint64, err error) func(string) (*disk.UsageStat, error) {
	return func(path string) (*disk.UsageStat, error) {
		if err != nil {
			return nil, err
		}
		return &disk.UsageStat{Path: path, Free: freeBytes}, nil
	}
}

func TestDailyMaintenanceJob(t *testing.T) {
	job := NewDailyMaintenanceJob(testDatabases(t), t.TempDir(), zerolog.Nop())
	assert.Equal(t, "daily_maintenance", job.Name())

	t.Run("plenty of space", func(t *testing.T) {
		job.usage = fixedUsage(50e9, nil)
		assert.NoError(t, job.Run())
	})

	t.Run("low space only warns", func(t *testing.T) {
		job.usage = fixedUsage(2e9, nil)
		assert.NoError(t, job.Run())
	})

	t.Run("critical space fails", func(t *testing.T) {
		job.usage = fixedUsage(1e8, nil)
		err := job.Run()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "GB free")
	})

	t.Run("stat failure", func(t *testing.T) {
		job.usage = fixedUsage(0, errors.New("no such device"))
		assert.ErrorContains(t, job.Run(), "no such device")
	})
}

func TestWeeklyMaintenanceJob(t *testing.T) {
	dbs := testDatabases(t)
	_, err := dbs[database.NameClientData].Conn().Exec("CREATE TABLE scratch (v TEXT)")
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		_, err := dbs[database.NameClientData].Conn().Exec("INSERT INTO scratch (v) VALUES (?)", "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx")
		require.NoError(t, err)
	}
	_, err = dbs[database.NameClientData].Conn().Exec("DELETE FROM scratch")
	require.NoError(t, err)

	job := NewWeeklyMaintenanceJob(dbs, zerolog.Nop())
	assert.Equal(t, "weekly_maintenance", job.Name())
	require.NoError(t, job.Run())

	stats, err := dbs[database.NameClientData].GetStats()
	require.NoError(t, err)
	assert.Zero(t, stats.FreelistCount)
}

func TestSortedNames(t *testing.T) {
	names := sortedNames(map[string]*database.DB{"b": nil, "a": nil, "c": nil})
	assert.Equal(t, []string{"a", "b", "c"}, names)
}
