package influx

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OCAP2/combatsim/internal/config"
	"github.com/OCAP2/combatsim/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStats() core.Statistics {
	return core.Statistics{
		Step: 12,
		Sides: map[core.Side]core.SideStatistics{
			core.SideA: {
				Alive: 3, Destroyed: 1, TotalKills: 2, TotalShots: 10, TotalHits: 5, AccuracyPercent: 50,
				ByType: map[core.UnitType]core.TypeStatistics{
					core.UnitTypeTank:     {Total: 2, Alive: 2, Kills: 2},
					core.UnitTypeInfantry: {Total: 2, Alive: 1, Destroyed: 1},
				},
			},
			core.SideB: {
				Alive: 1, Destroyed: 2,
				ByType: map[core.UnitType]core.TypeStatistics{
					core.UnitTypeTank: {Total: 3, Alive: 1, Destroyed: 2},
				},
			},
		},
	}
}

func TestStepPoints(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	points := StepPoints("s1", testStats(), ts)
	// 2 side points + 3 type points
	require.Len(t, points, 5)
	assert.Equal(t, MeasurementSide, points[0].Name())
	assert.Equal(t, MeasurementType, points[1].Name())
	assert.Equal(t, ts, points[0].Time())
}

func TestRecordStep_Backup(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	m.UseBackup(&buf)

	require.NoError(t, m.RecordStep("s1", testStats(), time.Unix(1700000000, 0)))
	require.NoError(t, m.Close())

	gz, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "side_status,"))
	assert.Contains(t, lines[0], "side=A")
	assert.Contains(t, lines[0], "session=s1")
	assert.Contains(t, lines[0], "alive=3i")
	assert.Contains(t, lines[0], "accuracy=50")
	assert.True(t, strings.HasSuffix(lines[0], "1700000000000000000"))
	assert.Contains(t, lines[1], "type=infantry")
}

func TestWritePoint_NoWriter(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	err := m.RecordStep("s1", testStats(), time.Now())
	assert.Error(t, err)
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{Enabled: false})
	assert.Error(t, m.Connect(context.Background()))
}

func TestConnect_UnreachableUsesBackupFile(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(zerolog.Nop(), config.InfluxConfig{
		Enabled:   true,
		Protocol:  "http",
		Host:      "127.0.0.1",
		Port:      "1",
		BackupDir: dir,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid)
	assert.Equal(t, filepath.Join(dir, "influx_backup.log.gz"), m.BackupPath)
	require.NoError(t, m.RecordStep("s1", testStats(), time.Now()))
	require.NoError(t, m.Close())
	assert.FileExists(t, m.BackupPath)
}
