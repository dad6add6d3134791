package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/phrazzld/carouselmaker/internal/cleanup"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/service"
	"github.com/phrazzld/carouselmaker/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	t.Parallel()

	root, _ := newRootCommand()
	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "worker", "migrate", "cleanup", "stats"} {
		assert.Contains(t, names, want)
	}
}

func TestMigrateRejectsUnknownCommandBeforeLoadingConfig(t *testing.T) {
	t.Parallel()

	root, cc := newRootCommand()
	defer cc.close()
	root.SetArgs([]string{"migrate", "sideways"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	assert.Nil(t, cc.app)
}

func TestLoadCTAImages(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		images, err := loadCTAImages("")
		require.NoError(t, err)
		assert.Empty(t, images)
	})

	t.Run("reads present styles only", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, domain.StyleTech+".png"), []byte("png"), 0o600))

		images, err := loadCTAImages(dir)
		require.NoError(t, err)
		assert.Equal(t, map[string][]byte{domain.StyleTech: []byte("png")}, images)
	})
}

func TestPrintStats(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	printStats(&out, &service.Stats{
		TotalUsers:     12,
		TotalCarousels: 30,
		GenerationsByStatus: map[domain.GenerationStatus]int{
			domain.GenerationStatusFailed:    2,
			domain.GenerationStatusCompleted: 30,
		},
		TasksByStatus: map[task.TaskStatus]int{},
		GeneratedAt:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	})

	s := out.String()
	assert.Contains(t, s, "Generations")
	assert.Contains(t, s, "carousels delivered")
	assert.Contains(t, s, "30")
	assert.Contains(t, s, "none")
	assert.Contains(t, s, "2025-03-01T12:00:00Z")
}

func TestCountRowsSorted(t *testing.T) {
	t.Parallel()

	rows := countRows(map[domain.GenerationStatus]int{
		domain.GenerationStatusPending:   1,
		domain.GenerationStatusCompleted: 4,
	})
	require.Len(t, rows, 2)
	assert.Equal(t, string(domain.GenerationStatusCompleted), rows[0][0])
	assert.Equal(t, "4", rows[0][1])
}

func TestReportRows(t *testing.T) {
	t.Parallel()

	rows := reportRows(cleanup.Report{Scanned: 5, Deleted: 3, Failed: 1, KeysCleared: 3, BytesRemoved: 2048})
	table := renderTable("Cleanup", []string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, table, "objects deleted")
	assert.Contains(t, table, "2048")
}
