package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ductline/ductline/internal/factor"
	"github.com/ductline/ductline/jobs"
)

type captureImporter struct {
	points []factor.ReferencePoint
}

func (c *captureImporter) Import(_ context.Context, points []factor.ReferencePoint) error {
	c.points = points
	return nil
}

func TestImportFactorsParsesCSV(t *testing.T) {
	imp := &captureImporter{}
	csv := "cost_threshold,factor\n1000000,1.35\n10000000,1.2\n"

	n, err := importFactors(context.Background(), imp, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, imp.points, 2)
	assert.Equal(t, "1.35", imp.points[0].Factor.String())
}

func TestImportFactorsRejectsBadRows(t *testing.T) {
	imp := &captureImporter{}
	_, err := importFactors(context.Background(), imp, strings.NewReader("abc,1.2\n"))
	require.ErrorIs(t, err, factor.ErrInvalidReference)
	assert.Nil(t, imp.points)
}

func TestTaskForKnownNames(t *testing.T) {
	task, err := taskFor(jobs.TaskFactorWarmup)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskFactorWarmup, task.Type())

	task, err = taskFor(jobs.TaskIdempotencyCleanup)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskIdempotencyCleanup, task.Type())

	_, err = taskFor("mail:send")
	assert.Error(t, err)
	_, err = taskFor("")
	assert.Error(t, err)
}

func TestRootRegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"migrate", "factor", "jobs", "create-admin"} {
		assert.True(t, names[want], want)
	}
}
