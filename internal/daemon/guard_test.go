package daemon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/buck2hub/buckal-harness/internal/shell"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want Health
	}{
		{"healthy", `{"valid_working_directory": true, "valid_buck_out_mount": true}`, Health{Probed: true}},
		{"stale cwd", `{"valid_working_directory": false}`, Health{Probed: true, Stale: true, Reason: "valid_working_directory"}},
		{"stale mount", `{"valid_working_directory": true, "valid_buck_out_mount": false}`, Health{Probed: true, Stale: true, Reason: "valid_buck_out_mount"}},
		{"fields absent", `{"process_info": {"pid": 4}}`, Health{Probed: true}},
		{"string false is not false", `{"valid_working_directory": "false"}`, Health{Probed: true}},
		{"null is not false", `{"valid_working_directory": null}`, Health{Probed: true}},
		{"not json", `no buckd running`, Health{}},
		{"array", `[false]`, Health{}},
		{"empty", ``, Health{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.out))
		})
	}
}

func statusReturns(stdout string) shell.Handler {
	return func(cmd shell.Command) (shell.Result, error) {
		return shell.Result{Stdout: stdout}, nil
	}
}

func TestEnsureKillsStaleDaemon(t *testing.T) {
	rec := shell.NewRecorder().On("buck2 status", statusReturns(`{"valid_working_directory": false}`))
	g := &Guard{Runner: rec}

	h := g.Ensure(context.Background(), "/ws")
	assert.True(t, h.Stale)
	assert.Equal(t, []string{"buck2 status", "buck2 kill"}, rec.Lines())
	for _, cmd := range rec.Commands() {
		assert.Equal(t, "/ws", cmd.Dir)
	}
}

func TestEnsureHealthyDaemon(t *testing.T) {
	rec := shell.NewRecorder().On("buck2 status", statusReturns(`{"valid_working_directory": true, "valid_buck_out_mount": true}`))
	g := &Guard{Runner: rec}

	g.Ensure(context.Background(), "/ws")
	assert.Equal(t, []string{"buck2 status"}, rec.Lines())
}

func TestEnsureFailsOpen(t *testing.T) {
	t.Run("status exits non-zero", func(t *testing.T) {
		rec := shell.NewRecorder().Fail("buck2 status", 2)
		h := (&Guard{Runner: rec}).Ensure(context.Background(), "/ws")
		assert.False(t, h.Probed)
		assert.Equal(t, []string{"buck2 status"}, rec.Lines())
	})

	t.Run("status garbage", func(t *testing.T) {
		rec := shell.NewRecorder().On("buck2 status", statusReturns("{"))
		(&Guard{Runner: rec}).Ensure(context.Background(), "/ws")
		assert.Equal(t, []string{"buck2 status"}, rec.Lines())
	})

	t.Run("kill fails", func(t *testing.T) {
		rec := shell.NewRecorder().
			On("buck2 status", statusReturns(`{"valid_buck_out_mount": false}`)).
			Fail("buck2 kill", 1)
		h := (&Guard{Runner: rec}).Ensure(context.Background(), "/ws")
		assert.True(t, h.Stale)
		assert.Equal(t, []string{"buck2 status", "buck2 kill"}, rec.Lines())
	})
}

func TestEnsureCustomBinary(t *testing.T) {
	rec := shell.NewRecorder()
	(&Guard{Runner: rec, Binary: "/opt/buck2"}).Ensure(context.Background(), "/ws")
	assert.Equal(t, []string{"/opt/buck2 status"}, rec.Lines())
}
