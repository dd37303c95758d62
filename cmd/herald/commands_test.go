package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/herald/pkg/registry"
	"github.com/odvcencio/herald/pkg/store"
	"github.com/odvcencio/herald/pkg/sync"
	"github.com/odvcencio/herald/pkg/terminal"
)

func newTestApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return &app{
		out:   terminal.NewWithOutput(&buf, false),
		store: store.New(t.TempDir(), nil),
	}, &buf
}

func writeRecord(t *testing.T, a *app, locator, body string) {
	t.Helper()
	path := filepath.Join(a.store.Root(), locator)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadSelectionAll(t *testing.T) {
	a, _ := newTestApp(t)
	writeRecord(t, a, "commands/ping.json", `{"name":"ping","type":1,"description":"Ping"}`)
	writeRecord(t, a, "context-menu/report.json", `{"name":"Report","type":3}`)

	defs, missing, err := a.loadSelection(nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.Len(t, defs, 2)
}

func TestLoadSelectionByName(t *testing.T) {
	a, _ := newTestApp(t)
	writeRecord(t, a, "commands/ping.json", `{"name":"ping","type":1,"description":"Ping"}`)
	writeRecord(t, a, "commands/roll.json", `{"name":"roll","type":1,"description":"Roll"}`)

	defs, missing, err := a.loadSelection([]string{"roll", "nope"})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "roll", defs[0].Name)
	assert.Equal(t, []string{"nope"}, missing)
}

func TestValidateReportsDuplicateNames(t *testing.T) {
	a, buf := newTestApp(t)
	writeRecord(t, a, "commands/ping.json", `{"name":"ping","type":1,"description":"Ping"}`)
	writeRecord(t, a, "commands/ping2.json", `{"name":"ping","type":1,"description":"Also ping"}`)

	code := a.cmdValidate(nil)
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, buf.String(), `duplicate name "ping"`)
}

func TestValidateCleanTree(t *testing.T) {
	a, buf := newTestApp(t)
	writeRecord(t, a, "commands/ping.json", `{"name":"ping","type":1,"description":"Ping"}`)
	writeRecord(t, a, "context-menu/report.json", `{"name":"Report","type":3}`)

	code := a.cmdValidate(nil)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, buf.String(), "2 record(s) ok")
}

func TestValidateRejectsMenuWithDescription(t *testing.T) {
	a, buf := newTestApp(t)
	writeRecord(t, a, "context-menu/report.json", `{"name":"Report","type":3,"description":"nope"}`)

	code := a.cmdValidate(nil)
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, buf.String(), "1 problem(s)")
}

func TestRenderReportExitCodes(t *testing.T) {
	a, _ := newTestApp(t)

	ok := &sync.Report{Op: "deploy", Items: []sync.ItemResult{
		{Name: "ping", Scope: registry.GlobalScope, Action: sync.ActionCreated},
	}}
	assert.Equal(t, exitOK, a.renderReport(ok))

	failed := &sync.Report{Op: "deploy", Items: []sync.ItemResult{
		{Name: "ping", Scope: registry.GlobalScope, Action: sync.ActionCreated},
		{Name: "roll", Scope: registry.GlobalScope, Action: sync.ActionFailed, Err: os.ErrPermission},
	}}
	assert.Equal(t, exitFailed, a.renderReport(failed))
}
