package settings_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShawnEdgell/gfn-availability-go/internal/settings"
)

func TestStore_DefaultsWithoutFile(t *testing.T) {
	t.Parallel()

	s := settings.NewStore(t.TempDir())
	s.Load()

	assert.Equal(t, settings.Defaults(), s.Get())
}

func TestStore_LoadMergesOntoDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := `{
		// user tweaks
		"logoSize": 96,
		"position": "bottom-left",
		"experimentalBadge": "pulse",
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(content), 0o644))

	s := settings.NewStore(dir)
	s.Load()
	got := s.Get()

	assert.Equal(t, float64(96), got["logoSize"], "existing keys are overwritten")
	assert.Equal(t, "bottom-left", got["position"])
	assert.Equal(t, "pulse", got["experimentalBadge"], "unknown keys are preserved")
	assert.Equal(t, 50, got["glowIntensity"], "untouched defaults remain")
}

func TestStore_LoadMalformedKeepsDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"logoSize": `), 0o644))

	s := settings.NewStore(dir)
	s.Load()
	assert.Equal(t, settings.Defaults(), s.Get())
}

func TestStore_SaveWritesBlobVerbatim(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := settings.NewStore(dir)
	blob := map[string]any{"logoSize": 32, "enabled": false, "anything": []any{"a", "b"}}

	res := s.Save(blob)
	assert.Equal(t, settings.Result{Status: "success"}, res)

	raw, err := os.ReadFile(filepath.Join(dir, "settings.json"))
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, map[string]any{"logoSize": float64(32), "enabled": false, "anything": []any{"a", "b"}}, onDisk)

	assert.Equal(t, blob, s.Get(), "settings are replaced, not merged")

	reloaded := settings.NewStore(dir)
	reloaded.Load()
	assert.Equal(t, false, reloaded.Get()["enabled"])
}

func TestStore_SaveWithoutDirectory(t *testing.T) {
	t.Parallel()

	s := settings.NewStore("")
	res := s.Save(map[string]any{"logoSize": 10})

	assert.Equal(t, "error", res.Status)
	assert.Equal(t, "Settings path not initialized", res.Message)
	assert.Equal(t, 10, s.Get()["logoSize"], "in-memory settings still change")
}

func TestStore_SaveWriteFailure(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "missing")
	s := settings.NewStore(dir)

	res := s.Save(map[string]any{"logoSize": 10})
	assert.Equal(t, "error", res.Status)
	assert.NotEmpty(t, res.Message)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := settings.NewStore("")
	got := s.Get()
	got["logoSize"] = 1

	assert.Equal(t, 64, s.Get()["logoSize"])
}
