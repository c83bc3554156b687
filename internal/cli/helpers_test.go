package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/harun/alexandria/internal/config"
	"github.com/harun/alexandria/pkg/store"
)

// resetFlags puts every flag back to its default so commands can be
// executed repeatedly within one test binary.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := GetRootCmd()
	resetFlags(cmd)
	t.Cleanup(func() { resetFlags(cmd) })

	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

// writeTestConfig writes a config whose directories all live under a temp
// dir and returns its path.
func writeTestConfig(t *testing.T, mutate ...func(map[string]any)) string {
	t.Helper()
	dir := t.TempDir()
	doc := map[string]any{
		"data_dir":   filepath.Join(dir, "data"),
		"compositor": map[string]any{"kind": "none"},
		"logging": map[string]any{
			"file":       filepath.Join(dir, "alexandria.log"),
			"audit_file": filepath.Join(dir, "audit.log"),
			"console":    false,
		},
	}
	for _, m := range mutate {
		m(doc)
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// seedStore inserts memories directly through the store package.
func seedStore(t *testing.T, cfgPath string, memories ...store.NewMemory) {
	t.Helper()
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	s, err := store.Open(store.Config{
		DataDir:      cfg.DataDir,
		DatabasePath: cfg.Storage.DatabasePath,
	})
	if errors.Is(err, store.ErrFTSUnavailable) {
		t.Skip("sqlite built without fts5; run with -tags sqlite_fts5")
	}
	require.NoError(t, err)
	defer s.Close()

	for _, nm := range memories {
		_, err := s.Insert(t.Context(), nm)
		require.NoError(t, err)
	}
}

func memoryAt(t *testing.T, at time.Time, app, text string, tags ...string) store.NewMemory {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))

	nm := store.NewMemory{
		CapturedAt:    at,
		Image:         buf.Bytes(),
		ImageFormat:   "png",
		ApplicationID: &app,
		Tags:          tags,
	}
	if text != "" {
		nm.ExtractedText = &text
	}
	return nm
}
