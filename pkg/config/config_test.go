package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/simflow/simflow/pkg/errdefs"
)

func buildStore(t *testing.T, environ []string, sources ...string) *Store {
	t.Helper()
	ld := NewLoader()
	if environ != nil {
		ld.environ = environ
	}
	for i, src := range sources {
		if err := ld.AddSource(string(rune('a'+i)), []byte(src)); err != nil {
			t.Fatalf("AddSource failed: %v", err)
		}
	}
	store, err := ld.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return store
}

func mustGet(t *testing.T, s *Store, section, key string) string {
	t.Helper()
	value, ok, err := s.Get(section, key)
	if err != nil {
		t.Fatalf("Get(%s, %s) failed: %v", section, key, err)
	}
	if !ok {
		t.Fatalf("Get(%s, %s): key not found", section, key)
	}
	return value
}

func TestLayerPrecedence(t *testing.T) {
	lower := "[DEFAULT]\nSim.Queue = slow\nSim.Minutes = 60\n"
	higher := "[DEFAULT]\nSim.Queue = fast\n"

	store := buildStore(t, []string{}, lower, higher)

	if got := mustGet(t, store, "paper1", "Sim.Queue"); got != "fast" {
		t.Errorf("higher layer should win, got %q", got)
	}
	if got := mustGet(t, store, "paper1", "Sim.Minutes"); got != "60" {
		t.Errorf("lower layer value lost, got %q", got)
	}
}

func TestSectionBeforeDefaultWithinLayer(t *testing.T) {
	src := "[DEFAULT]\nSim.Queue = standard\n\n[paper1]\nSim.Queue = premium\n"

	store := buildStore(t, []string{}, src)

	if got := mustGet(t, store, "paper1", "Sim.Queue"); got != "premium" {
		t.Errorf("section should beat DEFAULT, got %q", got)
	}
	if got := mustGet(t, store, "paper2", "Sim.Queue"); got != "standard" {
		t.Errorf("other sections fall back to DEFAULT, got %q", got)
	}
}

// A higher layer's DEFAULT beats a lower layer's project section: fallback
// is per layer, not a global second pass.
func TestDefaultFallbackIsPerLayer(t *testing.T) {
	lower := "[paper1]\nSim.Queue = lowSection\n"
	higher := "[DEFAULT]\nSim.Queue = highDefault\n"

	store := buildStore(t, []string{}, lower, higher)

	if got := mustGet(t, store, "paper1", "Sim.Queue"); got != "highDefault" {
		t.Errorf("expected higher layer DEFAULT to win, got %q", got)
	}
}

func TestEnvironmentPseudoLayer(t *testing.T) {
	src := "[DEFAULT]\nSim.Editor = {$VISUAL}\n"

	store := buildStore(t, []string{"VISUAL=vim"}, src)

	if got := mustGet(t, store, "paper1", "Sim.Editor"); got != "vim" {
		t.Errorf("got %q, want vim", got)
	}
}

func TestUndefinedEnvironmentIsEmpty(t *testing.T) {
	src := "[DEFAULT]\nSim.Editor = x{$NO_SUCH_VAR_SET}y\n"

	store := buildStore(t, []string{}, src)

	if got := mustGet(t, store, "paper1", "Sim.Editor"); got != "xy" {
		t.Errorf("got %q, want xy", got)
	}
}

func TestHomeInterpolation(t *testing.T) {
	src := "[DEFAULT]\nSim.Workspace = {Home}/ws\n"

	store := buildStore(t, []string{}, src)

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory in test environment")
	}
	if got := mustGet(t, store, "paper1", "Sim.Workspace"); got != filepath.ToSlash(home)+"/ws" && got != home+"/ws" {
		t.Errorf("got %q, want %q", got, home+"/ws")
	}
}

func TestCrossVariableResolution(t *testing.T) {
	src := "[DEFAULT]\n" +
		"Sim.Root = /data\n" +
		"Sim.ProjectDir = {Sim.Root}/{Sim.ProjectName}\n"

	store := buildStore(t, []string{}, src)

	if got := mustGet(t, store, "paper1", "Sim.ProjectDir"); got != "/data/paper1" {
		t.Errorf("got %q, want /data/paper1", got)
	}
}

func TestProjectNameDefaultsToSection(t *testing.T) {
	store := buildStore(t, []string{}, "[paper1]\nSim.Queue = q\n")

	if got := mustGet(t, store, "paper1", ProjectNameKey); got != "paper1" {
		t.Errorf("got %q, want paper1", got)
	}

	explicit := buildStore(t, []string{}, "[paper1]\nSim.ProjectName = renamed\n")
	if got := mustGet(t, explicit, "paper1", ProjectNameKey); got != "renamed" {
		t.Errorf("explicit name should win, got %q", got)
	}
}

func TestCommandLineOverrides(t *testing.T) {
	ld := NewLoader()
	ld.environ = []string{}
	if err := ld.AddSource("base", []byte("[DEFAULT]\nSim.Queue = slow\n")); err != nil {
		t.Fatalf("AddSource failed: %v", err)
	}
	if err := ld.Set("Sim.Queue=fast"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := ld.Set("paper1:Sim.Minutes=30"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	store, err := ld.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := mustGet(t, store, "paper1", "Sim.Queue"); got != "fast" {
		t.Errorf("override should win, got %q", got)
	}
	if got := mustGet(t, store, "paper1", "Sim.Minutes"); got != "30" {
		t.Errorf("sectioned override lost, got %q", got)
	}
	if _, ok, _ := store.Get("paper2", "Sim.Minutes"); ok {
		t.Error("sectioned override leaked into another section")
	}

	if err := ld.Set("nonsense"); err == nil {
		t.Error("expected error for malformed override")
	}
}

func TestGetRequired(t *testing.T) {
	store := buildStore(t, []string{}, "[DEFAULT]\nSim.Queue = q\n")

	if _, err := store.GetRequired("paper1", "Sim.Queue"); err != nil {
		t.Fatalf("GetRequired failed: %v", err)
	}
	_, err := store.GetRequired("paper1", "Sim.Missing")
	if !errdefs.HasCode(err, errdefs.CodeRequiredMissing) {
		t.Errorf("expected REQUIRED_MISSING, got %v", err)
	}
}

func TestCoercions(t *testing.T) {
	src := "[DEFAULT]\n" +
		"BoolYes = Yes\nBoolOff = off\nBoolBad = maybe\n" +
		"Int = 42\nIntBad = 4x\nFloat = 2.5\n"
	store := buildStore(t, []string{}, src)

	if b, err := store.GetBool("s", "BoolYes"); err != nil || !b {
		t.Errorf("GetBool(BoolYes) = %v, %v", b, err)
	}
	if b, err := store.GetBool("s", "BoolOff"); err != nil || b {
		t.Errorf("GetBool(BoolOff) = %v, %v", b, err)
	}
	if _, err := store.GetBool("s", "BoolBad"); !errdefs.HasCode(err, errdefs.CodeCoercionFailed) {
		t.Errorf("expected COERCION_FAILED, got %v", err)
	}
	if n, err := store.GetInt("s", "Int"); err != nil || n != 42 {
		t.Errorf("GetInt = %v, %v", n, err)
	}
	if _, err := store.GetInt("s", "IntBad"); !errdefs.HasCode(err, errdefs.CodeCoercionFailed) {
		t.Errorf("expected COERCION_FAILED, got %v", err)
	}
	if f, err := store.GetFloat("s", "Float"); err != nil || f != 2.5 {
		t.Errorf("GetFloat = %v, %v", f, err)
	}
}

func TestResolutionCycleDetected(t *testing.T) {
	src := "[DEFAULT]\nA = {B}\nB = {A}\n"
	store := buildStore(t, []string{}, src)

	_, _, err := store.Get("s", "A")
	if !errdefs.HasCode(err, errdefs.CodeCyclicReference) {
		t.Errorf("expected CYCLIC_REFERENCE, got %v", err)
	}
}

func TestSectionsAndKeys(t *testing.T) {
	store := buildStore(t, []string{},
		"[DEFAULT]\nShared = x\n\n[beta]\nB = 1\n",
		"[alpha]\nA = 1\n")

	if diff := cmp.Diff([]string{"alpha", "beta"}, store.Sections()); diff != "" {
		t.Errorf("Sections mismatch (-want +got):\n%s", diff)
	}

	keys := store.Keys("alpha")
	want := map[string]bool{"A": true, "Shared": true}
	for _, k := range keys {
		delete(want, k)
	}
	if len(want) > 0 {
		t.Errorf("Keys(alpha) = %v, missing %v", keys, want)
	}
}

func TestReadConfigWithExtraFile(t *testing.T) {
	dir := t.TempDir()
	extra := filepath.Join(dir, "extra.cfg")
	if err := os.WriteFile(extra, []byte("[DEFAULT]\nSim.BatchQueue = custom\n"), 0644); err != nil {
		t.Fatalf("write extra config: %v", err)
	}

	store, err := ReadConfig([]string{"Sim.LogLevel=debug"}, extra)
	if err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}

	if got := mustGet(t, store, "paper1", "Sim.BatchQueue"); got != "custom" {
		t.Errorf("extra file should beat bundled defaults, got %q", got)
	}
	if got := mustGet(t, store, "paper1", "Sim.LogLevel"); got != "debug" {
		t.Errorf("override should win, got %q", got)
	}
}

func TestProjectSection(t *testing.T) {
	store := buildStore(t, []string{}, "[DEFAULT]\nSim.DefaultProject = paper1\n")

	if got := store.ProjectSection(""); got != "paper1" {
		t.Errorf("got %q, want paper1", got)
	}
	if got := store.ProjectSection("explicit"); got != "explicit" {
		t.Errorf("got %q, want explicit", got)
	}

	bare := buildStore(t, []string{}, "[DEFAULT]\nX = 1\n")
	if got := bare.ProjectSection(""); got != DefaultSection {
		t.Errorf("got %q, want DEFAULT", got)
	}
}
