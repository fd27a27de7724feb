package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/boardharvest/internal/cache"
	"github.com/ppiankov/boardharvest/internal/model"
	"github.com/ppiankov/boardharvest/internal/store"
)

func TestResolveBoards(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "boards.txt")
	if err := os.WriteFile(file, []byte("# hot boards\nNBA\n\nStock\n"), 0644); err != nil {
		t.Fatal(err)
	}

	boards, err := resolveBoards([]string{"Stock", " Gossiping "}, file, []string{"Ignored"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(boards, ",") != "Stock,Gossiping,NBA" {
		t.Errorf("unexpected boards: %v", boards)
	}

	boards, err = resolveBoards(nil, "", []string{"Tech_Job"})
	if err != nil || len(boards) != 1 || boards[0] != "Tech_Job" {
		t.Errorf("expected configured boards, got %v (%v)", boards, err)
	}

	if _, err := resolveBoards(nil, "", nil); err == nil {
		t.Error("expected error with no boards")
	}
	if _, err := resolveBoards(nil, filepath.Join(dir, "missing.txt"), nil); err == nil {
		t.Error("expected error for missing boards file")
	}
}

func TestMaskKey(t *testing.T) {
	tests := map[string]string{
		"":               "",
		"abc":            "****",
		"secret-api-key": "****-key",
	}
	for in, want := range tests {
		if got := maskKey(in); got != want {
			t.Errorf("maskKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api:
  key: from-file
harvest:
  stop_threshold: 9
  old_before: "2024-01-01"
enrich:
  timeout: 5s
fields:
  post:
    title: true
    acceptedDate: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	setDefaults(v, model.DefaultConfig())
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(v)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.API.Key != "from-file" || cfg.Harvest.StopThreshold != 9 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Enrich.Timeout.Seconds() != 5 {
		t.Errorf("expected 5s detail timeout, got %v", cfg.Enrich.Timeout)
	}
	if cfg.Harvest.CheckpointPages != 100 || cfg.API.ListingURL == "" {
		t.Errorf("defaults not kept: %+v", cfg.Harvest)
	}
	if !cfg.Fields.Post.Includes(model.PostFieldAcceptedDate) {
		t.Errorf("expected camel-case field restored, got %v", cfg.Fields.Post)
	}
	if cfg.Fields.Post.Includes(model.PostFieldHits) {
		t.Error("fields missing from a configured set must be excluded")
	}
	if !cfg.Fields.Comment.Includes(model.CommentFieldTag) {
		t.Errorf("expected default comment fields, got %v", cfg.Fields.Comment)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	v := viper.New()
	setDefaults(v, model.DefaultConfig())
	v.Set("store.backend", "csv")

	if _, err := loadConfig(v); err == nil {
		t.Error("expected invalid backend to be rejected")
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := writeDefaultConfig(path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Harvest.StopThreshold != 5 {
		t.Errorf("unexpected threshold: %d", cfg.Harvest.StopThreshold)
	}

	if err := writeDefaultConfig(path); err == nil {
		t.Error("expected refusal to overwrite")
	}
}

func TestStatus_ReadsStoreOnly(t *testing.T) {
	dir := t.TempDir()
	storeDir := filepath.Join(dir, "data")
	cacheDir := filepath.Join(dir, "cache")

	js, err := store.NewJSONStore(storeDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := store.NewCollection("Stock", nil)
	c.Append(model.Record{ID: "a"})
	c.Append(model.Record{ID: "b"})
	if err := js.Save(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	viper.Reset()
	defer viper.Reset()
	setDefaults(viper.GetViper(), model.DefaultConfig())
	viper.Set("store.dir", storeDir)
	viper.Set("cache.enabled", true)
	viper.Set("cache.dir", cacheDir)

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	if err := runStatus(cmd, nil); err != nil {
		t.Fatalf("status failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "Stock") || len(strings.Fields(lines[1])) != 5 {
		t.Fatalf("unexpected status output:\n%s", out.String())
	}
	if fields := strings.Fields(lines[1]); fields[1] != "2" || fields[3] != "2" {
		t.Errorf("expected 2 records pending, got %v", fields)
	}
	if _, err := os.Stat(cacheDir); !os.IsNotExist(err) {
		t.Errorf("status must not create the cache dir, stat err=%v", err)
	}
}

func TestCacheClear_RemovesEntries(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "cache")
	dc := cache.NewDiskCache(cacheDir, time.Hour)
	for _, k := range []string{"one", "two"} {
		if err := dc.Set(cache.CacheKey(k), []byte(k), 0); err != nil {
			t.Fatal(err)
		}
	}

	viper.Reset()
	defer viper.Reset()
	setDefaults(viper.GetViper(), model.DefaultConfig())
	viper.Set("cache.dir", cacheDir)

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	if err := runCacheClear(cmd, nil); err != nil {
		t.Fatalf("cache clear failed: %v", err)
	}

	if !strings.Contains(out.String(), "Removed 2 cached responses") {
		t.Errorf("unexpected output: %s", out.String())
	}
	if _, ok := dc.Get(cache.CacheKey("one")); ok {
		t.Error("expected cached entry to be gone")
	}
	if n, _ := dc.Len(); n != 0 {
		t.Errorf("expected empty cache, got %d entries", n)
	}
}
