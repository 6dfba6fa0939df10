package engine

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed seed.txt
var embeddedSeed []byte

const embeddedSeedExt = ".txt"

// loadSeed returns the seed artifact content and the file extension replicas
// inherit. The embedded seed is used unless the config names one; the tool
// never replicates its own binary.
func loadSeed(cfg Config) ([]byte, string, error) {
	if cfg.SeedPath == "" {
		return embeddedSeed, embeddedSeedExt, nil
	}
	b, err := os.ReadFile(cfg.SeedPath)
	if err != nil {
		return nil, "", fmt.Errorf("read seed artifact: %w", err)
	}
	ext := filepath.Ext(cfg.SeedPath)
	if ext == "" {
		ext = embeddedSeedExt
	}
	return b, ext, nil
}

func replicaName(index int, ext string) string {
	return fmt.Sprintf("replica-%03d%s", index, ext)
}
