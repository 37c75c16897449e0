package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadResult contains the models loaded from a directory.
type LoadResult struct {
	Models    []ModelDecl
	CUEValue  cue.Value
	FileCount int
}

// LoadDir loads every .cue file of dir as one CUE instance and compiles its
// models.
func LoadDir(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("load models: not a directory: %s", dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("load models: scanning %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("load models: no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("load models: no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	models, err := CompileModels(value)
	if err != nil {
		return nil, err
	}
	return &LoadResult{Models: models, CUEValue: value, FileCount: len(files)}, nil
}

// LoadString compiles models from CUE source. filename is used in error
// positions.
func LoadString(src, filename string) ([]ModelDecl, error) {
	value := cuecontext.New().CompileString(src, cue.Filename(filename))
	return CompileModels(value)
}

// LoadFile compiles models from a single CUE file.
func LoadFile(path string) ([]ModelDecl, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}
	return LoadString(string(src), path)
}

// FindCUEFiles returns the .cue files directly inside dir.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}
