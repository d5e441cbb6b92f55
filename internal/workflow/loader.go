package workflow

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadRecipeFromFile loads a recipe definition from a YAML file
func LoadRecipeFromFile(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe file: %w", err)
	}

	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse recipe YAML: %w", err)
	}
	if r.Name == "" {
		r.Name = trimExt(filepath.Base(path))
	}
	if r.Cap == 0 {
		r.Cap = DefaultCap
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	return &r, nil
}

// LoadRecipes loads all recipe definitions from a directory
func LoadRecipes(dir string) ([]*Recipe, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipes directory: %w", err)
	}

	var recipes []*Recipe
	for _, file := range files {
		ext := filepath.Ext(file.Name())
		if file.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		path := filepath.Join(dir, file.Name())
		r, err := LoadRecipeFromFile(path)
		if err != nil {
			log.Printf("[Workflow] Warning: failed to load %s: %v", file.Name(), err)
			continue
		}

		recipes = append(recipes, r)
		log.Printf("[Workflow] Loaded recipe: %s (%d patterns)", r.Name, len(r.Patterns))
	}

	return recipes, nil
}

// Resolve returns the preset with the given name, or loads the recipe from
// the file at that path.
func Resolve(nameOrPath string) (*Recipe, error) {
	if r, ok := Presets()[nameOrPath]; ok {
		return r, nil
	}
	if _, err := os.Stat(nameOrPath); err != nil {
		return nil, fmt.Errorf("unknown recipe %q", nameOrPath)
	}
	return LoadRecipeFromFile(nameOrPath)
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
