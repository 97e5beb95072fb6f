package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Language struct {
	Name      string   `toml:"name"`
	FileTypes []string `toml:"file-types"`
}

type Languages struct {
	Languages []Language `toml:"language"`
}

// DefaultLanguages maps file types to the tokenizer names registered in
// internal/highlight.
func DefaultLanguages() Languages {
	return Languages{
		Languages: []Language{
			{Name: "python", FileTypes: []string{"py", "pyw"}},
			{Name: "javascript", FileTypes: []string{"js", "mjs", "cjs", "jsx"}},
			{Name: "html", FileTypes: []string{"html", "htm"}},
			{Name: "css", FileTypes: []string{"css"}},
			{Name: "go", FileTypes: []string{"go"}},
		},
	}
}

// Match returns the language for a path, or nil for plain text.
func (l Languages) Match(path string) *Language {
	base := filepath.Base(path)
	baseLower := strings.ToLower(base)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(base), "."))
	for i := range l.Languages {
		lang := &l.Languages[i]
		for _, ft := range lang.FileTypes {
			ftLower := strings.ToLower(ft)
			if ftLower == ext || ftLower == baseLower {
				return lang
			}
			if strings.HasPrefix(ftLower, ".") && strings.TrimPrefix(ftLower, ".") == ext {
				return lang
			}
		}
	}
	return nil
}

// LoadLanguages reads languages.toml if present; user entries are checked
// before the built-in table so a file type can be rebound.
func LoadLanguages() (Languages, error) {
	defaults := DefaultLanguages()
	path, err := LanguagesPath()
	if err != nil {
		return defaults, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return defaults, err
	}

	var cfg Languages
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return defaults, err
	}
	cfg.Languages = append(cfg.Languages, defaults.Languages...)
	return cfg, nil
}

func LanguagesPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "languages.toml"), nil
}
