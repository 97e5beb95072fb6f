package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type EditorOptions struct {
	TabWidth           int  `toml:"tab-width"`
	LineNumbers        bool `toml:"line-numbers"`
	SyntaxHighlighting bool `toml:"syntax-highlighting"`
	HighlightDelayMs   int  `toml:"highlight-delay-ms"`
}

type FileOptions struct {
	AutoSave         bool     `toml:"auto-save"`
	AutoSaveInterval int      `toml:"auto-save-interval"`
	CreateBackups    bool     `toml:"create-backups"`
	MaxBackups       int      `toml:"max-backups"`
	MaxRecentFiles   int      `toml:"max-recent-files"`
	RecentFiles      []string `toml:"recent-files"`
}

type Theme struct {
	Foreground            string `toml:"foreground"`
	Background            string `toml:"background"`
	StatuslineForeground  string `toml:"statusline-foreground"`
	StatuslineBackground  string `toml:"statusline-background"`
	PromptForeground      string `toml:"prompt-foreground"`
	PromptBackground      string `toml:"prompt-background"`
	LineNumberForeground  string `toml:"line-number-foreground"`
	SelectionForeground   string `toml:"selection-foreground"`
	SelectionBackground   string `toml:"selection-background"`
	SearchMatchForeground string `toml:"search-foreground"`
	SearchMatchBackground string `toml:"search-background"`
	SyntaxKeyword         string `toml:"syntax-keyword"`
	SyntaxString          string `toml:"syntax-string"`
	SyntaxComment         string `toml:"syntax-comment"`
	SyntaxNumber          string `toml:"syntax-number"`
	SyntaxFunction        string `toml:"syntax-function"`
	SyntaxClass           string `toml:"syntax-class"`
	SyntaxOperator        string `toml:"syntax-operator"`
	SyntaxBuiltin         string `toml:"syntax-builtin"`
}

type Config struct {
	Editor EditorOptions `toml:"editor"`
	Files  FileOptions   `toml:"files"`
	Theme  Theme         `toml:"theme"`
}

func Default() Config {
	return Config{
		Editor: EditorOptions{
			TabWidth:           4,
			LineNumbers:        true,
			SyntaxHighlighting: true,
			HighlightDelayMs:   500,
		},
		Files: FileOptions{
			AutoSave:         true,
			AutoSaveInterval: 30,
			CreateBackups:    true,
			MaxBackups:       10,
			MaxRecentFiles:   10,
			RecentFiles:      []string{},
		},
		Theme: Theme{
			Foreground:            "#D4D4D4",
			Background:            "#1E1E1E",
			StatuslineForeground:  "#D4D4D4",
			StatuslineBackground:  "#007ACC",
			PromptForeground:      "#D4D4D4",
			PromptBackground:      "#252526",
			LineNumberForeground:  "#858585",
			SelectionForeground:   "#D4D4D4",
			SelectionBackground:   "#264F78",
			SearchMatchForeground: "#000000",
			SearchMatchBackground: "#FFC107",
			SyntaxKeyword:         "#569CD6",
			SyntaxString:          "#CE9178",
			SyntaxComment:         "#6A9955",
			SyntaxNumber:          "#B5CEA8",
			SyntaxFunction:        "#DCDCAA",
			SyntaxClass:           "#4EC9B0",
			SyntaxOperator:        "#D4D4D4",
			SyntaxBuiltin:         "#569CD6",
		},
	}
}

// Store is the persistent settings store. The core reads options from it
// and writes the recent-files list back through Save.
type Store struct {
	Config
	path string
}

func Load() (*Store, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

func LoadFrom(path string) (*Store, error) {
	s := &Store{Config: Default(), path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, err
	}

	var userCfg Config
	md, err := toml.Decode(string(data), &userCfg)
	if err != nil {
		return s, err
	}
	merge(&s.Config, userCfg, md)
	return s, nil
}

// merge overlays the fields actually present in the user's file onto the
// defaults. Booleans need the metadata check so an explicit false wins.
func merge(cfg *Config, user Config, md toml.MetaData) {
	if user.Editor.TabWidth > 0 {
		cfg.Editor.TabWidth = user.Editor.TabWidth
	}
	if md.IsDefined("editor", "line-numbers") {
		cfg.Editor.LineNumbers = user.Editor.LineNumbers
	}
	if md.IsDefined("editor", "syntax-highlighting") {
		cfg.Editor.SyntaxHighlighting = user.Editor.SyntaxHighlighting
	}
	if user.Editor.HighlightDelayMs > 0 {
		cfg.Editor.HighlightDelayMs = user.Editor.HighlightDelayMs
	}
	if md.IsDefined("files", "auto-save") {
		cfg.Files.AutoSave = user.Files.AutoSave
	}
	if user.Files.AutoSaveInterval > 0 {
		cfg.Files.AutoSaveInterval = user.Files.AutoSaveInterval
	}
	if md.IsDefined("files", "create-backups") {
		cfg.Files.CreateBackups = user.Files.CreateBackups
	}
	if user.Files.MaxBackups > 0 {
		cfg.Files.MaxBackups = user.Files.MaxBackups
	}
	if user.Files.MaxRecentFiles > 0 {
		cfg.Files.MaxRecentFiles = user.Files.MaxRecentFiles
	}
	if md.IsDefined("files", "recent-files") {
		cfg.Files.RecentFiles = user.Files.RecentFiles
	}
	if user.Theme.Foreground != "" {
		cfg.Theme.Foreground = user.Theme.Foreground
	}
	if user.Theme.Background != "" {
		cfg.Theme.Background = user.Theme.Background
	}
	if user.Theme.StatuslineForeground != "" {
		cfg.Theme.StatuslineForeground = user.Theme.StatuslineForeground
	}
	if user.Theme.StatuslineBackground != "" {
		cfg.Theme.StatuslineBackground = user.Theme.StatuslineBackground
	}
	if user.Theme.PromptForeground != "" {
		cfg.Theme.PromptForeground = user.Theme.PromptForeground
	}
	if user.Theme.PromptBackground != "" {
		cfg.Theme.PromptBackground = user.Theme.PromptBackground
	}
	if user.Theme.LineNumberForeground != "" {
		cfg.Theme.LineNumberForeground = user.Theme.LineNumberForeground
	}
	if user.Theme.SelectionForeground != "" {
		cfg.Theme.SelectionForeground = user.Theme.SelectionForeground
	}
	if user.Theme.SelectionBackground != "" {
		cfg.Theme.SelectionBackground = user.Theme.SelectionBackground
	}
	if user.Theme.SearchMatchForeground != "" {
		cfg.Theme.SearchMatchForeground = user.Theme.SearchMatchForeground
	}
	if user.Theme.SearchMatchBackground != "" {
		cfg.Theme.SearchMatchBackground = user.Theme.SearchMatchBackground
	}
	if user.Theme.SyntaxKeyword != "" {
		cfg.Theme.SyntaxKeyword = user.Theme.SyntaxKeyword
	}
	if user.Theme.SyntaxString != "" {
		cfg.Theme.SyntaxString = user.Theme.SyntaxString
	}
	if user.Theme.SyntaxComment != "" {
		cfg.Theme.SyntaxComment = user.Theme.SyntaxComment
	}
	if user.Theme.SyntaxNumber != "" {
		cfg.Theme.SyntaxNumber = user.Theme.SyntaxNumber
	}
	if user.Theme.SyntaxFunction != "" {
		cfg.Theme.SyntaxFunction = user.Theme.SyntaxFunction
	}
	if user.Theme.SyntaxClass != "" {
		cfg.Theme.SyntaxClass = user.Theme.SyntaxClass
	}
	if user.Theme.SyntaxOperator != "" {
		cfg.Theme.SyntaxOperator = user.Theme.SyntaxOperator
	}
	if user.Theme.SyntaxBuiltin != "" {
		cfg.Theme.SyntaxBuiltin = user.Theme.SyntaxBuiltin
	}
}

// Save writes the settings back to disk, keeping a one-deep backup of the
// previous file so a bad write can be recovered by hand.
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if prev, err := os.ReadFile(s.path); err == nil {
		_ = os.WriteFile(s.path+".backup", prev, 0o644)
	}
	f, err := os.Create(s.path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(s.Config)
}

func (s *Store) Path() string {
	return s.path
}

func ConfigDir() (string, error) {
	if v := os.Getenv("QUILL_CONFIG_HOME"); v != "" {
		return filepath.Join(v), nil
	}
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "quill"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "quill"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// BackupsDir is where the file manager keeps timestamped copies of
// overwritten files.
func BackupsDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "backups"), nil
}
