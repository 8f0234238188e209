package termmap

import (
	"encoding/json"
	"os"
	"path/filepath"

	"golang.org/x/text/language"
)

// Filename returns the glossary filename for a target language, using its
// 2-letter base code (e.g. "term_map.vi.json").
func Filename(targetLang string) string {
	return "term_map." + normalizeLanguageCode(targetLang) + ".json"
}

// FilePath returns the full path to the glossary file in the given directory.
func FilePath(dir, targetLang string) string {
	return filepath.Join(dir, Filename(targetLang))
}

// Load reads a glossary from a JSON object file.
func Load(path string) (TermMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tm TermMap
	if err := json.Unmarshal(data, &tm); err != nil {
		return nil, err
	}
	if tm == nil {
		tm = TermMap{}
	}
	return tm, nil
}

// Save writes the glossary with indentation, replacing the file atomically.
func Save(path string, tm TermMap) error {
	data, err := json.MarshalIndent(tm, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// normalizeLanguageCode parses a language string and returns its 2-letter base code.
func normalizeLanguageCode(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	base, _ := tag.Base()
	return base.String()
}
