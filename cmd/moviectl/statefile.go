package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sakif/moviecatalog/internal/client"
	"github.com/sakif/moviecatalog/internal/model"
)

// stateFile wraps client.State's own format with the last search, which
// "add <n>" refers back to.
type stateFile struct {
	State      json.RawMessage      `json:"state"`
	LastSearch []model.SearchResult `json:"lastSearch,omitempty"`
}

func loadState(path string, st *client.State) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var f stateFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(f.State) > 0 {
		if err := st.Load(bytes.NewReader(f.State)); err != nil {
			return err
		}
	}
	st.SearchResults = f.LastSearch
	return nil
}

// saveState writes atomically through a temp file; the file holds a token,
// so it is private to the user.
func saveState(path string, st *client.State) error {
	var buf bytes.Buffer
	if err := st.Save(&buf); err != nil {
		return err
	}
	out, err := json.MarshalIndent(stateFile{State: buf.Bytes(), LastSearch: st.SearchResults}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
