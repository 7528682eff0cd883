package pipeline

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Source extensions in order of preference.
var sourceExts = []string{".pdf", ".txt"}

const sheetExt = ".xlsx"

// Pair is a source document and its ground-truth spreadsheet.
type Pair struct {
	Base   string
	Source string
	Sheet  string
}

// Discover finds document/spreadsheet pairs in dir. A source is paired with
// the spreadsheet of the same base name; extensions match in any case.
// Sources without a spreadsheet are returned as orphans. When a base has both
// a .pdf and a .txt source, the .pdf wins.
func Discover(dir string) (pairs []Pair, orphans []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "pipeline: read dir %s", dir)
	}

	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names[e.Name()] = true
		}
	}

	bases := make(map[string]string)
	sheets := make(map[string]string)
	for name := range names {
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		if strings.EqualFold(ext, sheetExt) {
			sheets[base] = name
			continue
		}
		rank := extRank(ext)
		if rank < 0 {
			continue
		}
		if cur, ok := bases[base]; ok && extRank(filepath.Ext(cur)) <= rank {
			continue
		}
		bases[base] = name
	}

	keys := make([]string, 0, len(bases))
	for b := range bases {
		keys = append(keys, b)
	}
	sort.Strings(keys)

	for _, base := range keys {
		source := filepath.Join(dir, bases[base])
		sheet, ok := sheets[base]
		if !ok {
			orphans = append(orphans, source)
			continue
		}
		pairs = append(pairs, Pair{
			Base:   base,
			Source: source,
			Sheet:  filepath.Join(dir, sheet),
		})
	}
	return pairs, orphans, nil
}

// NewPair builds a pair from explicit paths.
func NewPair(source, sheet string) Pair {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return Pair{Base: base, Source: source, Sheet: sheet}
}

func extRank(ext string) int {
	for i, e := range sourceExts {
		if strings.EqualFold(ext, e) {
			return i
		}
	}
	return -1
}
