// Package region resolves a region name to the files that belong to it.
package region

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds a region name into its file stem: accents stripped,
// lower-cased, whitespace collapsed to underscores ("Paraíba" -> "paraiba",
// "Rio Grande do Norte" -> "rio_grande_do_norte").
func Normalize(name string) (string, error) {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.TrimSpace(name))
	if err != nil {
		return "", eris.Wrapf(err, "region: normalize %q", name)
	}
	folded = strings.Join(strings.Fields(strings.ToLower(folded)), "_")
	if folded == "" {
		return "", eris.New("region: empty region name")
	}
	if strings.ContainsAny(folded, `/\`) || folded == "." || folded == ".." {
		return "", eris.Errorf("region: invalid region name %q", name)
	}
	return folded, nil
}

// Paths are the files a crawl of one region reads and writes.
type Paths struct {
	Name   string // normalized region name
	Input  string // original coordinate list, never modified
	Resume string // resumable working copy of Input
	Output string // append-only results
}

// Resolve builds the Paths for name under the given directories.
func Resolve(name, inputDir, resultsDir, resumeSuffix string) (Paths, error) {
	stem, err := Normalize(name)
	if err != nil {
		return Paths{}, err
	}
	input := filepath.Join(inputDir, stem+".csv")
	return Paths{
		Name:   stem,
		Input:  input,
		Resume: input + resumeSuffix,
		Output: filepath.Join(resultsDir, stem+"_output.csv"),
	}, nil
}

// Discover lists the region stems that have a coordinate file in inputDir.
func Discover(inputDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(inputDir, "*.csv"))
	if err != nil {
		return nil, eris.Wrap(err, "region: glob input dir")
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".csv"))
	}
	return names, nil
}
