package purge

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

var wordPattern = regexp.MustCompile(`[A-Za-z0-9_:/-]+`)

// Content is the set of words found in templates and scripts. A selector name is considered
// used if it appears as a word.
type Content struct {
	words map[string]struct{}
}

// NewContent returns an empty word set
func NewContent() *Content {
	return &Content{words: make(map[string]struct{})}
}

// Add extracts the words of data. Words containing : or / (escaped class names like
// md:flex) are also split into their parts.
func (c *Content) Add(data []byte) {
	for _, match := range wordPattern.FindAll(data, -1) {
		word := string(match)
		c.words[word] = struct{}{}

		if strings.ContainsAny(word, ":/") {
			for _, part := range strings.FieldsFunc(word, func(r rune) bool {
				return r == ':' || r == '/'
			}) {
				c.words[part] = struct{}{}
			}
		}
	}
}

// AddFiles reads each file and adds its words
func (c *Content) AddFiles(paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrapf(err, "failed to read content file %s", path)
		}
		c.Add(data)
	}
	return nil
}

// Has reports whether word was seen
func (c *Content) Has(word string) bool {
	_, found := c.words[word]
	return found
}

// Len returns the number of distinct words
func (c *Content) Len() int {
	return len(c.words)
}
