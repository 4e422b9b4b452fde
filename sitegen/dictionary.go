package sitegen

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

// fallback word list for when /usr/share/dict/words doesn't exist (windows, containers)
var fallbackWords = []string{
	"page", "load", "paint", "cycle", "frame", "layout", "style", "script",
	"render", "document", "window", "event", "timer", "delay", "harness",
	"browser", "tab", "navigate", "manifest", "include", "sample", "median",
	"report", "prefix", "signal", "message", "channel", "listener", "record",
	"collect", "memory", "garbage", "heap", "worker", "thread", "queue",
	"image", "canvas", "table", "list", "header", "footer", "section",
	"article", "aside", "paragraph", "anchor", "button", "input", "form",
	"font", "color", "border", "margin", "padding", "width", "height",
	"block", "inline", "flex", "grid", "float", "scroll", "overflow",
	"network", "request", "response", "cache", "socket", "stream", "buffer",
	"origin", "domain", "path", "query", "fragment", "scheme", "port",
}

// Dictionary holds a list of words for random selection
type Dictionary struct {
	words []string
}

// LoadDictionary loads words from a dictionary file
func LoadDictionary(path string) (*Dictionary, error) {
	file, err := os.Open(path)
	if err != nil {
		// fallback to built-in word list if file doesn't exist
		if os.IsNotExist(err) {
			return &Dictionary{words: fallbackWords}, nil
		}
		return nil, fmt.Errorf("failed to open dictionary: %w", err)
	}
	defer file.Close()

	var words []string
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())

		// filter to reasonable length (3-15 chars) and alpha only
		if len(word) >= 3 && len(word) <= 15 && isAlpha(word) {
			words = append(words, strings.ToLower(word))
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dictionary: %w", err)
	}

	if len(words) == 0 {
		return nil, fmt.Errorf("no valid words found in dictionary")
	}

	return &Dictionary{words: words}, nil
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// RandomWord returns a random word from the dictionary
func (d *Dictionary) RandomWord(rng *rand.Rand) string {
	if len(d.words) == 0 {
		return "word"
	}
	return d.words[rng.Intn(len(d.words))]
}

// Sentence strings n random words together, capitalized and full-stopped.
func (d *Dictionary) Sentence(n int, rng *rand.Rand) string {
	if n <= 0 {
		return ""
	}
	words := make([]string, n)
	for i := range words {
		words[i] = d.RandomWord(rng)
	}
	s := strings.Join(words, " ")
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

// Size returns the number of words in the dictionary
func (d *Dictionary) Size() int {
	return len(d.words)
}
