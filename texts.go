package typeshield

import (
	"bufio"
	"io"
	"math/rand"
	"strings"
	"sync/atomic"
)

// TextPool is the in-memory challenge sentence cache. It is loaded once
// at startup and read concurrently by every request; reloads swap the
// whole slice atomically instead of mutating it in place.
type TextPool struct {
	fallback string
	texts    atomic.Value // []string
}

// NewTextPool builds an empty pool that serves the fallback sentence
// until loaded.
func NewTextPool(fallback string) *TextPool {
	p := &TextPool{fallback: fallback}
	p.texts.Store([]string(nil))
	return p
}

// Load replaces the pool with the given sentences, trimmed, lowercased,
// with empty lines dropped.
func (p *TextPool) Load(lines []string) int {
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.ToLower(strings.TrimSpace(line))
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	p.texts.Store(cleaned)
	return len(cleaned)
}

// LoadReader reads newline-separated sentences and loads them.
func (p *TextPool) LoadReader(r io.Reader) (int, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return p.Load(lines), nil
}

// Random picks a sentence uniformly, or the fallback when the pool is
// empty.
func (p *TextPool) Random() string {
	texts, _ := p.texts.Load().([]string)
	if len(texts) == 0 {
		return p.fallback
	}
	return texts[rand.Intn(len(texts))]
}

// Size reports how many sentences are loaded.
func (p *TextPool) Size() int {
	texts, _ := p.texts.Load().([]string)
	return len(texts)
}
