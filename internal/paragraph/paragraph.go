// Package paragraph supplies the texts players are asked to type.
package paragraph

import (
	"context"
	"crypto/rand"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	util "github.com/CodeAndHammer/typeduel/internal/util"
)

//go:embed data/paragraphs.yaml
var defaultCorpus []byte

var ErrNoParagraphs = errors.New("no paragraphs available")

type Entry struct {
	Text   string   `yaml:"text"`
	Topics []string `yaml:"topics"`
}

type corpus struct {
	Paragraphs []Entry `yaml:"paragraphs"`
}

// Supplier hands out random paragraphs, optionally restricted to topics.
type Supplier interface {
	Next(ctx context.Context, topics []string) (string, error)
}

// Corpus is an in-memory Supplier loaded from YAML.
type Corpus struct {
	entries []Entry
}

// Load reads a YAML corpus from path, or the embedded corpus when path is empty.
func Load(path string) (*Corpus, error) {
	data := defaultCorpus
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read paragraphs: %w", err)
		}
	}
	return Parse(data)
}

func Parse(data []byte) (*Corpus, error) {
	var c corpus
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse paragraphs: %w", err)
	}
	entries := lo.FilterMap(c.Paragraphs, func(e Entry, i int) (Entry, bool) {
		e.Text = strings.Join(strings.Fields(e.Text), " ")
		if e.Text == "" {
			util.LogWarn("Skipping empty paragraph at index %d", i)
			return e, false
		}
		e.Topics = lo.Map(e.Topics, func(topic string, _ int) string {
			return strings.ToLower(strings.TrimSpace(topic))
		})
		return e, true
	})
	if len(entries) == 0 {
		return nil, ErrNoParagraphs
	}
	return &Corpus{entries: entries}, nil
}

func (c *Corpus) Len() int {
	return len(c.entries)
}

// Next returns a random paragraph about any of topics. Topic matching is case-insensitive;
// with no topics every paragraph is eligible.
func (c *Corpus) Next(ctx context.Context, topics []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	candidates := c.entries
	if wanted := normalizeTopics(topics); len(wanted) > 0 {
		candidates = lo.Filter(c.entries, func(e Entry, _ int) bool {
			return lo.Some(e.Topics, wanted)
		})
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: topics %v", ErrNoParagraphs, topics)
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(candidates))))
	if err != nil {
		util.LogWarn("%sError generating random number: %v, using fallback", util.ReqPrefix(ctx), err)
		return candidates[0].Text, nil
	}
	return candidates[n.Int64()].Text, nil
}

func normalizeTopics(topics []string) []string {
	return lo.Uniq(lo.FilterMap(topics, func(topic string, _ int) (string, bool) {
		topic = strings.ToLower(strings.TrimSpace(topic))
		return topic, topic != ""
	}))
}
