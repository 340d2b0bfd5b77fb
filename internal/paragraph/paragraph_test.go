package paragraph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const testCorpus = `
paragraphs:
  - text: "cats   are great"
    topics: [Cats]
  - text: "dogs are loyal"
    topics: [dogs, animals]
  - text: "   "
`

func TestParseNormalizesEntries(t *testing.T) {
	c, err := Parse([]byte(testCorpus))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if c.entries[0].Text != "cats are great" {
		t.Errorf("text = %q, want collapsed whitespace", c.entries[0].Text)
	}
	if c.entries[0].Topics[0] != "cats" {
		t.Errorf("topic = %q, want lowercased", c.entries[0].Topics[0])
	}
}

func TestNextFiltersByTopic(t *testing.T) {
	c, _ := Parse([]byte(testCorpus))
	ctx := context.Background()
	for range 10 {
		got, err := c.Next(ctx, []string{" CATS "})
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got != "cats are great" {
			t.Fatalf("Next(cats) = %q", got)
		}
	}
	if _, err := c.Next(ctx, []string{"space"}); !errors.Is(err, ErrNoParagraphs) {
		t.Fatalf("unknown topic err = %v, want %v", err, ErrNoParagraphs)
	}
}

func TestNextWithoutTopics(t *testing.T) {
	c, _ := Parse([]byte(testCorpus))
	seen := map[string]bool{}
	for range 50 {
		got, err := c.Next(context.Background(), nil)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		seen[got] = true
	}
	for text := range seen {
		if text != "cats are great" && text != "dogs are loyal" {
			t.Errorf("unexpected paragraph %q", text)
		}
	}
}

func TestNextHonoursCancelledContext(t *testing.T) {
	c, _ := Parse([]byte(testCorpus))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Next(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestLoad(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load embedded: %v", err)
	}
	if c.Len() == 0 {
		t.Fatal("embedded corpus is empty")
	}

	path := filepath.Join(t.TempDir(), "p.yaml")
	if err := os.WriteFile(path, []byte(testCorpus), 0o600); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	c, err = Load(path)
	if err != nil {
		t.Fatalf("Load file: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}

	if _, err := Parse([]byte("paragraphs: []")); !errors.Is(err, ErrNoParagraphs) {
		t.Fatalf("empty corpus err = %v, want %v", err, ErrNoParagraphs)
	}
}
