package features

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultLexiconClassify(t *testing.T) {
	lex := DefaultLexicon()

	cases := []struct {
		payee string
		want  string
	}{
		{"SPORTSBET MELBOURNE AU", CategoryGambling},
		{"Bet365 Sydney", CategoryGambling},
		{"Crown Casino", CategoryGambling},
		{"NSW Lotteries", CategoryGambling},
		{"Dan Murphy's", CategoryAlcohol},
		{"ATM WDL 123 GEORGE ST", CategoryATM},
		{"Woolworths Metro", "groceries"},
		{"Zorbas Imports Pty Ltd", CategoryUnknown},
	}
	for _, c := range cases {
		got := lex.Classify(c.payee, "")
		if got.Name != c.want {
			t.Errorf("Classify(%q) = %s, want %s", c.payee, got.Name, c.want)
		}
	}
}

func TestClassifyHighestOrdinalWins(t *testing.T) {
	lex := DefaultLexicon()
	// Matches both alcohol ("hotel") and gambling ("casino"); gambling wins.
	got := lex.Classify("Casino Hotel Group", "")
	if got.Name != CategoryGambling {
		t.Errorf("expected gambling, got %s", got.Name)
	}
}

func TestClassifySearchesRawText(t *testing.T) {
	lex := DefaultLexicon()
	got := lex.Classify("CARD PURCHASE 4821", "POS SPORTSBET ONLINE")
	if got.Name != CategoryGambling {
		t.Errorf("expected raw text to classify as gambling, got %s", got.Name)
	}
}

func TestLoadLexiconFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "merchants.yaml")
	content := `categories:
  - name: gambling
    ordinal: 2
    risk: 1.0
    keywords: [flutterco]
  - name: groceries
    ordinal: 0
    risk: 0.05
    keywords: [localmart]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	lex, err := LoadLexicon(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !lex.IsGambling("FLUTTERCO BETS", "") {
		t.Error("custom gambling keyword should match")
	}
	if lex.Classify("localmart 22", "").Name != "groceries" {
		t.Error("custom grocery keyword should match")
	}
	if got := lex.OrdinalScale(lex.Classify("FLUTTERCO", "")); got != 1 {
		t.Errorf("top ordinal should scale to 1, got %v", got)
	}
}

func TestLoadLexiconEmptyPathUsesDefault(t *testing.T) {
	lex, err := LoadLexicon("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !lex.IsGambling("sportsbet", "") {
		t.Error("default lexicon should recognize sportsbet")
	}
}

func TestLoadLexiconErrors(t *testing.T) {
	if _, err := LoadLexicon("/nonexistent/lexicon.yaml"); err == nil {
		t.Error("expected error for missing file")
	}

	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, []byte("categories: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLexicon(empty); err == nil {
		t.Error("expected error for lexicon with no categories")
	}
}
