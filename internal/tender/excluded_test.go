package tender

import (
	"os"
	"path/filepath"
	"testing"
)

func TestContractsExcludeKeepsOrder(t *testing.T) {
	contracts := &Contracts{Items: []*Contract{
		{Title: "a", Buyer: "Leeds City Council", NoticeURL: "https://x/1"},
		{Title: "b", Buyer: "NHS England", NoticeURL: "https://x/2"},
		{Title: "c", Buyer: "Bristol", NoticeURL: "https://x/3"},
		{Title: "d", Buyer: "nhs england ", NoticeURL: "https://x/4"},
	}}

	excluded := contracts.Exclude(ContractBuyerField, []string{"NHS England", ""})
	if len(excluded) != 2 || excluded[0] != "b" || excluded[1] != "d" {
		t.Fatalf("unexpected excluded titles: %v", excluded)
	}

	if contracts.Len() != 2 || contracts.Items[0].Title != "a" || contracts.Items[1].Title != "c" {
		t.Fatalf("unexpected remaining contracts: %+v", contracts.Items)
	}

	if got := contracts.Exclude(ContractURLField, nil); got != nil {
		t.Fatalf("expected nothing excluded, got %v", got)
	}
}

func TestExcludedContractsRoundTripFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "excluded.json")

	empty, err := LoadExcludedContracts(path)
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if len(empty.Items) != 0 {
		t.Fatalf("expected empty list, got %d", len(empty.Items))
	}

	contracts := &Contracts{Items: []*Contract{{Title: "Roads", NoticeURL: "https://x/1", Buyer: "Leeds"}, {Title: "No url"}}}
	empty.Append(contracts.ToExcluded())

	if err := empty.ToFile(path); err != nil {
		t.Fatalf("write exclude file: %v", err)
	}

	loaded, err := LoadExcludedContracts(path)
	if err != nil {
		t.Fatalf("read exclude file: %v", err)
	}

	urls := loaded.URLs()
	if len(urls) != 1 || urls[0] != "https://x/1" {
		t.Fatalf("unexpected urls: %v", urls)
	}
	if loaded.Items[0].Buyer != "Leeds" || loaded.Items[0].ExcludedAt.IsZero() {
		t.Fatalf("unexpected entry: %+v", loaded.Items[0])
	}
}

func TestLoadExcludedContractsEmptyAndBrokenFile(t *testing.T) {
	dir := t.TempDir()

	emptyPath := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(emptyPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if got, err := LoadExcludedContracts(emptyPath); err != nil || len(got.Items) != 0 {
		t.Fatalf("expected empty list, got %+v, %v", got, err)
	}

	brokenPath := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(brokenPath, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadExcludedContracts(brokenPath); err == nil {
		t.Fatal("expected malformed file to be rejected")
	}
}
