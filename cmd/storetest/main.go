// Command storetest runs a smoke test of the database against both backends.
package main

import (
	"fmt"
	"log"

	"github.com/kittclouds/wugbot/internal/store"
)

func main() {
	fmt.Println("Testing MemStore...")
	testBackend(store.NewMemStore())

	fmt.Println("\nTesting SQLiteStore...")
	s, err := store.NewSQLiteStore()
	if err != nil {
		log.Fatalf("NewSQLiteStore failed: %v", err)
	}
	testBackend(s)

	fmt.Println("\n✅ All tests passed!")
}

func testBackend(backend store.Backend) {
	db, err := store.Open(backend)
	if err != nil {
		log.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	// Text CRUD
	text := &store.Text{
		Titles: map[string]string{"en": "Test Text"},
		Phrases: []*store.Phrase{{
			Transcription: "kepi wa",
			Translation:   "the dog barks",
			Words:         []*store.Word{{Token: "kepi"}, {Token: "wa"}},
		}},
	}

	ids, err := db.Store(text)
	if err != nil {
		log.Fatalf("Store failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != text.ID {
		log.Fatalf("Store returned %v, text has id %d", ids, text.ID)
	}
	fmt.Println("  ✓ Store works")

	retrieved, err := db.GetOne(store.TableTexts, text.ID)
	if err != nil {
		log.Fatalf("GetOne failed: %v", err)
	}
	if got := retrieved.(*store.Text).Phrases[0].Words[1].Breadcrumb.String(); got != fmt.Sprintf("%d_0_1", text.ID) {
		log.Fatalf("breadcrumb expected %d_0_1, got %s", text.ID, got)
	}
	fmt.Println("  ✓ GetOne works")

	crumb := store.Breadcrumb{int(text.ID), 0, 1}
	if _, err := db.UpdateBreadcrumb(crumb, "gloss", "bark"); err != nil {
		log.Fatalf("UpdateBreadcrumb failed: %v", err)
	}
	words, err := db.Search(store.ModelWord, `gloss == "bark"`)
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	if len(words) != 1 {
		log.Fatalf("Search expected 1 word, got %d", len(words))
	}
	fmt.Println("  ✓ UpdateBreadcrumb and Search work")

	if err := db.RemoveBreadcrumb(crumb); err != nil {
		log.Fatalf("RemoveBreadcrumb failed: %v", err)
	}
	all, err := db.GetAll(store.TableTexts)
	if err != nil {
		log.Fatalf("GetAll failed: %v", err)
	}
	if n := len(all[0].(*store.Text).Phrases[0].Words); n != 1 {
		log.Fatalf("expected 1 word after removal, got %d", n)
	}
	fmt.Println("  ✓ RemoveBreadcrumb works")
}
