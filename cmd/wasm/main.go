//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"syscall/js"

	"github.com/hack-pad/hackpadfs/indexeddb"
	"go.uber.org/zap"

	"github.com/kittclouds/wugbot/internal/logging"
	"github.com/kittclouds/wugbot/internal/store"
	"github.com/kittclouds/wugbot/pkg/lexicon"
	"github.com/kittclouds/wugbot/pkg/media"
	"github.com/kittclouds/wugbot/pkg/rank"
)

// Version info
const Version = "0.3.0"

// snapshotPath holds the last committed export inside the IndexedDB fs.
const snapshotPath = "snapshot.json"

// Global state
var (
	logger *zap.Logger
	db     *store.DB
	blobs  *media.Store
	ranker *rank.Index
)

func main() {
	var err error
	logger, err = logging.New("info", false)
	if err != nil {
		println("[Wugbot] FATAL: Failed to initialize logger:", err.Error())
		return
	}
	logger.Info("WASM ready", zap.String("version", Version))

	// Register exports
	js.Global().Set("Wugbot", js.ValueOf(map[string]interface{}{
		"version":    js.FuncOf(getVersion),
		"initialize": js.FuncOf(initialize),
		// Records
		"store":      js.FuncOf(storeRecords),
		"get":        js.FuncOf(getRecords),
		"update":     js.FuncOf(updateRecords),
		"pushUpdate": js.FuncOf(pushUpdate),
		"remove":     js.FuncOf(removeRecords),
		// Breadcrumbs
		"getBreadcrumb":    js.FuncOf(getBreadcrumb),
		"updateBreadcrumb": js.FuncOf(updateBreadcrumb),
		"removeBreadcrumb": js.FuncOf(removeBreadcrumb),
		// Search
		"search":     js.FuncOf(search),
		"searchTier": js.FuncOf(searchTier),
		"rank":       js.FuncOf(rankPhrases),
		"gloss":      js.FuncOf(gloss),
		// Database
		"exportDatabase": js.FuncOf(exportDatabase),
		"importDatabase": js.FuncOf(importDatabase),
		"deleteDatabase": js.FuncOf(deleteDatabase),
		"subscribe":      js.FuncOf(subscribe),
		// Media
		"addMedia":  js.FuncOf(addMedia),
		"readMedia": js.FuncOf(readMedia),
	}))

	select {}
}

func getVersion(this js.Value, args []js.Value) interface{} {
	return Version
}

// initialize opens the database and the IndexedDB-backed media store.
// Args: [dbName string] (defaults to "wugbot")
func initialize(this js.Value, args []js.Value) interface{} {
	name := "wugbot"
	if len(args) > 0 && args[0].Type() == js.TypeString {
		name = args[0].String()
	}

	backend, err := store.NewSQLiteStore()
	if err != nil {
		return errorResult("failed to open sqlite: " + err.Error())
	}
	db, err = store.Open(backend, store.WithLogger(logger))
	if err != nil {
		return errorResult("failed to open database: " + err.Error())
	}

	fs, err := indexeddb.NewFS(context.Background(), name, indexeddb.Options{})
	if err != nil {
		return errorResult("failed to create idb fs: " + err.Error())
	}
	blobs, err = media.NewStore(fs, "media")
	if err != nil {
		return errorResult("failed to open media store: " + err.Error())
	}

	ranker = rank.NewIndex(rank.DefaultConfig())
	db.Observers().Add(&rankObserver, store.ActionAll)

	// The sqlite database lives in memory; records survive a reload through
	// the snapshot.
	n, err := db.RestoreSnapshot(fs, snapshotPath)
	if err != nil {
		return errorResult("failed to restore snapshot: " + err.Error())
	}
	db.Observers().Add(db.SnapshotObserver(fs, snapshotPath), store.ActionAll)

	return successResult(fmt.Sprintf("initialized with %d records", n))
}

// rankObserver keeps the phrase index in step with committed text writes.
var rankObserver = store.ObserverFunc(func(action store.Action, data any) {
	ev, ok := data.(store.Event)
	if !ok || ev.Table != store.TableTexts {
		return
	}
	if action == store.ActionClear {
		ranker = rank.NewIndex(ranker.Config)
		return
	}
	for _, id := range ev.IDs {
		rec, err := db.GetOne(store.TableTexts, id)
		if errors.Is(err, store.ErrNotFound) {
			ranker.RemoveText(id)
			continue
		}
		if err != nil {
			logger.Warn("failed to load text", zap.Int64("id", id), zap.Error(err))
			continue
		}
		if err := ranker.AddText(rec.(*store.Text)); err != nil {
			logger.Warn("failed to index text", zap.Int64("id", id), zap.Error(err))
		}
	}
})

func ready() error {
	if db == nil {
		return fmt.Errorf("not initialized")
	}
	return nil
}

// storeRecords: [recordsJSON string] (array of records of one model)
// Returns: JSON array of IDs
func storeRecords(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("requires 1 arg: recordsJSON (string)")
	}
	if err := ready(); err != nil {
		return errorResult(err.Error())
	}
	records, err := hydrateAll(args[0].String())
	if err != nil {
		return errorResult(err.Error())
	}
	ids, err := db.Store(records...)
	if err != nil {
		return errorResult("store failed: " + err.Error())
	}
	return jsonResult(ids)
}

// getRecords: [table string, idsJSON string] (no ids returns the whole table)
func getRecords(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("requires 1-2 args: table (string), idsJSON (string)")
	}
	if err := ready(); err != nil {
		return errorResult(err.Error())
	}
	table := store.Table(args[0].String())
	ids, err := idsArg(args, 1)
	if err != nil {
		return errorResult(err.Error())
	}
	var records []store.Record
	if ids == nil {
		records, err = db.GetAll(table)
	} else {
		records, err = db.Get(table, ids...)
	}
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(records)
}

// updateRecords: [table string, idsJSON string|null, property string, valueJSON string]
func updateRecords(this js.Value, args []js.Value) interface{} {
	if len(args) < 4 {
		return errorResult("requires 4 args: table, idsJSON, property, valueJSON")
	}
	if err := ready(); err != nil {
		return errorResult(err.Error())
	}
	ids, err := idsArg(args, 1)
	if err != nil {
		return errorResult(err.Error())
	}
	value, err := valueArg(args[3])
	if err != nil {
		return errorResult(err.Error())
	}
	records, err := db.Update(store.Table(args[0].String()), ids, args[2].String(), value)
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(records)
}

// pushUpdate: [table string, id int, property string, valueJSON string]
func pushUpdate(this js.Value, args []js.Value) interface{} {
	if len(args) < 4 {
		return errorResult("requires 4 args: table, id, property, valueJSON")
	}
	if err := ready(); err != nil {
		return errorResult(err.Error())
	}
	value, err := valueArg(args[3])
	if err != nil {
		return errorResult(err.Error())
	}
	rec, err := db.PushUpdate(store.Table(args[0].String()), int64(args[1].Int()), args[2].String(), value)
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(rec)
}

// removeRecords: [table string, idsJSON string]
func removeRecords(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("requires 2 args: table (string), idsJSON (string)")
	}
	if err := ready(); err != nil {
		return errorResult(err.Error())
	}
	ids, err := idsArg(args, 1)
	if err != nil {
		return errorResult(err.Error())
	}
	if err := db.Remove(store.Table(args[0].String()), ids...); err != nil {
		return errorResult(err.Error())
	}
	return successResult("removed")
}

// getBreadcrumb: [crumbsJSON string] e.g. ["3_0", "3_1_2"]
func getBreadcrumb(this js.Value, args []js.Value) interface{} {
	crumbs, err := crumbsArg(args)
	if err != nil {
		return errorResult(err.Error())
	}
	records, err := db.GetBreadcrumb(crumbs...)
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(records)
}

// updateBreadcrumb: [crumb string, property string, valueJSON string]
func updateBreadcrumb(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return errorResult("requires 3 args: crumb, property, valueJSON")
	}
	if err := ready(); err != nil {
		return errorResult(err.Error())
	}
	crumb, err := store.ParseBreadcrumb(args[0].String())
	if err != nil {
		return errorResult(err.Error())
	}
	value, err := valueArg(args[2])
	if err != nil {
		return errorResult(err.Error())
	}
	rec, err := db.UpdateBreadcrumb(crumb, args[1].String(), value)
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(rec)
}

// removeBreadcrumb: [crumbsJSON string]
func removeBreadcrumb(this js.Value, args []js.Value) interface{} {
	crumbs, err := crumbsArg(args)
	if err != nil {
		return errorResult(err.Error())
	}
	if err := db.RemoveBreadcrumb(crumbs...); err != nil {
		return errorResult(err.Error())
	}
	return successResult("removed")
}

// search: [model string, criteria string]
func search(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("requires 1-2 args: model (string), criteria (string)")
	}
	if err := ready(); err != nil {
		return errorResult(err.Error())
	}
	criteria := ""
	if len(args) > 1 {
		criteria = args[1].String()
	}
	records, err := db.Search(args[0].String(), criteria)
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(records)
}

// searchTier: [pattern string, tier string, orthography string]
func searchTier(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("requires 2-3 args: pattern, tier, orthography")
	}
	if err := ready(); err != nil {
		return errorResult(err.Error())
	}
	orthography := ""
	if len(args) > 2 {
		orthography = args[2].String()
	}
	phrases, err := db.SearchTier(args[0].String(), args[1].String(), orthography)
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(phrases)
}

// rankPhrases: [query string, limit int]
func rankPhrases(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("requires 1-2 args: query (string), limit (int)")
	}
	if err := ready(); err != nil {
		return errorResult(err.Error())
	}
	limit := 10
	if len(args) > 1 {
		limit = args[1].Int()
	}
	return jsonResult(ranker.Search(args[0].String(), limit))
}

// gloss: [lexiconID int, token string]
// Returns: the glossed Word as JSON
func gloss(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("requires 2 args: lexiconID (int), token (string)")
	}
	if err := ready(); err != nil {
		return errorResult(err.Error())
	}
	rec, err := db.GetOne(store.TableLexicons, int64(args[0].Int()))
	if err != nil {
		return errorResult(err.Error())
	}
	lex, ok := rec.(*store.Lexicon)
	if !ok {
		return errorResult("not a lexicon")
	}
	w := &store.Word{Token: args[1].String()}
	lexicon.Compile(lex).Gloss(w)
	return jsonResult(w)
}

func exportDatabase(this js.Value, args []js.Value) interface{} {
	if err := ready(); err != nil {
		return errorResult(err.Error())
	}
	exp, err := db.Export()
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(exp)
}

// importDatabase: [exportJSON string]
func importDatabase(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("requires 1 arg: exportJSON (string)")
	}
	if err := ready(); err != nil {
		return errorResult(err.Error())
	}
	var exp store.Export
	if err := json.Unmarshal([]byte(args[0].String()), &exp); err != nil {
		return errorResult("invalid export json: " + err.Error())
	}
	n, err := db.Import(exp)
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(map[string]int{"imported": n})
}

func deleteDatabase(this js.Value, args []js.Value) interface{} {
	if err := ready(); err != nil {
		return errorResult(err.Error())
	}
	if err := db.DeleteDatabase(); err != nil {
		return errorResult(err.Error())
	}
	return successResult("deleted")
}

// subscribe: [action string, callback function(action, eventJSON)]
func subscribe(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 || args[1].Type() != js.TypeFunction {
		return errorResult("requires 2 args: action (string), callback (function)")
	}
	if err := ready(); err != nil {
		return errorResult(err.Error())
	}
	callback := args[1]
	observer := store.ObserverFunc(func(action store.Action, data any) {
		payload, err := json.Marshal(data)
		if err != nil {
			logger.Warn("failed to encode event", zap.Error(err))
			return
		}
		callback.Invoke(string(action), string(payload))
	})
	db.Observers().Add(&observer, store.Action(args[0].String()))
	return successResult("subscribed")
}

// addMedia: [name string, mimeType string, data Uint8Array, asDocument bool]
// Returns: the stored MediaFile or Document as JSON
func addMedia(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return errorResult("requires 3-4 args: name, mimeType, data (Uint8Array), asDocument")
	}
	if err := ready(); err != nil {
		return errorResult(err.Error())
	}
	data := make([]byte, args[2].Get("length").Int())
	js.CopyBytesToGo(data, args[2])

	blob, err := blobs.Put(args[0].String(), args[1].String(), data)
	if err != nil {
		return errorResult(err.Error())
	}
	var rec store.Record = blob.MediaFile()
	if len(args) > 3 && args[3].Truthy() {
		rec = blob.Document()
	}
	if err := db.Save(rec); err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(rec)
}

// readMedia: [key string]
// Returns: Uint8Array
func readMedia(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("requires 1 arg: key (string)")
	}
	if err := ready(); err != nil {
		return errorResult(err.Error())
	}
	data, err := blobs.Read(args[0].String())
	if err != nil {
		return errorResult(err.Error())
	}
	out := js.Global().Get("Uint8Array").New(len(data))
	js.CopyBytesToJS(out, data)
	return out
}

// =============================================================================
// Argument helpers
// =============================================================================

func hydrateAll(raw string) ([]store.Record, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("invalid records json: %w", err)
	}
	records := make([]store.Record, 0, len(items))
	for i, item := range items {
		rec, err := store.Hydrate(item)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// idsArg decodes args[i] as a JSON array of IDs. A missing, null or
// undefined argument yields nil.
func idsArg(args []js.Value, i int) ([]int64, error) {
	if len(args) <= i || args[i].IsNull() || args[i].IsUndefined() {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(args[i].String()), &ids); err != nil {
		return nil, fmt.Errorf("invalid ids json: %w", err)
	}
	return ids, nil
}

func crumbsArg(args []js.Value) ([]store.Breadcrumb, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("requires 1 arg: crumbsJSON (string)")
	}
	if err := ready(); err != nil {
		return nil, err
	}
	var crumbs []string
	if err := json.Unmarshal([]byte(args[0].String()), &crumbs); err != nil {
		return nil, fmt.Errorf("invalid breadcrumbs json: %w", err)
	}
	return store.ParseBreadcrumbs(crumbs...)
}

func valueArg(v js.Value) (any, error) {
	var value any
	if err := json.Unmarshal([]byte(v.String()), &value); err != nil {
		return nil, fmt.Errorf("invalid value json: %w", err)
	}
	return value, nil
}

// Helper: Marshal a value or report the failure
func jsonResult(v interface{}) interface{} {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return errorResult("failed to encode result: " + err.Error())
	}
	return string(jsonBytes)
}

// Helper: Create error result
func errorResult(msg string) interface{} {
	result := map[string]interface{}{
		"error": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return string(jsonBytes)
}

// Helper: Create success result
func successResult(msg string) interface{} {
	result := map[string]interface{}{
		"success": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return string(jsonBytes)
}
