package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/hack-pad/hackpadfs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kittclouds/wugbot/internal/store"
	"github.com/kittclouds/wugbot/pkg/lexicon"
	"github.com/kittclouds/wugbot/pkg/media"
	"github.com/kittclouds/wugbot/pkg/rank"
	"github.com/kittclouds/wugbot/pkg/vector"
)

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database and write the config file if it is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.configPath != "" {
				if _, err := os.Stat(a.configPath); errors.Is(err, os.ErrNotExist) {
					if err := a.cfg.Save(a.configPath); err != nil {
						return err
					}
					a.logger.Info("wrote config", zap.String("path", a.configPath))
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s database %s (schema v%d)\n",
				a.cfg.Database.Backend, a.cfg.Database.DSN, store.SchemaVersion)
			return nil
		},
	}
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import records from an export file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var exp store.Export
			if err := json.Unmarshal(data, &exp); err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[0], err)
			}
			n, err := a.db.Import(exp)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records\n", n)
			return nil
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [FILE]",
		Short: "Export every table as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := a.db.Export()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return printJSON(cmd.OutOrStdout(), exp)
			}
			data, err := json.MarshalIndent(exp, "", "  ")
			if err != nil {
				return err
			}
			return os.WriteFile(args[0], data, 0644)
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get TABLE [IDS...]",
		Short: "Print records of a table, all of them when no IDs are given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := store.Table(args[0])
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}
			var records []store.Record
			if len(ids) == 0 {
				records, err = a.db.GetAll(table)
			} else {
				records, err = a.db.Get(table, ids...)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), orEmpty(records))
		},
	}
}

func (a *app) updateCmd() *cobra.Command {
	var push bool
	cmd := &cobra.Command{
		Use:   "update TABLE PROPERTY VALUE [IDS...]",
		Short: "Set a property on records (all records when no IDs are given)",
		Long: `Set PROPERTY to VALUE on the given records. VALUE is parsed as JSON and
falls back to a plain string. With --push VALUE is appended to a list
property of exactly one record.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, property, value := store.Table(args[0]), args[1], parseValue(args[2])
			ids, err := parseIDs(args[3:])
			if err != nil {
				return err
			}
			if push {
				if len(ids) != 1 {
					return fmt.Errorf("--push needs exactly one id")
				}
				rec, err := a.db.PushUpdate(table, ids[0], property, value)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			}
			if len(ids) == 0 {
				ids = nil
			}
			records, err := a.db.Update(table, ids, property, value)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), orEmpty(records))
		},
	}
	cmd.Flags().BoolVar(&push, "push", false, "append to a list property")
	return cmd
}

func (a *app) crumbCmd() *cobra.Command {
	var property, value string
	cmd := &cobra.Command{
		Use:   "crumb BREADCRUMB...",
		Short: "Print the items at breadcrumbs, or update one with --set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			crumbs, err := store.ParseBreadcrumbs(args...)
			if err != nil {
				return err
			}
			if property != "" {
				if len(crumbs) != 1 {
					return fmt.Errorf("--set needs exactly one breadcrumb")
				}
				rec, err := a.db.UpdateBreadcrumb(crumbs[0], property, parseValue(value))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			}
			records, err := a.db.GetBreadcrumb(crumbs...)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().StringVar(&property, "set", "", "property to update")
	cmd.Flags().StringVar(&value, "value", "", "new value for --set (JSON or string)")
	return cmd
}

func (a *app) rmCrumbCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm-crumb BREADCRUMB...",
		Short: "Remove the items at breadcrumbs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			crumbs, err := store.ParseBreadcrumbs(args...)
			if err != nil {
				return err
			}
			if err := a.db.RemoveBreadcrumb(crumbs...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d items\n", len(crumbs))
			return nil
		},
	}
}

func (a *app) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search MODEL [EXPR]",
		Short: "Find records of a model matching an expression",
		Example: `  wugbot search Word 'gloss == "dog"'
  wugbot search Text 'any(tags, # == "narrative")'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria := ""
			if len(args) > 1 {
				criteria = args[1]
			}
			records, err := a.db.Search(args[0], criteria)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), orEmpty(records))
		},
	}
}

func (a *app) grepCmd() *cobra.Command {
	var tier, orthography string
	cmd := &cobra.Command{
		Use:   "grep PATTERN",
		Short: "Find phrases whose tier matches a regular expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			phrases, err := a.db.SearchTier(args[0], tier, orthography)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			re := regexp.MustCompile(args[0])
			for _, p := range phrases {
				for _, value := range p.Tiers(tier, orthography) {
					if re.MatchString(value) {
						fmt.Fprintf(out, "%s\t%s\n", p.Breadcrumb, value)
						break
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tier, "tier", store.TierTranscription, "tier to search (transcription, translation)")
	cmd.Flags().StringVar(&orthography, "orthography", "", "transcription orthography")
	return cmd
}

// ranked is one rank result with the phrase text.
type ranked struct {
	rank.Result
	Transcription string `json:"transcription"`
	Translation   string `json:"translation"`
}

func (a *app) rankCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "rank QUERY...",
		Short: "Rank phrases against a free-text query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := a.db.GetAll(store.TableTexts)
			if err != nil {
				return err
			}
			texts, err := store.CollectionOf[*store.Text](records)
			if err != nil {
				return err
			}

			idx := rank.NewIndex(rank.DefaultConfig())
			phrases := make(map[string]*store.Phrase)
			for _, t := range texts {
				if err := idx.AddText(t); err != nil {
					return err
				}
				for _, p := range t.Phrases {
					phrases[p.Breadcrumb.String()] = p
				}
			}
			a.logger.Debug("ranking", zap.Int("phrases", idx.Len()))

			results := idx.Search(strings.Join(args, " "), limit)
			out := make([]ranked, len(results))
			for i, r := range results {
				p := phrases[r.Breadcrumb.String()]
				out[i] = ranked{Result: r, Transcription: p.Transcription, Translation: p.Translation}
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum results (0 for all)")
	return cmd
}

func (a *app) mediaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Manage recordings and documents",
	}

	var asDocument bool
	add := &cobra.Command{
		Use:   "add FILES...",
		Short: "Copy files into blob storage and record them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blobs, err := a.media()
			if err != nil {
				return err
			}

			stored := make([]media.Blob, len(args))
			g, _ := errgroup.WithContext(context.Background())
			g.SetLimit(4)
			for i, file := range args {
				g.Go(func() error {
					data, err := os.ReadFile(file)
					if err != nil {
						return err
					}
					blob, err := blobs.Put(filepath.Base(file), "", data)
					if err != nil {
						return fmt.Errorf("%s: %w", file, err)
					}
					stored[i] = blob
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			records := make([]store.Record, len(stored))
			for i, b := range stored {
				if asDocument {
					records[i] = b.Document()
				} else {
					records[i] = b.MediaFile()
				}
			}
			ids, err := a.db.Store(records...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, b := range stored {
				fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", ids[i], b.Key, b.MIMEType, b.Name)
			}
			return nil
		},
	}
	add.Flags().BoolVar(&asDocument, "document", false, "record the files as documents")

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check every media file against its checksum",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			blobs, err := a.media()
			if err != nil {
				return err
			}
			records, err := a.db.GetAll(store.TableMedia)
			if err != nil {
				return err
			}
			files, err := store.CollectionOf[*store.MediaFile](records)
			if err != nil {
				return err
			}
			failed := 0
			out := cmd.OutOrStdout()
			for _, f := range files {
				if err := blobs.VerifyFile(f); err != nil {
					failed++
					fmt.Fprintf(out, "FAIL\t%d\t%s\t%v\n", f.ID, f.Name, err)
					continue
				}
				fmt.Fprintf(out, "ok\t%d\t%s\n", f.ID, f.Name)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d media files failed verification", failed, len(files))
			}
			return nil
		},
	}

	cmd.AddCommand(add, verify)
	return cmd
}

func (a *app) lexicon(arg string) (*store.Lexicon, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lexicon id %q", arg)
	}
	rec, err := a.db.GetOne(store.TableLexicons, id)
	if err != nil {
		return nil, err
	}
	lex, ok := rec.(*store.Lexicon)
	if !ok {
		return nil, fmt.Errorf("%w: lexicons/%d holds a %s", store.ErrMixedModels, id, rec.Model())
	}
	return lex, nil
}

func (a *app) glossCmd() *cobra.Command {
	var textID int64
	cmd := &cobra.Command{
		Use:   "gloss LEXICON_ID [TOKENS...]",
		Short: "Segment and gloss tokens, or every word of a text with --text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lex, err := a.lexicon(args[0])
			if err != nil {
				return err
			}
			m := lexicon.Compile(lex)
			out := cmd.OutOrStdout()

			if textID == 0 {
				for _, token := range args[1:] {
					w := &store.Word{Token: token}
					m.Gloss(w)
					fmt.Fprintf(out, "%s\t%s\n", token, w.Gloss)
				}
				return nil
			}

			rec, err := a.db.GetOne(store.TableTexts, textID)
			if err != nil {
				return err
			}
			text := rec.(*store.Text)
			words, glossed := 0, 0
			for _, p := range text.Phrases {
				for _, w := range p.Words {
					words++
					if m.Gloss(w) > 0 {
						glossed++
					}
				}
			}
			if err := a.db.Save(text); err != nil {
				return err
			}
			fmt.Fprintf(out, "glossed %d of %d words\n", glossed, words)
			return nil
		},
	}
	cmd.Flags().Int64Var(&textID, "text", 0, "gloss the words of this text and save it")
	return cmd
}

func (a *app) similarCmd() *cobra.Command {
	var k int
	var rebuild bool
	cmd := &cobra.Command{
		Use:   "similar LEXICON_ID FORM",
		Short: "List lexemes spelled like FORM",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lex, err := a.lexicon(args[0])
			if err != nil {
				return err
			}
			dir, err := a.osPath(a.cfg.Index.Dir)
			if err != nil {
				return err
			}
			file := path.Join(dir, fmt.Sprintf("lexicon-%d.bin", lex.ID))
			sumFile := path.Join(dir, fmt.Sprintf("lexicon-%d.sum", lex.ID))

			// The index is keyed by lexeme position, so any edit to the
			// lexemes invalidates it.
			sum := lexemeChecksum(lex)
			if !rebuild {
				saved, err := hackpadfs.ReadFile(a.fs, sumFile)
				switch {
				case errors.Is(err, hackpadfs.ErrNotExist):
					rebuild = true
				case err != nil:
					return err
				default:
					rebuild = strings.TrimSpace(string(saved)) != sum
				}
			}
			if rebuild {
				if err := hackpadfs.Remove(a.fs, file); err != nil && !errors.Is(err, hackpadfs.ErrNotExist) {
					return err
				}
			}

			forms, err := vector.NewStore(a.fs, file)
			if err != nil {
				return err
			}
			if rebuild {
				for i, l := range lex.Lexemes {
					// keys are 1-based lexeme positions
					if err := forms.Add(uint32(i+1), lexicon.Normalize(l.Form)); err != nil {
						a.logger.Debug("skipping lexeme", zap.Int("index", i), zap.Error(err))
					}
				}
				if err := forms.Save(); err != nil {
					return err
				}
				if err := hackpadfs.WriteFullFile(a.fs, sumFile, []byte(sum+"\n"), 0644); err != nil {
					return err
				}
				a.logger.Info("indexed lexicon", zap.Int64("lexicon", lex.ID), zap.Int("forms", forms.Len()))
			}

			neighbors, err := forms.Similar(lexicon.Normalize(args[1]), k)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, n := range neighbors {
				i := int(n.Key) - 1
				if i < 0 || i >= len(lex.Lexemes) {
					continue
				}
				l := lex.Lexemes[i]
				fmt.Fprintf(out, "%s\t%s\t%s\n", l.Form, l.Gloss, l.Category)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "top", "k", 5, "number of forms")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "rebuild the form index")
	return cmd
}

// lexemeChecksum fingerprints the normalized forms of a lexicon in order.
func lexemeChecksum(lex *store.Lexicon) string {
	var b strings.Builder
	for _, l := range lex.Lexemes {
		b.WriteString(lexicon.Normalize(l.Form))
		b.WriteByte('\n')
	}
	return media.Checksum([]byte(b.String()))
}

func (a *app) resetCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to delete %s without --force", a.cfg.Database.DSN)
			}
			if err := a.db.DeleteDatabase(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "database reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm the reset")
	return cmd
}

// =============================================================================
// Helpers
// =============================================================================

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseValue decodes s as JSON, or returns it as a plain string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
