package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jizpi/arm-ledger/internal/db"
	"github.com/jizpi/arm-ledger/internal/feed"
	"github.com/jizpi/arm-ledger/internal/visit"
)

func newImportCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import visits exported from the old system",
		Long: `Read a JSON array of legacy visit documents (ism, familiya, guruh, fakultet,
resurs, ichkiTashqi, sana, tartib, createdAt, groupSize) and write them straight
to the database named by --db or the server config. Ordinals are kept as given
and documents without createdAt are stored without one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and validate without writing")

	return cmd
}

// legacyVisit is one document as the old system stored it.
type legacyVisit struct {
	FirstName  string      `json:"ism"`
	LastName   string      `json:"familiya"`
	Group      string      `json:"guruh"`
	Department string      `json:"fakultet"`
	Resource   string      `json:"resurs"`
	Class      string      `json:"ichkiTashqi"`
	Date       string      `json:"sana"`
	Sequence   json.Number `json:"tartib"`
	GroupSize  int         `json:"groupSize"`
	CreatedAt  legacyTime  `json:"createdAt"`
}

// legacyTime accepts RFC 3339 strings, epoch milliseconds and
// {seconds, nanoseconds} timestamp objects. null leaves it unset.
type legacyTime struct {
	t *time.Time
}

func (lt *legacyTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("createdAt %q: %w", s, err)
		}
		lt.t = &t
	case '{':
		var ts struct {
			Seconds      *int64 `json:"seconds"`
			Nanoseconds  int64  `json:"nanoseconds"`
			USeconds     *int64 `json:"_seconds"`
			UNanoseconds int64  `json:"_nanoseconds"`
		}
		if err := json.Unmarshal(data, &ts); err != nil {
			return err
		}
		var t time.Time
		switch {
		case ts.Seconds != nil:
			t = time.Unix(*ts.Seconds, ts.Nanoseconds).UTC()
		case ts.USeconds != nil:
			t = time.Unix(*ts.USeconds, ts.UNanoseconds).UTC()
		default:
			return fmt.Errorf("createdAt: unrecognized timestamp %s", data)
		}
		lt.t = &t
	default:
		var ms int64
		if err := json.Unmarshal(data, &ms); err != nil {
			return fmt.Errorf("createdAt: %w", err)
		}
		t := time.UnixMilli(ms).UTC()
		lt.t = &t
	}
	return nil
}

var legacyDateLayouts = []string{visit.DateLayout, "02/01/2006", "2006-01-02", "2.1.2006"}

// legacyDate rewrites known date spellings to dd.mm.yyyy. Anything else is
// kept verbatim; statistics tolerate malformed dates.
func legacyDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range legacyDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(visit.DateLayout)
		}
	}
	return s
}

func (l legacyVisit) record() (*visit.Record, error) {
	class, err := visit.ParseClass(l.Class)
	if err != nil {
		return nil, err
	}

	seq := 0
	if l.Sequence != "" {
		n, err := l.Sequence.Int64()
		if err != nil {
			return nil, fmt.Errorf("tartib %q: %w", l.Sequence, err)
		}
		seq = int(n)
	}

	rec := &visit.Record{
		FirstName:  strings.TrimSpace(l.FirstName),
		LastName:   strings.TrimSpace(l.LastName),
		GroupSize:  l.GroupSize,
		Group:      strings.TrimSpace(l.Group),
		Department: strings.TrimSpace(l.Department),
		Resource:   strings.TrimSpace(l.Resource),
		Class:      class,
		VisitDate:  legacyDate(l.Date),
		Sequence:   seq,
		CreatedAt:  l.CreatedAt.t,
	}
	if rec.IsGroup() {
		rec.FirstName, rec.LastName = "", ""
	}
	return rec, nil
}

// importer is the part of the repository the import writes through.
type importer interface {
	Import(ctx context.Context, rec *visit.Record) (*visit.Record, error)
}

// parseLegacy decodes and converts every document, failing on the first bad one.
func parseLegacy(r io.Reader) ([]*visit.Record, error) {
	var docs []legacyVisit
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decoding legacy documents: %w", err)
	}

	recs := make([]*visit.Record, 0, len(docs))
	for i, d := range docs {
		rec, err := d.record()
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func importRecords(ctx context.Context, repo importer, recs []*visit.Record) (int, error) {
	for i, rec := range recs {
		if _, err := repo.Import(ctx, rec); err != nil {
			return i, fmt.Errorf("document %d: %w", i, err)
		}
	}
	return len(recs), nil
}

func runImport(cmd *cobra.Command, path string, dryRun bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	recs, err := parseLegacy(f)
	if err != nil {
		return err
	}

	n := len(recs)
	if !dryRun {
		cfg, err := loadServerConfig()
		if err != nil {
			return err
		}
		database, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer closeDB(database)

		n, err = importRecords(cmd.Context(), visit.NewRepository(database), recs)
		if err != nil {
			return fmt.Errorf("imported %d before failing: %w", n, err)
		}

		if cfg.Redis.Enabled() {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
			defer func() { _ = rdb.Close() }()
			if err := feed.NewRedisNotifier(rdb, cfg.Redis.Channel, zap.NewNop()).Notify(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: servers were not told about the import: %v\n", err)
			}
		}
	}

	if isJSON() {
		return printJSON(out(cmd), map[string]interface{}{"imported": n, "dry_run": dryRun})
	}
	if dryRun {
		fmt.Fprintf(out(cmd), "%d documents are valid.\n", n)
		return nil
	}
	fmt.Fprintf(out(cmd), "Imported %d visits.\n", n)
	return nil
}
