package index

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/franz/bgdb/internal/content"
	"github.com/franz/bgdb/internal/phash"
	"github.com/franz/bgdb/internal/store"
	"github.com/franz/bgdb/internal/util"
)

func pngBytes(t *testing.T, seed int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			v := uint8((x*seed + y*(7-seed)) * 3)
			img.Set(x, y, color.RGBA{v, 255 - v, uint8(x * 4), 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func setup(t *testing.T, images map[string][]byte) (*store.Store, *content.FSStore) {
	t.Helper()
	tmp := t.TempDir()
	db, err := store.Open(filepath.Join(tmp, "bgdb.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cs, err := content.NewFS(filepath.Join(tmp, "db"))
	if err != nil {
		t.Fatal(err)
	}
	for id, data := range images {
		if _, err := cs.Write(context.Background(), id, data); err != nil {
			t.Fatal(err)
		}
	}
	return db, cs
}

func TestIndexAll(t *testing.T) {
	ctx := context.Background()
	bg := pngBytes(t, 2)
	db, cs := setup(t, map[string][]byte{
		"11202_bg.jpg":  bg,
		"11203_bg.jpg":  bg,
		"11204_bg.png":  pngBytes(t, 5),
		"11205_bad.jpg": []byte("not an image"),
	})

	var commits atomic.Int32
	ix := New(&Config{Store: db, Content: cs, Concurrency: 3, BatchSize: 2, OnCommit: func() { commits.Add(1) }})

	result, err := ix.IndexAll(ctx)
	if err != nil {
		t.Fatalf("IndexAll failed: %v", err)
	}
	if result.Indexed != 3 || result.DecodeFailures != 1 || result.Candidates != 4 {
		t.Errorf("unexpected result %+v", result)
	}
	if commits.Load() != 2 {
		t.Errorf("expected 2 committed batches, got %d", commits.Load())
	}

	prints, _ := db.AllFingerprints()
	byID := make(map[string][]byte)
	for _, fp := range prints {
		byID[fp.Identity] = fp.Hash
		if len(fp.Hash) != phash.Default().Len() {
			t.Errorf("%s: hash length %d", fp.Identity, len(fp.Hash))
		}
	}
	if _, ok := byID["11205_bad.jpg"]; ok {
		t.Error("undecodable image must not get a fingerprint")
	}

	d, err := phash.Distance(byID["11202_bg.jpg"], byID["11203_bg.jpg"])
	if err != nil || d != 0 {
		t.Errorf("identical images should have distance 0, got %d (%v)", d, err)
	}

	name, _, _ := db.GetSetting(store.SettingHashConfig)
	if name != "gradient-16" {
		t.Errorf("expected stored hash config gradient-16, got %q", name)
	}
}

const panicMagic = "BGDBPANIC"

func init() {
	image.RegisterFormat("bgdbpanic", panicMagic,
		func(io.Reader) (image.Image, error) { panic("corrupt scanline table") },
		func(io.Reader) (image.Config, error) {
			return image.Config{ColorModel: color.RGBAModel, Width: 8, Height: 8}, nil
		})
}

func TestIndexAllSkipsDecoderPanic(t *testing.T) {
	ctx := context.Background()
	db, cs := setup(t, map[string][]byte{
		"1_bg.png":    pngBytes(t, 1),
		"2_crash.png": append([]byte(panicMagic), make([]byte, 64)...),
		"3_bg.png":    pngBytes(t, 3),
	})

	ix := New(&Config{Store: db, Content: cs, Concurrency: 2, BatchSize: 10})
	result, err := ix.IndexAll(ctx)
	if err != nil {
		t.Fatalf("IndexAll failed: %v", err)
	}
	if result.Indexed != 2 || result.DecodeFailures != 1 {
		t.Errorf("unexpected result %+v", result)
	}

	ids, err := db.FingerprintIdentities()
	if err != nil {
		t.Fatal(err)
	}
	if !ids["1_bg.png"] || !ids["3_bg.png"] || ids["2_crash.png"] {
		t.Errorf("unexpected indexed identities %v", ids)
	}

	if _, err := ix.Fingerprint(append([]byte(panicMagic), 0)); !errors.Is(err, util.ErrDecode) {
		t.Errorf("Fingerprint: expected ErrDecode, got %v", err)
	}
}

func TestIndexAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, cs := setup(t, map[string][]byte{"1_bg.png": pngBytes(t, 1), "2_bg.png": pngBytes(t, 3)})

	ix := New(&Config{Store: db, Content: cs})
	if _, err := ix.IndexAll(ctx); err != nil {
		t.Fatal(err)
	}

	result, err := ix.IndexAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Indexed != 0 || result.AlreadyIndexed != 2 || result.Candidates != 0 {
		t.Errorf("rerun should be a no-op, got %+v", result)
	}
	if n, _ := db.CountFingerprints(); n != 2 {
		t.Errorf("expected 2 fingerprints, got %d", n)
	}
}

func TestIndexAllRejectsOtherHashConfig(t *testing.T) {
	ctx := context.Background()
	db, cs := setup(t, map[string][]byte{"1_bg.png": pngBytes(t, 1)})

	if _, err := New(&Config{Store: db, Content: cs}).IndexAll(ctx); err != nil {
		t.Fatal(err)
	}

	mean, _ := phash.New("mean", 16)
	_, err := New(&Config{Store: db, Content: cs, Hasher: mean}).IndexAll(ctx)
	if !errors.Is(err, util.ErrHashConfigMismatch) {
		t.Errorf("expected ErrHashConfigMismatch, got %v", err)
	}
}

// flakyStore fails the first batch insert
type flakyStore struct {
	*store.Store
	calls atomic.Int32
}

func (f *flakyStore) InsertFingerprintBatch(rows []*store.Fingerprint) (int, error) {
	if f.calls.Add(1) == 1 {
		return 0, util.ErrStoreWrite
	}
	return f.Store.InsertFingerprintBatch(rows)
}

func TestIndexAllContinuesAfterBatchFailure(t *testing.T) {
	ctx := context.Background()
	db, cs := setup(t, map[string][]byte{
		"1_bg.png": pngBytes(t, 1),
		"2_bg.png": pngBytes(t, 2),
		"3_bg.png": pngBytes(t, 3),
	})

	fs := &flakyStore{Store: db}
	result, err := New(&Config{Store: fs, Content: cs, Concurrency: 1, BatchSize: 1}).IndexAll(ctx)
	if err != nil {
		t.Fatalf("IndexAll failed: %v", err)
	}
	if result.BatchesFailed != 1 || result.Indexed != 2 {
		t.Errorf("unexpected result %+v", result)
	}

	// The failed identity is picked up by the next run
	result, err = New(&Config{Store: db, Content: cs}).IndexAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Indexed != 1 {
		t.Errorf("expected the failed image to be indexed on rerun, got %+v", result)
	}
}

func TestFingerprintRejectsGarbage(t *testing.T) {
	ix := New(&Config{})
	if _, err := ix.Fingerprint([]byte{0x89, 'P', 'N', 'G'}); !errors.Is(err, util.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}
