package ocr

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/rvilela/acerto/internal/files"
)

// fakeEngine counts invocations so tests can assert the expensive path
// ran exactly once.
type fakeEngine struct {
	text  string
	err   error
	calls int
}

func (f *fakeEngine) ImageText(path string) (string, error) {
	f.calls++
	return f.text, f.err
}

func newTestExtractor(t *testing.T, engine Engine) (*Extractor, string) {
	t.Helper()
	incoming := t.TempDir()
	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenCache failed: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	resolver := files.NewResolver(incoming, t.TempDir())
	return NewExtractor(cache, resolver, engine), incoming
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			if x < 10 {
				img.SetGray(x, y, color.Gray{Y: 30})
			} else {
				img.SetGray(x, y, color.Gray{Y: 220})
			}
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestExtract_CacheWriteOnce(t *testing.T) {
	engine := &fakeEngine{text: "PIX Banco do Brasil  R$ 29,90\nPadaria Bonanza"}
	e, incoming := newTestExtractor(t, engine)
	writePNG(t, filepath.Join(incoming, "receipt1.png"))

	ctx := context.Background()

	first := e.Extract(ctx, "receipt1.png")
	if !first.OK() {
		t.Fatalf("first Extract = %+v, want text", first)
	}
	want := "PIX Banco do Brasil R$ 29,90 Padaria Bonanza"
	if first.Text != want {
		t.Errorf("first Extract text = %q, want whitespace-collapsed %q", first.Text, want)
	}

	second := e.Extract(ctx, "receipt1.png")
	if !second.OK() || second.Text != first.Text {
		t.Errorf("second Extract = %+v, want identical cached text", second)
	}
	if engine.calls != 1 {
		t.Errorf("engine ran %d times, want 1 (second call must be a cache hit)", engine.calls)
	}
}

func TestExtract_NotFound(t *testing.T) {
	e, _ := newTestExtractor(t, &fakeEngine{text: "x"})
	res := e.Extract(context.Background(), "missing.jpg")
	if res.Kind != NotFound {
		t.Errorf("Extract = %+v, want NotFound", res)
	}
}

func TestExtract_NoTextDetected(t *testing.T) {
	engine := &fakeEngine{text: "   \n  "}
	e, incoming := newTestExtractor(t, engine)
	writePNG(t, filepath.Join(incoming, "blank.png"))

	res := e.Extract(context.Background(), "blank.png")
	if res.Kind != NoTextDetected {
		t.Errorf("Extract = %+v, want NoTextDetected", res)
	}

	// Failed extractions must not be cached: a later attempt re-runs OCR.
	e.Extract(context.Background(), "blank.png")
	if engine.calls != 2 {
		t.Errorf("engine ran %d times, want 2 (empty results are not cached)", engine.calls)
	}
}

func TestExtract_EngineFailureIsLoadError(t *testing.T) {
	engine := &fakeEngine{err: os.ErrPermission}
	e, incoming := newTestExtractor(t, engine)
	writePNG(t, filepath.Join(incoming, "bad.png"))

	res := e.Extract(context.Background(), "bad.png")
	if res.Kind != LoadError {
		t.Errorf("Extract = %+v, want LoadError", res)
	}
}

func TestExtractForced_BypassesCacheRead(t *testing.T) {
	engine := &fakeEngine{text: "valor 10,00"}
	e, incoming := newTestExtractor(t, engine)
	writePNG(t, filepath.Join(incoming, "r.png"))

	ctx := context.Background()
	e.Extract(ctx, "r.png")
	e.ExtractForced(ctx, "r.png")
	if engine.calls != 2 {
		t.Errorf("engine ran %d times, want 2 (forced run bypasses the cache)", engine.calls)
	}
}

func TestCache_WriteOnce(t *testing.T) {
	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenCache failed: %v", err)
	}
	defer cache.Close()

	if err := cache.Put("a.jpg", "first"); err != nil {
		t.Fatal(err)
	}
	if err := cache.Put("a.jpg", "second"); err != nil {
		t.Fatal(err)
	}

	text, ok, err := cache.Get("a.jpg")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if text != "first" {
		t.Errorf("cached text = %q, want the original write to win", text)
	}

	// Keyed by base filename regardless of the path form.
	text, ok, _ = cache.Get("/some/dir/a.jpg")
	if !ok || text != "first" {
		t.Errorf("Get by full path = %q, %v; want cache hit on base name", text, ok)
	}
}

func TestOtsuThreshold_SeparatesBimodal(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if x < 5 {
				img.SetGray(x, y, color.Gray{Y: 20})
			} else {
				img.SetGray(x, y, color.Gray{Y: 200})
			}
		}
	}
	th := otsuThreshold(img)
	if th < 20 || th >= 200 {
		t.Errorf("otsuThreshold = %d, want a value between the two modes", th)
	}

	bw := binarize(img)
	if bw.GrayAt(0, 0).Y != 0 || bw.GrayAt(9, 9).Y != 255 {
		t.Errorf("binarize did not split modes: dark=%d light=%d", bw.GrayAt(0, 0).Y, bw.GrayAt(9, 9).Y)
	}
}
