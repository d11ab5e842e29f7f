package raw

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/catalog-ingest/internal/bronze"
	"github.com/ledgerline/catalog-ingest/internal/model"
)

type memSink struct {
	pages    []model.Page
	details  []model.ProductDetail
	failNext bool
}

func (m *memSink) UpsertPage(_ context.Context, page model.Page) error {
	if m.failNext {
		m.failNext = false
		return eris.New("sink unavailable")
	}
	m.pages = append(m.pages, page)
	return nil
}

func (m *memSink) UpsertProductDetail(_ context.Context, detail model.ProductDetail) error {
	if m.failNext {
		m.failNext = false
		return eris.New("sink unavailable")
	}
	m.details = append(m.details, detail)
	return nil
}

func newTestStore(t *testing.T) (*Store, *memSink, string) {
	t.Helper()
	dir := t.TempDir()
	sink := &memSink{}
	return New(bronze.NewFileSink(dir), sink), sink, dir
}

func testPage() model.Page {
	return model.Page{
		RunID:      "run-1",
		ProviderID: "p1",
		Endpoint:   "products",
		URL:        "https://alpha.example.com/banking/products",
		PageNum:    1,
		AsOf:       "2026-08-29",
		HTTPStatus: 200,
		Payload:    []byte(`{"data":{"products":[]}}`),
	}
}

func TestSavePage_WritesBothSinks(t *testing.T) {
	store, sink, _ := newTestStore(t)

	path, err := store.SavePage(context.Background(), testPage())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"data":{"products":[]}}`, string(data))

	require.Len(t, sink.pages, 1)
	assert.Equal(t, HashPayload([]byte(`{"data":{"products":[]}}`)), sink.pages[0].PayloadSHA256)
}

func TestSavePage_SinkFailureLeavesNoFile(t *testing.T) {
	store, sink, dir := newTestStore(t)
	sink.failNext = true

	_, err := store.SavePage(context.Background(), testPage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "structured sink write")

	// Neither the final file nor any stray temp file may exist.
	var files []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestSavePage_Rewrite_ReplacesFile(t *testing.T) {
	store, sink, _ := newTestStore(t)

	page := testPage()
	_, err := store.SavePage(context.Background(), page)
	require.NoError(t, err)

	page.Payload = []byte(`{"data":{"products":[{"productId":"x"}]}}`)
	page.PayloadSHA256 = ""
	path, err := store.SavePage(context.Background(), page)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "productId")
	assert.Len(t, sink.pages, 2)
}

func TestSaveDetail_WritesBothSinks(t *testing.T) {
	store, sink, _ := newTestStore(t)

	detail := model.ProductDetail{
		RunID:      "run-1",
		ProviderID: "p1",
		ProductID:  "prod-42",
		URL:        "https://alpha.example.com/banking/products/prod-42",
		AsOf:       "2026-08-29",
		HTTPStatus: 200,
		Payload:    []byte(`{"data":{"productId":"prod-42"}}`),
	}
	path, err := store.SaveDetail(context.Background(), "product_detail", detail)
	require.NoError(t, err)
	assert.Contains(t, path, "endpoint=product_detail")
	assert.Contains(t, path, "product=prod-42.json")

	_, err = os.Stat(path)
	require.NoError(t, err)
	require.Len(t, sink.details, 1)
	assert.NotEmpty(t, sink.details[0].PayloadSHA256)
}

func TestHashPayload_Stable(t *testing.T) {
	a := HashPayload([]byte(`{"a":1}`))
	b := HashPayload([]byte(`{"a":1}`))
	c := HashPayload([]byte(`{"a":2}`))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
