package dashboard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExportImport_RoundTrip(t *testing.T) {
	t.Parallel()

	src := Open(&memPersister{}, nil)
	require.NoError(t, src.Add(testWidget("alpha")))
	require.NoError(t, src.Add(testWidget("beta")))
	src.SetAPIKey("alphavantage", "key-1")
	src.SetAPIKey("finnhub", "key-2")

	doc, err := src.Export()
	require.NoError(t, err)

	var parsed ExportDoc
	require.NoError(t, json.Unmarshal(doc, &parsed))
	require.False(t, parsed.ExportDate.IsZero())

	dst := Open(&memPersister{}, nil)
	require.NoError(t, dst.Import(doc, true))

	require.Equal(t, src.Widgets(), dst.Widgets())
	require.Equal(t, src.APIKeys(), dst.APIKeys())
}

func TestImport_MergeAppendsUnknownWidgets(t *testing.T) {
	t.Parallel()

	src := Open(&memPersister{}, nil)
	shared := testWidget("shared")
	incoming := testWidget("incoming")
	require.NoError(t, src.Add(shared))
	require.NoError(t, src.Add(incoming))
	doc, err := src.Export()
	require.NoError(t, err)

	dst := Open(&memPersister{}, nil)
	require.NoError(t, dst.Add(shared))
	existing := testWidget("existing")
	require.NoError(t, dst.Add(existing))

	require.NoError(t, dst.Import(doc, false))

	ws := dst.Widgets()
	require.Len(t, ws, 3)
	require.Equal(t, shared.ID, ws[0].ID)
	require.Equal(t, existing.ID, ws[1].ID)
	require.Equal(t, incoming.ID, ws[2].ID, "unknown ids are appended")
}

func TestImport_RejectsInvalidWidgets(t *testing.T) {
	t.Parallel()

	dst := Open(&memPersister{}, nil)
	require.NoError(t, dst.Add(testWidget("keep")))

	bad := []byte(`{"widgets": [{"id": "x", "type": "card", "title": "", "symbols": "AAPL", "refresh_interval": 30}], "apiKeys": {}}`)
	require.Error(t, dst.Import(bad, true))
	require.Len(t, dst.Widgets(), 1, "failed import must not change state")

	garbage := []byte(`{"widgets": "nope"`)
	require.Error(t, dst.Import(garbage, false))
}

func TestImport_ReplaceSwapsCredentials(t *testing.T) {
	t.Parallel()

	src := Open(&memPersister{}, nil)
	src.SetAPIKey("alphavantage", "new-key")
	doc, err := src.Export()
	require.NoError(t, err)

	dst := Open(&memPersister{}, nil)
	dst.SetAPIKey("finnhub", "old-key")
	require.NoError(t, dst.Import(doc, true))

	keys := dst.APIKeys()
	require.Equal(t, "new-key", keys["alphavantage"])
	_, ok := keys["finnhub"]
	require.False(t, ok, "replace drops credentials absent from the document")
}
