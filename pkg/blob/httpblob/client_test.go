package httpblob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companionlabs/avatarmem-go/pkg/blob"
)

func newAssetHost(t *testing.T) (*httptest.Server, map[string][]byte) {
	t.Helper()
	files := make(map[string][]byte)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			data, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			files[r.URL.Path] = data
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			data, ok := files[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write(data)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, files
}

func TestPutGetRoundTrip(t *testing.T) {
	host, files := newAssetHost(t)
	client, err := NewClient(&Config{HostURL: host.URL})
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte{0x01, 0x02}

	require.NoError(t, client.Put(ctx, "av1", data))
	assert.Equal(t, data, files["/api/assets/av1/memory.bin"])

	got, err := client.Get(ctx, "av1")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	host, _ := newAssetHost(t)
	client, err := NewClient(&Config{HostURL: host.URL})
	require.NoError(t, err)

	_, err = client.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestRequiresHostURL(t *testing.T) {
	_, err := NewClient(&Config{})
	assert.Error(t, err)
}
