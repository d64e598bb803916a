package trawl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackageLevelFetchAndCollect(t *testing.T) {

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	outcomes := Collect(context.Background(), []string{server.URL, server.URL})

	require.Len(t, outcomes, 2)
	for _, outcome := range outcomes {
		assert.False(t, outcome.Failed())
		assert.Equal(t, int64(5), outcome.Bytes)
	}

	received := 0
	for outcome := range Fetch(context.Background(), []string{server.URL}) {
		assert.False(t, outcome.Failed())
		received++
	}
	assert.Equal(t, 1, received)
}
