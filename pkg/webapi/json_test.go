package webapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/webauth/pkg/webapi"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID int `json:"id"`
}

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestGetJSON(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /records/1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":1}`)
	})
	mux.HandleFunc("GET /broken", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":`)
	})
	mux.HandleFunc("GET /rejected", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("GET /forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := webapi.New(srv.URL, &stubTokens{token: "t"})
	ctx := context.Background()

	t.Run("decodes body", func(t *testing.T) {
		got, err := webapi.GetJSON[record](ctx, c, "records/1", true)
		require.NoError(t, err)
		require.Equal(t, record{ID: 1}, got)
	})

	t.Run("rejected credential", func(t *testing.T) {
		_, err := webapi.GetJSON[record](ctx, c, "rejected", true)
		require.ErrorIs(t, err, webapi.ErrUnauthorized)
	})

	t.Run("missing resource", func(t *testing.T) {
		_, err := webapi.GetJSON[record](ctx, c, "nope", true)

		var svc *webapi.ServiceError
		require.ErrorAs(t, err, &svc)
		require.Equal(t, "Not Found", svc.Reason)
	})

	t.Run("other non-success status", func(t *testing.T) {
		_, err := webapi.GetJSON[record](ctx, c, "forbidden", true)

		var svc *webapi.ServiceError
		require.ErrorAs(t, err, &svc)
		require.Equal(t, http.StatusForbidden, svc.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		_, err := webapi.GetJSON[record](ctx, c, "broken", true)
		require.ErrorIs(t, err, webapi.ErrDecode)

		var syntaxErr *json.SyntaxError
		require.ErrorAs(t, err, &syntaxErr)
	})

	t.Run("scoped absolute target", func(t *testing.T) {
		other := webapi.New("https://unused.example.com", &stubTokens{token: "t"})
		got, err := webapi.GetJSONForScopes[record](ctx, other, srv.URL+"/records/1", true, []string{"read"})
		require.NoError(t, err)
		require.Equal(t, 1, got.ID)
	})
}

func TestPostAndPutJSON(t *testing.T) {
	t.Parallel()

	// bump returns the decoded widget with Count raised by n.
	bump := func(n int) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Content-Type") != "application/json" {
				w.WriteHeader(http.StatusUnsupportedMediaType)
				return
			}
			var in widget
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			in.Count += n
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(in)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("POST /widgets", bump(1))
	mux.Handle("PUT /widgets/gear", bump(10))
	mux.HandleFunc("POST /widgets/gear/archive", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("PUT /widgets/gear/label", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := webapi.New(srv.URL, &stubTokens{token: "t"})
	ctx := context.Background()

	created, err := webapi.PostJSON[widget, widget](ctx, c, "widgets", widget{Name: "gear", Count: 1}, true)
	require.NoError(t, err)
	require.Equal(t, widget{Name: "gear", Count: 2}, created)

	updated, err := webapi.PutJSON[widget, widget](ctx, c, "widgets/gear", created, true)
	require.NoError(t, err)
	require.Equal(t, 12, updated.Count)

	t.Run("unencodable body", func(t *testing.T) {
		_, err := webapi.PostJSON[chan int, widget](ctx, c, "widgets", make(chan int), true)
		require.Error(t, err)
		require.Contains(t, err.Error(), "encode request")
	})

	t.Run("no content", func(t *testing.T) {
		got, err := webapi.PostJSON[widget, widget](ctx, c, "widgets/gear/archive", created, true)
		require.NoError(t, err)
		require.Zero(t, got)
	})

	t.Run("empty body", func(t *testing.T) {
		got, err := webapi.PutJSON[widget, *widget](ctx, c, "widgets/gear/label", created, true)
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("put without credential", func(t *testing.T) {
		anon := webapi.New(srv.URL, &stubTokens{})
		_, err := webapi.PutJSON[widget, widget](ctx, anon, "widgets/gear", created, true)
		require.ErrorIs(t, err, webapi.ErrAuthenticationFailed)
	})
}
