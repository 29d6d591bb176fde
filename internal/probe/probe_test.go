package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckPassesOnHealthyPage(t *testing.T) {
	t.Parallel()

	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	p := New(Config{UserAgent: "test-agent"}, nil)
	err := p.Check(context.Background(), srv.URL, "c_user=123; xs=abc")
	require.NoError(t, err)
	require.Equal(t, "c_user=123; xs=abc", gotCookie)
}

func TestCheckForbiddenIsBlocked(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := New(Config{}, nil)
	err := p.Check(context.Background(), srv.URL, "")
	require.ErrorIs(t, err, ErrBlocked)
}

func TestCheckLoginRedirectIsBlocked(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login?next=feed", http.StatusFound)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>login</html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := New(Config{}, nil)
	err := p.Check(context.Background(), srv.URL+"/feed", "stale=1")
	require.ErrorIs(t, err, ErrBlocked)
}

func TestCheckUnreachableHostErrors(t *testing.T) {
	t.Parallel()

	p := New(Config{}, nil)
	err := p.Check(context.Background(), "http://127.0.0.1:1/none", "")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrBlocked)
}
