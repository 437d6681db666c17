package reader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCleanTextCollapsesWhitespaceAndPreservesParagraphs(t *testing.T) {
	t.Parallel()

	input := "  First   paragraph \n\n Second\tparagraph \r\n\r\nThird line "
	got := CleanText(input)
	want := "First paragraph\n\nSecond paragraph\n\nThird line"
	if got != want {
		t.Fatalf("unexpected clean text: got %q want %q", got, want)
	}
}

func TestFetchReturnsHTML(t *testing.T) {
	t.Parallel()

	userAgents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgents <- r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body><p>Hola</p></body></html>"))
	}))
	defer srv.Close()

	body, err := Fetch(context.Background(), srv.URL, FetchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(body), "<p>Hola</p>") {
		t.Fatalf("unexpected body: %s", body)
	}
	if userAgent := <-userAgents; !strings.HasPrefix(userAgent, "pagetranslate/") {
		t.Fatalf("unexpected user agent: %q", userAgent)
	}
}

func TestFetchRejections(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{}`))
		default:
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(strings.Repeat("a", 64)))
		}
	}))
	defer srv.Close()

	cases := []struct {
		url   string
		limit int64
		want  string
	}{
		{url: "ftp://example.com/page", want: "absolute http(s) URL"},
		{url: srv.URL + "/missing", want: "fetch status 404"},
		{url: srv.URL + "/json", want: "unsupported content type"},
		{url: srv.URL + "/big", limit: 16, want: "exceeds 16 bytes"},
	}
	for _, tc := range cases {
		_, err := Fetch(context.Background(), tc.url, FetchOptions{BodyByteLimit: tc.limit})
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: unexpected error: got %v want substring %q", tc.url, err, tc.want)
		}
	}
}

func TestMainTextDropsNavigation(t *testing.T) {
	t.Parallel()

	page := `<html><head><title>Artículo</title></head><body>
<nav><a href="/">Inicio</a> <a href="/news">Noticias</a></nav>
<article><h1>Un día en el mercado</h1>
<p>El mercado central abre cada mañana a las siete, y los vendedores llegan mucho antes para preparar sus puestos de frutas, verduras y pescado fresco.</p>
<p>Los vecinos del barrio dicen que es el mejor lugar de la ciudad para comprar productos de temporada a buen precio, y muchos vienen todos los días.</p>
</article></body></html>`

	text, err := MainText([]byte(page), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "mercado central") {
		t.Fatalf("expected article text, got %q", text)
	}
}
