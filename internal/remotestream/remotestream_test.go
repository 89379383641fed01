package remotestream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// flakyFileServer serves a fixed body but truncates the first (non-ranged)
// response short, forcing FileStream to resume with a Range request.
func flakyFileServer(t *testing.T, body []byte, firstChunkLen int) *httptest.Server {
	t.Helper()
	var rangeSeen bool
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		if rng == "" && !rangeSeen {
			w.WriteHeader(http.StatusOK)
			w.Write(body[:firstChunkLen])
			return
		}
		rangeSeen = true
		// Any resumed request: serve the remainder in full.
		w.WriteHeader(http.StatusOK)
		w.Write(body[firstChunkLen:])
	}))
}

func TestFileStreamResumesOnShortRead(t *testing.T) {
	body := []byte(strings.Repeat("x", 40000))
	srv := flakyFileServer(t, body, 5)
	defer srv.Close()

	ctx := context.Background()
	fs, err := NewFileStream(ctx, srv.URL, nil)
	require.NoError(t, err)
	defer fs.Close()

	var got []byte
	for {
		chunk, err := fs.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, chunk...)
	}
	require.Equal(t, body, got)
}

func TestFileStreamStopsWithNoContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Del("Content-Length")
		hj, ok := w.(http.Hijacker)
		if !ok {
			w.Write([]byte("abc"))
			return
		}
		conn, buf, _ := hj.Hijack()
		defer conn.Close()
		buf.WriteString("HTTP/1.1 200 OK\r\nConnection: close\r\n\r\nabc")
		buf.Flush()
	}))
	defer srv.Close()

	ctx := context.Background()
	fs, err := NewFileStream(ctx, srv.URL, nil)
	require.NoError(t, err)
	defer fs.Close()

	chunk, err := fs.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), chunk)

	_, err = fs.Next(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestFileStreamSendsHeaders(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Authorization")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx := context.Background()
	fs, err := NewFileStream(ctx, srv.URL, []Header{{Name: "Authorization", Value: "Bearer tok"}})
	require.NoError(t, err)
	defer fs.Close()

	_, err = fs.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "Bearer tok", seen)
}

func TestPlaylistStreamVODDeliversAllSegmentsInOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n" +
			"#EXT-X-TARGETDURATION:4\n" +
			"#EXT-X-MEDIA-SEQUENCE:0\n" +
			"#EXTINF:4.0,\n" +
			"seg0.ts\n" +
			"#EXTINF:4.0,\n" +
			"seg1.ts\n" +
			"#EXT-X-ENDLIST\n"))
	})
	mux.HandleFunc("/seg0.ts", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("AAAA")) })
	mux.HandleFunc("/seg1.ts", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("BBBB")) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ps := NewPlaylistStream(ctx, srv.URL+"/stream.m3u8", nil)
	defer ps.Close()

	var got []byte
	for {
		chunk, err := ps.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, chunk...)
	}
	require.Equal(t, "AAAABBBB", string(got))
}
