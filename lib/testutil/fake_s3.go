// Package testutil provides testing utilities for satfetch integration tests.
package testutil

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ModTime is the Last-Modified time FakeS3 reports for every object.
var ModTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// FakeS3 serves the subset of the S3 REST API satfetch uses: path-style
// ListObjectsV2, GetObject and HeadObject against one bucket.
type FakeS3 struct {
	bucket string
	server *httptest.Server

	mu      sync.Mutex
	objects map[string]string

	// pageSize caps max-keys when positive.
	pageSize atomic.Int32

	lists    atomic.Int32
	requests atomic.Int32
	failing  atomic.Bool
}

// NewFakeS3 starts a fake store holding objects in bucket. The caller must
// Close it.
func NewFakeS3(bucket string, objects map[string]string) *FakeS3 {
	f := &FakeS3{bucket: bucket, objects: make(map[string]string, len(objects))}
	for k, v := range objects {
		f.objects[k] = v
	}
	f.server = httptest.NewServer(f)
	return f
}

// URL returns the endpoint URL of the fake store.
func (f *FakeS3) URL() string {
	return f.server.URL
}

// Bucket returns the bucket the fake store serves.
func (f *FakeS3) Bucket() string {
	return f.bucket
}

// Close shuts the fake store down.
func (f *FakeS3) Close() {
	f.server.Close()
}

// Put adds or replaces an object.
func (f *FakeS3) Put(key, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = body
}

// SetPageSize caps the number of keys per listing page. Zero removes the cap.
func (f *FakeS3) SetPageSize(n int) {
	f.pageSize.Store(int32(n))
}

// SetFailing makes every request fail with 403 AccessDenied while true.
func (f *FakeS3) SetFailing(failing bool) {
	f.failing.Store(failing)
}

// Lists returns the number of listing requests served.
func (f *FakeS3) Lists() int {
	return int(f.lists.Load())
}

// Requests returns the number of requests received.
func (f *FakeS3) Requests() int {
	return int(f.requests.Load())
}

// ServeHTTP implements http.Handler.
func (f *FakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	if f.failing.Load() {
		writeError(w, http.StatusForbidden, "AccessDenied", "Access Denied")
		return
	}

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket != f.bucket {
		writeError(w, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist")
		return
	}
	if key == "" {
		f.list(w, r)
		return
	}

	f.mu.Lock()
	body, ok := f.objects[key]
	f.mu.Unlock()

	if !ok {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeError(w, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
		return
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Last-Modified", ModTime.Format(http.TimeFormat))
	w.Header().Set("ETag", `"`+key+`"`)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte(body))
	}
}

func (f *FakeS3) list(w http.ResponseWriter, r *http.Request) {
	f.lists.Add(1)
	q := r.URL.Query()
	prefix := q.Get("prefix")
	maxKeys := 1000
	if v := q.Get("max-keys"); v != "" {
		maxKeys, _ = strconv.Atoi(v)
	}
	if ps := int(f.pageSize.Load()); ps > 0 && maxKeys > ps {
		maxKeys = ps
	}
	start := 0
	if v := q.Get("continuation-token"); v != "" {
		start, _ = strconv.Atoi(v)
	}

	f.mu.Lock()
	var keys []string
	sizes := make(map[string]int)
	for k, v := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
			sizes[k] = len(v)
		}
	}
	f.mu.Unlock()
	sort.Strings(keys)

	end := start + maxKeys
	if end > len(keys) {
		end = len(keys)
	}
	if start > end {
		start = end
	}
	page := keys[start:end]
	truncated := end < len(keys)

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	sb.WriteString(`<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
	fmt.Fprintf(&sb, "<Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><MaxKeys>%d</MaxKeys><IsTruncated>%t</IsTruncated>",
		f.bucket, html.EscapeString(prefix), len(page), maxKeys, truncated)
	for _, k := range page {
		fmt.Fprintf(&sb, "<Contents><Key>%s</Key><LastModified>%s</LastModified><ETag>&quot;%s&quot;</ETag><Size>%d</Size><StorageClass>STANDARD</StorageClass></Contents>",
			html.EscapeString(k), ModTime.Format("2006-01-02T15:04:05.000Z"), html.EscapeString(k), sizes[k])
	}
	if truncated {
		fmt.Fprintf(&sb, "<NextContinuationToken>%d</NextContinuationToken>", end)
	}
	sb.WriteString("</ListBucketResult>")

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message><RequestId>test</RequestId></Error>`, code, msg)
}
