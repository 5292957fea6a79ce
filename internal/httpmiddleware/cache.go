package httpmiddleware

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// NewCacheStore creates the backing store for Cache.
func NewCacheStore(ttl time.Duration) *cache.Cache {
	return cache.New(ttl, 2*ttl)
}

// Cache serves repeated GET requests from store for ttl. Only 2xx answers
// are cached. A zero ttl disables caching.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ttl <= 0 || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.URL.RequestURI()
		if v, found := store.Get(key); found {
			cached := v.(cachedResponse)
			for k, vals := range cached.headers {
				if _, set := c.Writer.Header()[k]; !set {
					c.Writer.Header()[k] = vals
				}
			}
			c.Writer.Header().Set("X-Cache", "HIT")
			c.Writer.WriteHeader(cached.status)
			_, _ = c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		w := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		if status := w.Status(); status >= 200 && status < 300 {
			store.Set(key, cachedResponse{
				status:  status,
				headers: replayable(w.Header()),
				body:    w.body.Bytes(),
			}, ttl)
		}
	}
}

// replayable drops the per-request CORS headers, which the cors middleware
// sets again for every caller's Origin.
func replayable(h http.Header) http.Header {
	out := h.Clone()
	for k := range out {
		if strings.HasPrefix(k, "Access-Control-") || k == "Vary" {
			delete(out, k)
		}
	}
	return out
}
