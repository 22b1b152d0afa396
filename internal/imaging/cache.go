package imaging

import (
	"container/list"
	"image"
	"sync"
)

// DefaultCacheBytes bounds the decoded size of the images kept by a cache
// created with NewImageCache.
const DefaultCacheBytes = 256 << 20

// ImageCache provides thread-safe caching of decoded images keyed by the
// reference they were loaded from.
//
// Template artwork is opened many times while a user flips between pages, so
// the cache avoids re-fetching and re-decoding the same reference. Data URIs
// are never cached; they are already in memory and make poor map keys.
//
// # Memory Management
//
// The cache is bounded by the decoded size of its images, estimated as four
// bytes per pixel, rather than by entry count: a single 2550x3300 page costs
// about 33 MB. When a Put would exceed the budget, the least recently used
// entries are evicted first. An image larger than the whole budget is not
// cached at all. Evict and Clear release entries explicitly.
type ImageCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front is most recently used
	size     int64
	maxBytes int64
}

type cacheEntry struct {
	key  string
	img  image.Image
	cost int64
}

// NewImageCache creates an empty cache bounded by DefaultCacheBytes.
func NewImageCache() *ImageCache {
	return NewImageCacheBytes(DefaultCacheBytes)
}

// NewImageCacheBytes creates an empty cache holding at most maxBytes of
// decoded pixels. A non-positive maxBytes disables the limit.
func NewImageCacheBytes(maxBytes int64) *ImageCache {
	return &ImageCache{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		maxBytes: maxBytes,
	}
}

// DecodedSize estimates the memory held by a decoded img.
func DecodedSize(img image.Image) int64 {
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}

// Get returns the cached image for key, if any, and marks it recently used.
func (c *ImageCache) Get(key string) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).img, true
}

// Put stores img under key, evicting least recently used entries until the
// cache fits its budget.
func (c *ImageCache) Put(key string, img image.Image) {
	cost := DecodedSize(img)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(key)
	if c.maxBytes > 0 && cost > c.maxBytes {
		return
	}
	for c.maxBytes > 0 && c.size+cost > c.maxBytes {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.remove(oldest.Value.(*cacheEntry).key)
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, img: img, cost: cost})
	c.size += cost
}

// GetOrLoad returns the cached image for key, or calls load and caches its
// result. Errors are not cached.
func (c *ImageCache) GetOrLoad(key string, load func() (image.Image, error)) (image.Image, error) {
	if img, ok := c.Get(key); ok {
		return img, nil
	}
	img, err := load()
	if err != nil {
		return nil, err
	}
	c.Put(key, img)
	return img, nil
}

// Len reports the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Bytes reports the estimated decoded size of the cached images.
func (c *ImageCache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.size = 0
	c.mu.Unlock()
}

// Evict removes the image stored under key. Unknown keys are ignored.
func (c *ImageCache) Evict(key string) {
	c.mu.Lock()
	c.remove(key)
	c.mu.Unlock()
}

func (c *ImageCache) remove(key string) {
	el, ok := c.entries[key]
	if !ok {
		return
	}
	c.order.Remove(el)
	delete(c.entries, key)
	c.size -= el.Value.(*cacheEntry).cost
}
