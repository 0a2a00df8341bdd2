// Package assets loads images from a file system and keeps them decoded in
// cache tiers for paint callbacks.
//
// Decoded images live in a two-tier cache: a small hot LRU tier and a larger
// warm TTL-first tier. A hit in the warm tier promotes the image back into
// the hot tier. Scaled thumbnails are derived data and live in their own LFU
// tier. All tiers register with the memory monitor through Tiers.
//
// Paint callbacks should use Peek, which never touches the file system: a
// miss after a pressure eviction is an ordinary fallback, not an error.
//
// PNG, JPEG and GIF are decoded by the standard library; BMP, TIFF and WebP
// by golang.org/x/image.
package assets
