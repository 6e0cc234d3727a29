// Package attrs declares attributes shaped like the framework's own
// from a different package path.
package attrs

type Blob struct {
	Path string
}

type Sample struct{}
