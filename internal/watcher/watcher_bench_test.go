package watcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/conneroisu/mdpreview/internal/logging"
	"github.com/fsnotify/fsnotify"
)

func BenchmarkIgnored(b *testing.B) {
	w, err := New(Options{Ignore: DefaultIgnorePatterns}, logging.Discard())
	if err != nil {
		b.Fatal(err)
	}
	defer w.Close()

	paths := []string{
		"/home/user/notes/doc.md",
		"/home/user/notes/.doc.md.swp",
		"/home/user/notes/doc.md~",
		"/home/user/notes/style.css",
	}

	b.ResetTimer()
	for i := range b.N {
		w.ignored(paths[i%len(paths)])
	}
}

func BenchmarkHandle(b *testing.B) {
	for _, buffer := range []int{1, 64, 1024} {
		b.Run(fmt.Sprintf("buffer=%d", buffer), func(b *testing.B) {
			w, err := New(Options{BufferSize: buffer, Ignore: DefaultIgnorePatterns}, logging.Discard())
			if err != nil {
				b.Fatal(err)
			}
			defer w.Close()

			ctx := context.Background()
			event := fsnotify.Event{Name: "/home/user/notes/doc.md", Op: fsnotify.Write}

			b.ResetTimer()
			for range b.N {
				w.handle(ctx, event)
				select {
				case <-w.events:
				default:
				}
			}
		})
	}
}
