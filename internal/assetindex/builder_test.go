package assetindex

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/varserve/varserve/internal/variant"
)

func TestBuilderReady(t *testing.T) {
	b := NewBuilder(Options{
		FS: fstest.MapFS{
			"a.html.gz": &fstest.MapFile{Data: []byte("a")},
		},
		Registry: variant.NewRegistry(variant.Config{}),
	})
	b.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}

	if _, ok := b.Index().Lookup("a.html"); !ok {
		t.Fatal("a.html not indexed")
	}
	if b.BuildDuration() < 0 {
		t.Fatal("build duration should not be negative")
	}
}

func TestBuilderReadySurfacesRootError(t *testing.T) {
	b := NewBuilder(Options{
		FS:       failStatFS{MapFS: fstest.MapFS{}, fail: map[string]bool{".": true}},
		Registry: variant.NewRegistry(variant.Config{}),
	})
	b.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Ready(ctx); !errors.Is(err, ErrRootNotFound) {
		t.Fatalf("Ready err = %v, want ErrRootNotFound", err)
	}
}

func TestBuilderReadyRespectsContext(t *testing.T) {
	// never started: Ready must give up when the caller's context does
	b := NewBuilder(Options{
		FS:       fstest.MapFS{},
		Registry: variant.NewRegistry(variant.Config{}),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Ready(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Ready err = %v, want context.Canceled", err)
	}
}

func TestBuilderConcurrentReaders(t *testing.T) {
	b := NewBuilder(Options{
		FS: fstest.MapFS{
			"x.css.gz": &fstest.MapFile{Data: []byte("x")},
		},
		Registry: variant.NewRegistry(variant.Config{}),
	})
	b.Start(context.Background())

	done := make(chan error, 16)
	for i := 0; i < 16; i++ {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := b.Ready(ctx); err != nil {
				done <- err
				return
			}
			_, ok := b.Index().Lookup("x.css")
			if !ok {
				done <- errors.New("x.css missing")
				return
			}
			done <- nil
		}()
	}
	for i := 0; i < 16; i++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}
}
