// SPDX-License-Identifier: MPL-2.0

package fsguard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestHelper_Copy(t *testing.T) {
	t.Parallel()

	h := New(afero.NewMemMapFs())
	if err := afero.WriteFile(h.Fs(), "/src/run.sh", []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	n, err := h.Copy("/src/run.sh", "/dst/nested/run.sh")
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if n != int64(len("#!/bin/sh\n")) {
		t.Errorf("Copy() written = %d", n)
	}

	info, err := h.Fs().Stat("/dst/nested/run.sh")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}

	// Replacing an existing file keeps the source mode and content.
	if err := afero.WriteFile(h.Fs(), "/src/data", []byte("new"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(h.Fs(), "/dst/data", []byte("old content"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Copy("/src/data", "/dst/data"); err != nil {
		t.Fatalf("Copy() over existing error = %v", err)
	}
	data, _ := h.ReadFile("/dst/data")
	if string(data) != "new" {
		t.Errorf("content = %q, want %q", data, "new")
	}
}

func TestHelper_CopyRejectsDirectory(t *testing.T) {
	t.Parallel()

	h := New(afero.NewMemMapFs())
	if err := h.MkdirAll("/src/dir"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Copy("/src/dir", "/dst/dir"); err == nil {
		t.Error("expected error copying a directory")
	}
}

func TestHelper_RemoveIfExists(t *testing.T) {
	t.Parallel()

	h := New(afero.NewMemMapFs())
	if err := h.WriteFile("/a/b", []byte("x")); err != nil {
		t.Fatal(err)
	}

	removed, err := h.RemoveIfExists("/a/b")
	if err != nil || !removed {
		t.Errorf("RemoveIfExists(existing) = %v, %v", removed, err)
	}
	removed, err = h.RemoveIfExists("/a/b")
	if err != nil || removed {
		t.Errorf("RemoveIfExists(missing) = %v, %v", removed, err)
	}
}

func TestHelper_WalkAndRemoveEmptyParents(t *testing.T) {
	t.Parallel()

	h := New(afero.NewMemMapFs())
	for _, p := range []string{"/root/x/y/z.txt", "/root/x/keep.txt"} {
		if err := h.WriteFile(p, []byte(p)); err != nil {
			t.Fatal(err)
		}
	}

	var files []string
	err := h.Walk("/root", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, filepath.ToSlash(path))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if !slices.Equal(files, []string{"/root/x/keep.txt", "/root/x/y/z.txt"}) {
		t.Errorf("Walk() files = %v", files)
	}

	if err := h.Remove("/root/x/y/z.txt"); err != nil {
		t.Fatal(err)
	}
	h.RemoveEmptyParents("/root/x/y/z.txt", "/root")

	if ok, _ := h.Exists("/root/x/y"); ok {
		t.Error("empty parent /root/x/y should be removed")
	}
	if ok, _ := h.Exists("/root/x"); !ok {
		t.Error("non-empty /root/x must remain")
	}
}

func TestCommandToggle(t *testing.T) {
	t.Parallel()

	var calls []string
	toggle, err := NewCommandToggle(
		[]string{"mount", "-o", "remount,rw", "/"},
		[]string{"mount", "-o", "remount,ro", "/"},
		WithCommandRunner(func(_ context.Context, argv []string) ([]byte, error) {
			calls = append(calls, strings.Join(argv, " "))
			if strings.Contains(argv[2], "ro") {
				return []byte("mount: / is busy"), errors.New("exit status 32")
			}
			return nil, nil
		}),
	)
	if err != nil {
		t.Fatalf("NewCommandToggle() error = %v", err)
	}

	if err := toggle.EnableWrite(context.Background()); err != nil {
		t.Errorf("EnableWrite() error = %v", err)
	}
	err = toggle.DisableWrite(context.Background())
	if err == nil || !strings.Contains(err.Error(), "busy") {
		t.Errorf("DisableWrite() error = %v, want output in error", err)
	}
	if len(calls) != 2 || calls[0] != "mount -o remount,rw /" {
		t.Errorf("calls = %v", calls)
	}

	if _, err := NewCommandToggle(nil, []string{"true"}); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("NewCommandToggle(nil) error = %v, want ErrEmptyCommand", err)
	}
}

func TestNopToggle(t *testing.T) {
	t.Parallel()

	var toggle WriteToggle = NopToggle{}
	if err := toggle.EnableWrite(context.Background()); err != nil {
		t.Error(err)
	}
	if err := toggle.DisableWrite(context.Background()); err != nil {
		t.Error(err)
	}
}
