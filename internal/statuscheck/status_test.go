package statuscheck

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestSummary(t *testing.T) {
	c := New(Options{
		Redis:          PingFunc(func(context.Context) error { return nil }),
		Archive:        PingFunc(func(context.Context) error { return errors.New("access denied") }),
		ArchiveBackend: "s3",
	})
	s := c.Summary(context.Background())
	if !s.Redis.OK || s.Redis.Message != "Connected" {
		t.Errorf("Redis = %+v", s.Redis)
	}
	if s.Archive.OK || s.Archive.Message != "s3: access denied" {
		t.Errorf("Archive = %+v", s.Archive)
	}
	if !s.MuPDF.OK {
		t.Errorf("MuPDF = %+v", s.MuPDF)
	}
	if s.Healthy() {
		t.Error("summary with a failing archive reported healthy")
	}
}

func TestUnconfiguredIsHealthy(t *testing.T) {
	s := New(Options{}).Summary(context.Background())
	if s.Redis.Message != notConfigured || s.Archive.Message != notConfigured {
		t.Errorf("summary = %+v", s)
	}
	if !s.Healthy() {
		t.Error("unconfigured dependencies should not fail health")
	}
}

func TestDirWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := DirWritable(dir).Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestTrimError(t *testing.T) {
	long := errors.New(strings.Repeat("x", 200))
	if got := trimError(long); len(got) != 120 {
		t.Errorf("len = %d", len(got))
	}
	if got := trimError(context.DeadlineExceeded); got != "timeout" {
		t.Errorf("got %q", got)
	}
}
