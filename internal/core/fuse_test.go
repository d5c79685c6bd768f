package core

import (
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/adapters"
	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/filesystem"
)

func newTestRaw(t *testing.T) (*FuseRaw, *filesystem.FileSystem) {
	t.Helper()
	cfg := config.NewDefaultConfig()
	fs, err := filesystem.NewFS(cfg)
	require.NoError(t, err)
	return NewFuseRaw(fs, cfg), fs
}

func addInlineFile(t *testing.T, fs *filesystem.FileSystem, path, text string) {
	t.Helper()
	_, err := fs.AddFileNode(&memfs.FileCreateRequest{
		NodeRequest: memfs.NodeRequest{Path: path, Type: memfs.FileNodeType},
		Sources: []memfs.FileSource{{
			Provider: &adapters.InlineProvider{},
			Config:   []byte(`{"type":"inline","text":"` + text + `"}`),
		}},
	})
	require.NoError(t, err)
}

func lookup(t *testing.T, r *FuseRaw, parent uint64, name string) (fuse.Status, *fuse.EntryOut) {
	t.Helper()
	out := &fuse.EntryOut{}
	st := r.Lookup(nil, &fuse.InHeader{NodeId: parent}, name, out)
	return st, out
}

func TestFuseRaw_Lookup(t *testing.T) {
	t.Parallel()
	r, fs := newTestRaw(t)
	_, err := fs.MkdirAll("/a/b", 0o755)
	require.NoError(t, err)
	_, err = fs.Symlink("a", "/link")
	require.NoError(t, err)

	st, out := lookup(t, r, fuse.FUSE_ROOT_ID, "a")
	require.Equal(t, fuse.OK, st)
	assert.NotZero(t, out.NodeId)
	assert.NotEqual(t, uint64(fuse.FUSE_ROOT_ID), out.NodeId)
	assert.Equal(t, uint32(syscall.S_IFDIR), out.Attr.Mode&syscall.S_IFMT)

	st, child := lookup(t, r, out.NodeId, "b")
	require.Equal(t, fuse.OK, st)
	assert.NotEqual(t, out.NodeId, child.NodeId)

	st, again := lookup(t, r, fuse.FUSE_ROOT_ID, "a")
	require.Equal(t, fuse.OK, st)
	assert.Equal(t, out.NodeId, again.NodeId, "same file keeps its node id")

	st, link := lookup(t, r, fuse.FUSE_ROOT_ID, "link")
	require.Equal(t, fuse.OK, st)
	assert.Equal(t, uint32(syscall.S_IFLNK), link.Attr.Mode&syscall.S_IFMT, "final link is not followed")

	st, _ = lookup(t, r, fuse.FUSE_ROOT_ID, "missing")
	assert.Equal(t, fuse.ENOENT, st)

	st, _ = lookup(t, r, 9999, "a")
	assert.Equal(t, fuse.ENOENT, st)
}

func TestFuseRaw_ForgetAndGetAttr(t *testing.T) {
	t.Parallel()
	r, fs := newTestRaw(t)
	_, err := fs.Mkdir("/a", 0o700)
	require.NoError(t, err)

	_, out := lookup(t, r, fuse.FUSE_ROOT_ID, "a")

	attrOut := &fuse.AttrOut{}
	require.Equal(t, fuse.OK, r.GetAttr(nil, &fuse.GetAttrIn{InHeader: fuse.InHeader{NodeId: out.NodeId}}, attrOut))
	assert.Equal(t, uint32(0o700), attrOut.Attr.Mode&0o7777)

	r.Forget(out.NodeId, 1)
	assert.Equal(t, fuse.ENOENT, r.GetAttr(nil, &fuse.GetAttrIn{InHeader: fuse.InHeader{NodeId: out.NodeId}}, attrOut))

	r.Forget(fuse.FUSE_ROOT_ID, 1)
	assert.Equal(t, fuse.OK, r.GetAttr(nil, &fuse.GetAttrIn{InHeader: fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}}, attrOut))
}

func TestFuseRaw_ForgetCountsLookups(t *testing.T) {
	t.Parallel()
	r, _ := newTestRaw(t)
	getAttr := func(id uint64) fuse.Status {
		return r.GetAttr(nil, &fuse.GetAttrIn{InHeader: fuse.InHeader{NodeId: id}}, &fuse.AttrOut{})
	}

	mk := &fuse.EntryOut{}
	require.Equal(t, fuse.OK, r.Mkdir(nil, &fuse.MkdirIn{InHeader: fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, Mode: 0o755}, "d", mk))
	_, out := lookup(t, r, fuse.FUSE_ROOT_ID, "d")
	require.Equal(t, mk.NodeId, out.NodeId)
	_, out = lookup(t, r, fuse.FUSE_ROOT_ID, "d")
	require.Equal(t, mk.NodeId, out.NodeId)

	r.Forget(out.NodeId, 1)
	assert.Equal(t, fuse.OK, getAttr(out.NodeId), "two references remain")
	r.Forget(out.NodeId, 1)
	assert.Equal(t, fuse.OK, getAttr(out.NodeId), "one reference remains")
	r.Forget(out.NodeId, 1)
	assert.Equal(t, fuse.ENOENT, getAttr(out.NodeId))

	_, again := lookup(t, r, fuse.FUSE_ROOT_ID, "d")
	assert.NotEqual(t, out.NodeId, again.NodeId, "a forgotten node is looked up under a fresh id")
	r.Forget(again.NodeId, 5)
	assert.Equal(t, fuse.ENOENT, getAttr(again.NodeId), "a batch forget drops every reference")
}

func TestFuseRaw_Readlink(t *testing.T) {
	t.Parallel()
	r, fs := newTestRaw(t)
	_, err := fs.Symlink("../x/y", "/l")
	require.NoError(t, err)

	_, out := lookup(t, r, fuse.FUSE_ROOT_ID, "l")
	target, st := r.Readlink(nil, &fuse.InHeader{NodeId: out.NodeId})
	require.Equal(t, fuse.OK, st)
	assert.Equal(t, "../x/y", string(target))

	_, st = r.Readlink(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID})
	assert.Equal(t, fuse.EINVAL, st)
}

func TestFuseRaw_Mutations(t *testing.T) {
	t.Parallel()
	r, fs := newTestRaw(t)
	addInlineFile(t, fs, "/f", "data")

	out := &fuse.EntryOut{}
	st := r.Mkdir(nil, &fuse.MkdirIn{InHeader: fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, Mode: syscall.S_IFDIR | 0o750}, "d", out)
	require.Equal(t, fuse.OK, st)
	dirID := out.NodeId
	assert.Equal(t, uint32(syscall.S_IFDIR|0o750), out.Attr.Mode)
	assert.Equal(t, uint32(2), out.Attr.Nlink)

	st = r.Mkdir(nil, &fuse.MkdirIn{InHeader: fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, Mode: 0o755}, "d", &fuse.EntryOut{})
	assert.Equal(t, fuse.Status(syscall.EEXIST), st)

	st = r.Symlink(nil, &fuse.InHeader{NodeId: dirID}, "../f", "l", &fuse.EntryOut{})
	require.Equal(t, fuse.OK, st)
	data, err := fs.ReadFile(t.Context(), "/d/l")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	_, fileOut := lookup(t, r, fuse.FUSE_ROOT_ID, "f")
	linkOut := &fuse.EntryOut{}
	st = r.Link(nil, &fuse.LinkIn{InHeader: fuse.InHeader{NodeId: dirID}, Oldnodeid: fileOut.NodeId}, "h", linkOut)
	require.Equal(t, fuse.OK, st)
	assert.Equal(t, fileOut.NodeId, linkOut.NodeId, "hard link names the same node")
	assert.Equal(t, uint32(2), linkOut.Attr.Nlink)

	st = r.Link(nil, &fuse.LinkIn{InHeader: fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, Oldnodeid: dirID}, "dl", &fuse.EntryOut{})
	assert.Equal(t, fuse.EPERM, st, "directories cannot be hard linked")

	st = r.Rename(nil, &fuse.RenameIn{InHeader: fuse.InHeader{NodeId: dirID}, Newdir: fuse.FUSE_ROOT_ID}, "h", "g")
	require.Equal(t, fuse.OK, st)
	_, err = fs.Lstat("/g")
	assert.NoError(t, err)

	st = r.Rename(nil, &fuse.RenameIn{InHeader: fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, Newdir: fuse.FUSE_ROOT_ID, Flags: 1}, "g", "k")
	assert.Equal(t, fuse.EINVAL, st)

	assert.Equal(t, fuse.Status(syscall.ENOTEMPTY), r.Rmdir(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "d"))
	assert.Equal(t, fuse.Status(syscall.EISDIR), r.Unlink(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "d"))
	assert.Equal(t, fuse.OK, r.Unlink(nil, &fuse.InHeader{NodeId: dirID}, "l"))
	assert.Equal(t, fuse.OK, r.Rmdir(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "d"))
	assert.Equal(t, fuse.ENOENT, r.Unlink(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "d"))
	assert.Equal(t, fuse.ENOTDIR, r.Unlink(nil, &fuse.InHeader{NodeId: fileOut.NodeId}, "x"))
}

func TestFuseRaw_OpenReadRelease(t *testing.T) {
	t.Parallel()
	r, fs := newTestRaw(t)
	addInlineFile(t, fs, "/f", "hello world")
	_, out := lookup(t, r, fuse.FUSE_ROOT_ID, "f")

	openOut := &fuse.OpenOut{}
	require.Equal(t, fuse.OK, r.Open(nil, &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: out.NodeId}}, openOut))
	assert.NotZero(t, openOut.Fh)
	assert.NotZero(t, openOut.OpenFlags&fuse.FOPEN_DIRECT_IO)

	// the handle outlives the last name
	require.NoError(t, fs.Remove("/f"))

	buf := make([]byte, 5)
	res, st := r.Read(nil, &fuse.ReadIn{InHeader: fuse.InHeader{NodeId: out.NodeId}, Fh: openOut.Fh, Offset: 6, Size: 5}, buf)
	require.Equal(t, fuse.OK, st)
	data, st := res.Bytes(buf)
	require.Equal(t, fuse.OK, st)
	assert.Equal(t, "world", string(data))

	r.Release(nil, &fuse.ReleaseIn{Fh: openOut.Fh})
	assert.Zero(t, r.handles.len())
	_, st = r.Read(nil, &fuse.ReadIn{Fh: openOut.Fh, Size: 5}, buf)
	assert.Equal(t, fuse.EBADF, st)
}

func TestFuseRaw_OpenErrors(t *testing.T) {
	t.Parallel()
	r, fs := newTestRaw(t)
	addInlineFile(t, fs, "/f", "x")
	_, err := fs.Symlink("f", "/l")
	require.NoError(t, err)
	_, file := lookup(t, r, fuse.FUSE_ROOT_ID, "f")
	_, link := lookup(t, r, fuse.FUSE_ROOT_ID, "l")

	tests := []struct {
		name   string
		nodeID uint64
		flags  uint32
		want   fuse.Status
	}{
		{"directory", fuse.FUSE_ROOT_ID, 0, fuse.EISDIR},
		{"symlink", link.NodeId, 0, fuse.Status(syscall.ELOOP)},
		{"write", file.NodeId, syscall.O_WRONLY, fuse.EROFS},
		{"truncate", file.NodeId, syscall.O_TRUNC, fuse.EROFS},
		{"unknown", 4242, 0, fuse.ENOENT},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := r.Open(nil, &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: tt.nodeID}, Flags: tt.flags}, &fuse.OpenOut{})
			assert.Equal(t, tt.want, st)
		})
	}
}

func TestFuseRaw_HandleLimit(t *testing.T) {
	t.Parallel()
	cfg := config.NewDefaultConfig()
	cfg.MaxFH = 1
	fs, err := filesystem.NewFS(cfg)
	require.NoError(t, err)
	r := NewFuseRaw(fs, cfg)
	addInlineFile(t, fs, "/f", "x")
	_, out := lookup(t, r, fuse.FUSE_ROOT_ID, "f")

	in := &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: out.NodeId}}
	open := &fuse.OpenOut{}
	require.Equal(t, fuse.OK, r.Open(nil, in, open))
	assert.Equal(t, fuse.Status(syscall.ENFILE), r.Open(nil, in, &fuse.OpenOut{}))

	// released handles free their slot
	for range 3 {
		r.Release(nil, &fuse.ReleaseIn{InHeader: in.InHeader, Fh: open.Fh})
		open = &fuse.OpenOut{}
		require.Equal(t, fuse.OK, r.Open(nil, in, open))
		assert.Equal(t, uint64(1), open.Fh)
	}
}

func TestFuseRaw_ReadDir(t *testing.T) {
	t.Parallel()
	r, fs := newTestRaw(t)
	for _, p := range []string{"/b", "/a", "/c"} {
		_, err := fs.Mkdir(p, 0o755)
		require.NoError(t, err)
	}

	assert.Equal(t, fuse.OK, r.OpenDir(nil, &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}}, &fuse.OpenOut{}))

	list := fuse.NewDirEntryList(make([]byte, 4096), 0)
	require.Equal(t, fuse.OK, r.ReadDir(nil, &fuse.ReadIn{InHeader: fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}}, list))
	assert.Equal(t, uint64(5), list.Offset, `".", ".." and three entries`)

	list = fuse.NewDirEntryList(make([]byte, 4096), 4)
	require.Equal(t, fuse.OK, r.ReadDir(nil, &fuse.ReadIn{InHeader: fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, Offset: 4}, list))
	assert.Equal(t, uint64(5), list.Offset, "resumes after the last returned entry")

	// a buffer too small for any entry stops without error
	list = fuse.NewDirEntryList(make([]byte, 8), 0)
	require.Equal(t, fuse.OK, r.ReadDir(nil, &fuse.ReadIn{InHeader: fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}}, list))
	assert.Zero(t, list.Offset)

	addInlineFile(t, fs, "/f", "x")
	_, out := lookup(t, r, fuse.FUSE_ROOT_ID, "f")
	assert.Equal(t, fuse.ENOTDIR, r.OpenDir(nil, &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: out.NodeId}}, &fuse.OpenOut{}))
	assert.Equal(t, fuse.ENOTDIR, r.ReadDir(nil, &fuse.ReadIn{InHeader: fuse.InHeader{NodeId: out.NodeId}}, fuse.NewDirEntryList(make([]byte, 64), 0)))
}

func TestHandleTable(t *testing.T) {
	t.Parallel()
	ht := newHandleTable(10)
	f := filesystem.NewDirectory(1, 0o755)

	a, ok := ht.open(f)
	require.True(t, ok)
	b, ok := ht.open(f)
	require.True(t, ok)
	assert.NotEqual(t, a, b)

	got, ok := ht.get(a)
	require.True(t, ok)
	assert.Same(t, f, got)

	ht.release(a)
	_, ok = ht.get(a)
	assert.False(t, ok)
	assert.Equal(t, 1, ht.len())
}

func TestHandleTable_Reuse(t *testing.T) {
	t.Parallel()
	ht := newHandleTable(2)
	f := filesystem.NewDirectory(1, 0o755)

	a, ok := ht.open(f)
	require.True(t, ok)
	b, ok := ht.open(f)
	require.True(t, ok)
	_, ok = ht.open(f)
	assert.False(t, ok, "all handles in use")

	for range 5 {
		ht.release(a)
		c, ok := ht.open(f)
		require.True(t, ok)
		assert.Equal(t, a, c, "only the released value is free")
	}

	got, ok := ht.get(b)
	require.True(t, ok)
	assert.Same(t, f, got)
	assert.Equal(t, 2, ht.len())

	assert.False(t, func() bool { _, ok := newHandleTable(0).open(f); return ok }())
}
