package server

import (
	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/filesystem"
	"github.com/brettbedarf/memfs/internal/core"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// MemFs serves a [filesystem.FileSystem] over FUSE
type MemFs struct {
	*filesystem.FileSystem
	cfg    *config.Config
	server *fuse.Server
}

// New wraps fs for serving with cfg's mount settings
func New(cfg *config.Config, fs *filesystem.FileSystem) *MemFs {
	return &MemFs{
		FileSystem: fs,
		cfg:        cfg,
	}
}

// Serve mounts and serves the filesystem at the given mountPoint.
// It returns once the mount is ready.
func (fs *MemFs) Serve(mountPoint string) error {
	logger := util.GetLogger("Server")

	raw := core.NewFuseRaw(fs.FileSystem, fs.cfg)
	opts := fs.cfg.MountOptions
	srv, err := fuse.NewServer(raw, mountPoint, &fuse.MountOptions{
		Name:       opts.Name,
		FsName:     opts.FsName,
		AllowOther: opts.AllowOther,
		MaxWrite:   fs.cfg.MaxWrite,
		Debug:      opts.Debug || fs.cfg.LogLvl == util.TraceLevel,
		Logger:     util.NewLogLogger("FuseServer", util.DebugLevel),
	})
	if err != nil {
		return err
	}
	fs.server = srv

	go srv.Serve()
	if err := srv.WaitMount(); err != nil {
		return err
	}
	logger.Debug().Str("mountpoint", mountPoint).Msg("Mount ready")
	return nil
}

func (fs *MemFs) ServeAsync(mountPoint string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- fs.Serve(mountPoint)
		close(done)
	}()

	return done
}

// Unmount cleanly unmounts the filesystem.
func (fs *MemFs) Unmount() error {
	if fs.server == nil {
		return nil
	}
	return fs.server.Unmount()
}

// Wait blocks until the filesystem is unmounted
func (fs *MemFs) Wait() {
	if fs.server != nil {
		fs.server.Wait()
	}
}
