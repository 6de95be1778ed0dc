package store

import (
	"context"
	"os"
	"path/filepath"
)

// FileKillSwitch implements ports.KillSwitch as the presence of a
// kill-switch.flag file under Dir (spec §5/§6: "presence-based, existence
// = active").
type FileKillSwitch struct {
	Dir string
}

// NewFileKillSwitch builds a FileKillSwitch rooted at dir.
func NewFileKillSwitch(dir string) *FileKillSwitch {
	return &FileKillSwitch{Dir: dir}
}

func (s *FileKillSwitch) path() string {
	return filepath.Join(s.Dir, "kill-switch.flag")
}

// Active reports whether the kill-switch flag file currently exists.
func (s *FileKillSwitch) Active(ctx context.Context) bool {
	_, err := os.Stat(s.path())
	return err == nil
}
