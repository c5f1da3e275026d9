// Package simlog provides the logging conventions shared by every node,
// the controller, and the config loader.
//
// It mirrors the master-logger/package-logger split the teacher codebase
// builds on top of logrus: one process-wide root logger that owns output
// and level configuration, and cheap per-component children that tag every
// entry with a "pkg" field.
package simlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Master owns output/level/formatter configuration for the whole process.
type Master struct {
	*logrus.Logger
}

// NewMaster returns a Master logging to stderr with the text formatter,
// matching the teacher's default node logging setup.
func NewMaster() *Master {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return &Master{l}
}

// SetLevelFromString parses a level name ("debug", "info", "warn", ...) and
// applies it, leaving the level unchanged on a parse error.
func (m *Master) SetLevelFromString(s string) error {
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return err
	}
	m.SetLevel(lvl)
	return nil
}

// PackageLogger returns a child logger tagged with pkg=name.
func (m *Master) PackageLogger(name string) *logrus.Entry {
	return m.WithField("pkg", name)
}

// NodeLogger returns a child logger tagged with both pkg and node.
func (m *Master) NodeLogger(pkg string, nodeID uint8) *logrus.Entry {
	return m.WithField("pkg", pkg).WithField("node", nodeID)
}
